package message

// ListOptions provides filtering options for listing messages.
type ListOptions struct {
	Status *Status
	Limit  int
	Offset int
}
