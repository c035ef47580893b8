package message

import "context"

// Repository provides persistence operations for the message log.
type Repository interface {
	AppendBatch(ctx context.Context, records []Record) error
	List(ctx context.Context, tenantID string, opts ListOptions) ([]Record, error)
	Statistics(ctx context.Context, tenantID string) (Statistics, error)
	Grouped(ctx context.Context, tenantID string, opts ListOptions) ([]Group, error)
}

// ContactRepository looks up address book entries.
type ContactRepository interface {
	// FindByPhone returns repository.ErrNotFound when no contact has the given digits.
	FindByPhone(ctx context.Context, tenantID, phoneDigits string) (*Contact, error)
}

// ContactStore adds contacts to the address book.
type ContactStore interface {
	ContactRepository
	// Create returns repository.ErrConflict when the tenant already has the phone.
	Create(ctx context.Context, c *Contact) error
}
