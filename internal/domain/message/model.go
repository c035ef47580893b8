package message

import "time"

// Status is the delivery status of a message record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Record is one entry in the message log.
type Record struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ContactID      *string   `json:"contact_id,omitempty"`
	RecipientPhone string    `json:"recipient_phone"`
	RecipientName  string    `json:"recipient_name,omitempty"`
	Body           string    `json:"body"`
	Status         Status    `json:"status"`
	Error          string    `json:"error,omitempty"`
	RemoteID       string    `json:"remote_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Contact is a tenant's address book entry.
type Contact struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	PhoneDigits string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Statistics counts a tenant's messages by status.
type Statistics struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Group summarizes every message sent with the same body.
type Group struct {
	Body          string    `json:"body"`
	Total         int       `json:"total"`
	Sent          int       `json:"sent"`
	Failed        int       `json:"failed"`
	LastCreatedAt time.Time `json:"last_created_at"`
}
