package subscription

import "time"

// Status is a subscription's lifecycle status.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Subscription is a tenant's plan with its message allowance.
// MessagesUsed + MessagesRemaining always equals MessagesLimit.
type Subscription struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	PlanName          string    `json:"plan_name"`
	MessagesLimit     int       `json:"messages_limit"`
	MessagesUsed      int       `json:"messages_used"`
	MessagesRemaining int       `json:"messages_remaining"`
	CharactersLimit   int       `json:"characters_limit"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ExpiredAt reports whether the plan's end date has passed.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	return now.After(s.EndDate)
}
