package dispatch

import "github.com/rpggio/sendgate/internal/domain/message"

// OutgoingMessage is one entry of a bulk send request.
type OutgoingMessage struct {
	Destination string `json:"phone"`
	Body        string `json:"message"`
	DisplayName string `json:"name,omitempty"`
}

// Outcome is the delivery result for one OutgoingMessage.
type Outcome struct {
	Destination string         `json:"phone"`
	DisplayName string         `json:"name,omitempty"`
	Status      message.Status `json:"status"`
	MessageID   string         `json:"message_id,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Result is returned by SendBulk. Outcomes keep the request order.
type Result struct {
	Outcomes []Outcome `json:"results"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
}
