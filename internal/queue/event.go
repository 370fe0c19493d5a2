// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the development mail sink.
package queue

// EmailQueueName is the durable queue outbound email requests go to.
const EmailQueueName = "auth.email"

// Templates understood by the mail collaborator.
const (
	TemplatePasswordReset = "password_reset"
)

// EmailRequestedEvent asks the mail collaborator to send one message.  It
// carries everything needed to render the mail so consumers never query
// the primary database.
type EmailRequestedEvent struct {
	Template    string `json:"template"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Link        string `json:"link"`
	UserID      uint64 `json:"user_id"`
	RequestedAt string `json:"requested_at"`
}
