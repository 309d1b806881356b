package messages

import "time"

// OutboundEmail is handed to the mail relay over Kafka instead of being sent inline.
type OutboundEmail struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
