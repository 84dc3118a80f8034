package domain

import "time"

// DefaultSubject is used when an inbound notification carries no subject.
const DefaultSubject = "(No Subject)"

// Message is a single piece of mail inside an Inbox. It has no identity
// outside its inbox; deleting the inbox deletes its messages.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	Date      time.Time `json:"date"`
	MessageID string    `json:"messageId,omitempty"`
	Read      bool      `json:"read"`
}
