package domain

import "time"

// Store aggregates all storage operations the service layer needs.
type Store interface {
	// ========== Inbox Repository ==========
	CreateInbox(inbox *Inbox) error
	GetInboxByAddress(address string) (*Inbox, error)
	TouchAccess(address string) error
	DeleteInbox(address string) error
	DeleteExpiredInboxes() (int, error)

	// ========== Message Repository ==========
	AppendMessage(address string, message *Message) error
	MarkMessageRead(address, messageID string) error

	// ========== Rate Limiting ==========
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)

	Close() error
	Health() error
}
