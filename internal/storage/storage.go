package storage

import (
	"errors"
	"time"

	"tempx/backend/internal/domain"
)

var (
	// ErrInboxExists signals a duplicate address on creation.
	ErrInboxExists = errors.New("inbox address already exists")
	// ErrInboxNotFound covers both never-created and expired-and-purged
	// inboxes; callers cannot distinguish the two.
	ErrInboxNotFound = errors.New("inbox not found")
	// ErrInboxExpired signals an inbox that still exists but is logically
	// dead. Ingestion reports it as 410 rather than 404.
	ErrInboxExpired = errors.New("inbox expired")
	// ErrMessageNotFound signals an unknown message ID within an inbox.
	ErrMessageNotFound = errors.New("message not found")
)

// InboxRepository defines inbox and message persistence.
type InboxRepository interface {
	CreateInbox(inbox *domain.Inbox) error
	GetInboxByAddress(address string) (*domain.Inbox, error)
	AppendMessage(address string, message *domain.Message) error
	TouchAccess(address string) error
	MarkMessageRead(address, messageID string) error
	DeleteInbox(address string) error
	DeleteExpiredInboxes() (int, error)
}

// RateLimitRepository defines windowed rate-limit counters shared by all
// server instances using the same store.
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}
