package domain

import (
	"strings"
	"time"
)

// Inbox is a disposable mailbox record. The address is immutable after
// creation; messages are kept newest-first.
type Inbox struct {
	Address      string    `json:"address"`
	LocalPart    string    `json:"localPart"`
	Domain       string    `json:"domain"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	IsActive     bool      `json:"isActive"`
	Messages     []Message `json:"messages"`
}

// IsExpired reports whether the inbox has passed its expiry time.
func (in *Inbox) IsExpired() bool {
	return in.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the inbox is expired at the given instant.
func (in *Inbox) IsExpiredAt(now time.Time) bool {
	return !now.Before(in.ExpiresAt)
}

// Remaining returns the time left until expiry, never negative.
func (in *Inbox) Remaining(now time.Time) time.Duration {
	if in.IsExpiredAt(now) {
		return 0
	}
	return in.ExpiresAt.Sub(now)
}

// NormalizeAddress lowercases an address and appends the default domain
// when only a local part was given.
func NormalizeAddress(address, defaultDomain string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return ""
	}
	if !strings.Contains(address, "@") {
		return address + "@" + defaultDomain
	}
	return address
}
