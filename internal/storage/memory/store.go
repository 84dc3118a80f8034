package memory

import (
	"sync"
	"time"

	"tempx/backend/internal/domain"
	"tempx/backend/internal/storage"
)

// Store keeps inboxes in process memory. It is the development and test
// backend; the redis store is the shared-deployment equivalent.
type Store struct {
	mu      sync.RWMutex
	inboxes map[string]*domain.Inbox // keyed by full address

	// source-supplied message IDs already accepted, per address. Providers
	// retry webhook delivery, so append dedups on non-empty IDs.
	seenMessageIDs map[string]map[string]struct{}

	rateLimits        map[string]*rateLimitEntry
	rateLimitsCleanup time.Time
}

type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		inboxes:           make(map[string]*domain.Inbox),
		seenMessageIDs:    make(map[string]map[string]struct{}),
		rateLimits:        make(map[string]*rateLimitEntry),
		rateLimitsCleanup: time.Now().Add(5 * time.Minute),
	}
}

// CreateInbox stores a new inbox, failing on a duplicate address.
func (s *Store) CreateInbox(inbox *domain.Inbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneExpiredLocked()

	if _, ok := s.inboxes[inbox.Address]; ok {
		return storage.ErrInboxExists
	}

	cp := *inbox
	if cp.Messages == nil {
		cp.Messages = make([]domain.Message, 0)
	}
	s.inboxes[inbox.Address] = &cp
	return nil
}

// GetInboxByAddress returns a snapshot of the inbox. Expired records are
// removed on sight and reported as not found, so clients never observe a
// logically dead inbox even before the sweep runs.
func (s *Store) GetInboxByAddress(address string) (*domain.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox, ok := s.inboxes[address]
	if !ok {
		return nil, storage.ErrInboxNotFound
	}
	if inbox.IsExpired() {
		s.deleteInboxLocked(address)
		return nil, storage.ErrInboxNotFound
	}

	return snapshotInbox(inbox), nil
}

// AppendMessage inserts the message at the head of the inbox's list so the
// canonical order is newest-first. The expiry re-check here is what makes a
// concurrent purge win over a late append.
func (s *Store) AppendMessage(address string, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox, ok := s.inboxes[address]
	if !ok {
		return storage.ErrInboxNotFound
	}
	if inbox.IsExpired() {
		s.deleteInboxLocked(address)
		return storage.ErrInboxExpired
	}

	if message.MessageID != "" {
		seen, ok := s.seenMessageIDs[address]
		if !ok {
			seen = make(map[string]struct{})
			s.seenMessageIDs[address] = seen
		}
		if _, dup := seen[message.MessageID]; dup {
			return nil
		}
		seen[message.MessageID] = struct{}{}
	}

	inbox.Messages = append([]domain.Message{*message}, inbox.Messages...)
	inbox.LastAccessed = time.Now().UTC()
	return nil
}

// TouchAccess updates the access bookkeeping timestamp.
func (s *Store) TouchAccess(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox, ok := s.inboxes[address]
	if !ok {
		return storage.ErrInboxNotFound
	}
	if inbox.IsExpired() {
		s.deleteInboxLocked(address)
		return storage.ErrInboxNotFound
	}

	inbox.LastAccessed = time.Now().UTC()
	return nil
}

// MarkMessageRead flags a message as read.
func (s *Store) MarkMessageRead(address, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox, ok := s.inboxes[address]
	if !ok || inbox.IsExpired() {
		return storage.ErrInboxNotFound
	}

	for i := range inbox.Messages {
		if inbox.Messages[i].ID == messageID {
			inbox.Messages[i].Read = true
			return nil
		}
	}
	return storage.ErrMessageNotFound
}

// DeleteInbox removes the inbox. Deleting an absent address reports
// ErrInboxNotFound; callers treat that as an idempotent outcome.
func (s *Store) DeleteInbox(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inboxes[address]; !ok {
		return storage.ErrInboxNotFound
	}
	s.deleteInboxLocked(address)
	return nil
}

// DeleteExpiredInboxes sweeps all expired records and returns how many
// were removed.
func (s *Store) DeleteExpiredInboxes() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for address, inbox := range s.inboxes {
		if inbox.IsExpiredAt(now) {
			s.deleteInboxLocked(address)
			count++
		}
	}
	return count, nil
}

func (s *Store) deleteInboxLocked(address string) {
	delete(s.inboxes, address)
	delete(s.seenMessageIDs, address)
}

func (s *Store) pruneExpiredLocked() {
	now := time.Now()
	for address, inbox := range s.inboxes {
		if inbox.IsExpiredAt(now) {
			s.deleteInboxLocked(address)
		}
	}
}

// snapshotInbox copies the record so callers never share the message slice
// with concurrent appends.
func snapshotInbox(inbox *domain.Inbox) *domain.Inbox {
	cp := *inbox
	cp.Messages = make([]domain.Message, len(inbox.Messages))
	copy(cp.Messages, inbox.Messages)
	return &cp
}

// ========== Rate Limiting ==========

// IncrementRateLimit bumps the windowed counter for key, starting a new
// window when the previous one has lapsed.
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if now.After(s.rateLimitsCleanup) {
		for k, v := range s.rateLimits {
			if now.After(v.ExpiresAt) {
				delete(s.rateLimits, k)
			}
		}
		s.rateLimitsCleanup = now.Add(5 * time.Minute)
	}

	entry, exists := s.rateLimits[key]
	if !exists || now.After(entry.ExpiresAt) {
		entry = &rateLimitEntry{
			Count:     1,
			ExpiresAt: now.Add(window),
		}
		s.rateLimits[key] = entry
		return 1, nil
	}

	entry.Count++
	return entry.Count, nil
}

// GetRateLimit returns the current window's counter for key.
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.rateLimits[key]
	if !exists || time.Now().After(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// ========== Lifecycle ==========

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Health always succeeds for the in-memory store.
func (s *Store) Health() error {
	return nil
}
