package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tempx/backend/internal/config"
	"tempx/backend/internal/domain"
	"tempx/backend/internal/storage"
)

// createAttempts bounds the retry loop when a generated address collides.
const createAttempts = 3

// InboxService owns the inbox lifecycle: creation with collision retry,
// fetch with access bookkeeping, and deletion.
type InboxService struct {
	store domain.Store
	cfg   *config.Config
	gen   *domain.AddressGenerator
	log   *zap.Logger
}

// NewInboxService creates the inbox lifecycle service.
func NewInboxService(store domain.Store, cfg *config.Config, log *zap.Logger) *InboxService {
	return &InboxService{
		store: store,
		cfg:   cfg,
		gen:   domain.NewAddressGenerator(),
		log:   log,
	}
}

// Create provisions a new randomly addressed inbox. Address uniqueness is
// enforced by the store; on a collision a fresh address is tried a bounded
// number of times before the conflict is surfaced.
func (s *InboxService) Create() (*domain.Inbox, error) {
	var lastErr error

	for attempt := 0; attempt < createAttempts; attempt++ {
		localPart := s.gen.LocalPart(s.cfg.Inbox.AddressLength)
		now := time.Now().UTC()

		inbox := &domain.Inbox{
			Address:      fmt.Sprintf("%s@%s", localPart, s.cfg.Inbox.Domain),
			LocalPart:    localPart,
			Domain:       s.cfg.Inbox.Domain,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.cfg.Inbox.TTL),
			LastAccessed: now,
			IsActive:     true,
		}

		err := s.store.CreateInbox(inbox)
		if err == nil {
			s.log.Info("inbox created",
				zap.String("address", inbox.Address),
				zap.Time("expires_at", inbox.ExpiresAt),
			)
			return inbox, nil
		}
		if !errors.Is(err, storage.ErrInboxExists) {
			return nil, err
		}

		lastErr = err
		s.log.Warn("address collision, retrying",
			zap.String("address", inbox.Address),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, lastErr
}

// Fetch returns the live inbox for a local part or full address and
// updates its access timestamp. Absent and expired inboxes are reported
// uniformly as not found.
func (s *InboxService) Fetch(address string) (*domain.Inbox, error) {
	address = domain.NormalizeAddress(address, s.cfg.Inbox.Domain)
	if address == "" {
		return nil, storage.ErrInboxNotFound
	}

	inbox, err := s.store.GetInboxByAddress(address)
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchAccess(address); err != nil && !errors.Is(err, storage.ErrInboxNotFound) {
		s.log.Warn("failed to touch inbox access time",
			zap.String("address", address),
			zap.Error(err),
		)
	}

	return inbox, nil
}

// Delete removes the inbox immediately.
func (s *InboxService) Delete(address string) error {
	address = domain.NormalizeAddress(address, s.cfg.Inbox.Domain)
	if address == "" {
		return storage.ErrInboxNotFound
	}

	if err := s.store.DeleteInbox(address); err != nil {
		return err
	}

	s.log.Info("inbox deleted", zap.String("address", address))
	return nil
}

// MarkRead flags a single message as viewed.
func (s *InboxService) MarkRead(address, messageID string) error {
	address = domain.NormalizeAddress(address, s.cfg.Inbox.Domain)
	if address == "" {
		return storage.ErrInboxNotFound
	}
	return s.store.MarkMessageRead(address, messageID)
}
