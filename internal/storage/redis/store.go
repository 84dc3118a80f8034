package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tempx/backend/internal/domain"
	"tempx/backend/internal/storage"
)

// Store persists inboxes in Redis. Every key carries the inbox's expiry,
// so Redis reclaims dead records on its own; the code-level expiry checks
// below only cover the window before the key TTL fires.
//
// Message appends use LPUSH, which is an atomic push-to-head: concurrent
// appends against the same address are all preserved without a
// read-modify-write of the whole list.
type Store struct {
	client *redis.Client
	ctx    context.Context
}

// NewStore connects to Redis and verifies the connection.
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{
		client: client,
		ctx:    ctx,
	}, nil
}

func inboxKey(address string) string {
	return fmt.Sprintf("inbox:%s", address)
}

func messagesKey(address string) string {
	return fmt.Sprintf("inbox:%s:messages", address)
}

func messageIDsKey(address string) string {
	return fmt.Sprintf("inbox:%s:msgids", address)
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

// inboxMeta is the stored record without the message list; messages live
// in their own Redis list.
type inboxMeta struct {
	Address      string    `json:"address"`
	LocalPart    string    `json:"localPart"`
	Domain       string    `json:"domain"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	IsActive     bool      `json:"isActive"`
}

// CreateInbox stores the inbox metadata, relying on SETNX for the unique
// address constraint.
func (s *Store) CreateInbox(inbox *domain.Inbox) error {
	meta := inboxMeta{
		Address:      inbox.Address,
		LocalPart:    inbox.LocalPart,
		Domain:       inbox.Domain,
		CreatedAt:    inbox.CreatedAt,
		ExpiresAt:    inbox.ExpiresAt,
		LastAccessed: inbox.LastAccessed,
		IsActive:     inbox.IsActive,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	ttl := time.Until(inbox.ExpiresAt)
	if ttl <= 0 {
		return storage.ErrInboxExpired
	}

	ok, err := s.client.SetNX(s.ctx, inboxKey(inbox.Address), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrInboxExists
	}
	return nil
}

// GetInboxByAddress loads the metadata and full message list.
func (s *Store) GetInboxByAddress(address string) (*domain.Inbox, error) {
	meta, err := s.getMeta(address)
	if err != nil {
		return nil, err
	}

	items, err := s.client.LRange(s.ctx, messagesKey(address), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return &domain.Inbox{
		Address:      meta.Address,
		LocalPart:    meta.LocalPart,
		Domain:       meta.Domain,
		CreatedAt:    meta.CreatedAt,
		ExpiresAt:    meta.ExpiresAt,
		LastAccessed: meta.LastAccessed,
		IsActive:     meta.IsActive,
		Messages:     messages,
	}, nil
}

// AppendMessage pushes the message to the head of the inbox's list.
func (s *Store) AppendMessage(address string, message *domain.Message) error {
	meta, err := s.getMeta(address)
	if err != nil {
		if err == storage.ErrInboxNotFound {
			return storage.ErrInboxNotFound
		}
		return err
	}
	if !time.Now().Before(meta.ExpiresAt) {
		return storage.ErrInboxExpired
	}

	if message.MessageID != "" {
		added, err := s.client.SAdd(s.ctx, messageIDsKey(address), message.MessageID).Result()
		if err != nil {
			return err
		}
		if added == 0 {
			// Provider webhook retry; already stored.
			return nil
		}
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(s.ctx, messagesKey(address), data)
	pipe.ExpireAt(s.ctx, messagesKey(address), meta.ExpiresAt)
	pipe.ExpireAt(s.ctx, messageIDsKey(address), meta.ExpiresAt)
	if _, err := pipe.Exec(s.ctx); err != nil {
		return err
	}

	return s.touchMeta(address, meta)
}

// TouchAccess updates lastAccessed on the stored metadata.
func (s *Store) TouchAccess(address string) error {
	meta, err := s.getMeta(address)
	if err != nil {
		return err
	}
	return s.touchMeta(address, meta)
}

// MarkMessageRead rewrites the matching list entry in place.
func (s *Store) MarkMessageRead(address, messageID string) error {
	if _, err := s.getMeta(address); err != nil {
		return err
	}

	items, err := s.client.LRange(s.ctx, messagesKey(address), 0, -1).Result()
	if err != nil {
		return err
	}

	for i, item := range items {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return err
		}
		if msg.ID != messageID {
			continue
		}
		if msg.Read {
			return nil
		}
		msg.Read = true
		data, err := json.Marshal(&msg)
		if err != nil {
			return err
		}
		return s.client.LSet(s.ctx, messagesKey(address), int64(i), data).Err()
	}

	return storage.ErrMessageNotFound
}

// DeleteInbox removes the metadata, message list and dedup set.
func (s *Store) DeleteInbox(address string) error {
	deleted, err := s.client.Del(s.ctx,
		inboxKey(address),
		messagesKey(address),
		messageIDsKey(address),
	).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return storage.ErrInboxNotFound
	}
	return nil
}

// DeleteExpiredInboxes is a no-op sweep: every inbox key carries an
// EXPIREAT, so Redis reclaims expired records itself.
func (s *Store) DeleteExpiredInboxes() (int, error) {
	return 0, nil
}

func (s *Store) getMeta(address string) (*inboxMeta, error) {
	data, err := s.client.Get(s.ctx, inboxKey(address)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, storage.ErrInboxNotFound
		}
		return nil, err
	}

	var meta inboxMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, err
	}

	// Key TTL has not fired yet but the record is logically dead.
	if !time.Now().Before(meta.ExpiresAt) {
		return nil, storage.ErrInboxNotFound
	}

	return &meta, nil
}

// touchMeta rewrites the metadata with a fresh lastAccessed, keeping the
// original expiry. Losing a race on this bookkeeping field is harmless;
// message integrity only depends on LPUSH. SetXX guards the window where
// the key TTL fires after getMeta: a plain SET would recreate the dead
// key without any TTL and it would never be reclaimed.
func (s *Store) touchMeta(address string, meta *inboxMeta) error {
	meta.LastAccessed = time.Now().UTC()
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.client.SetXX(s.ctx, inboxKey(address), data, redis.KeepTTL).Err()
}

// ========== Rate Limiting ==========

// IncrementRateLimit bumps the windowed counter, setting the window TTL
// when the counter is first created.
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	k := rateLimitKey(key)

	count, err := s.client.Incr(s.ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(s.ctx, k, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// GetRateLimit returns the current window's counter.
func (s *Store) GetRateLimit(key string) (int64, error) {
	count, err := s.client.Get(s.ctx, rateLimitKey(key)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// ========== Lifecycle ==========

// Close releases the Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Health pings Redis.
func (s *Store) Health() error {
	return s.client.Ping(s.ctx).Err()
}
