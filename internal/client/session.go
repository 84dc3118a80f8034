package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Poll and countdown cadence.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultTickInterval = time.Second

	// createRetryDelay spaces the single automatic retry after a failed
	// inbox creation.
	createRetryDelay = 2 * time.Second
)

// ErrSessionActive is returned when Start is called on a session that
// already has a live inbox.
var ErrSessionActive = errors.New("client: session already active")

// State describes where a session is in its lifecycle.
type State int

const (
	// StateNoInbox means no inbox has been created yet.
	StateNoInbox State = iota
	// StateActive means the session owns a live inbox and is polling it.
	StateActive
	// StateExpired is terminal: the inbox expired or was deleted. A new
	// session must be started for a new inbox.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateNoInbox:
		return "no_inbox"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session drives one inbox lifecycle: create, poll, countdown, expire.
// It reconciles each fetch against locally known state so the caller's
// view never duplicates or reorders previously shown messages, and it
// filters messages the user soft-deleted locally.
type Session struct {
	client *Client

	pollInterval time.Duration
	tickInterval time.Duration

	mu        sync.RWMutex
	state     State
	address   string
	localPart string
	expiresAt time.Time
	remaining time.Duration
	messages  []Message           // newest first, stable across refreshes
	seen      map[string]struct{} // fingerprints already reconciled
	hidden    map[string]struct{} // fingerprints the user soft-deleted

	cancel context.CancelFunc
	done   chan struct{}
}

// Message is a reconciled message plus its local soft-delete identity.
type Message struct {
	ID          string
	From        string
	Subject     string
	Text        string
	HTML        string
	Date        time.Time
	Read        bool
	fingerprint string
}

// Fingerprint identifies a message for local soft-delete across
// refreshes. Composed from date, sender and subject because message IDs
// are server-assigned and would not survive a cleared local store.
func (m Message) Fingerprint() string {
	return m.Date.UTC().Format(time.RFC3339Nano) + "|" + m.From + "|" + m.Subject
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithPollInterval overrides the fetch cadence.
func WithPollInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		s.pollInterval = d
	}
}

// WithTickInterval overrides the countdown cadence.
func WithTickInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		s.tickInterval = d
	}
}

// NewSession creates an idle session bound to the given API client.
func NewSession(c *Client, opts ...SessionOption) *Session {
	s := &Session{
		client:       c,
		pollInterval: DefaultPollInterval,
		tickInterval: DefaultTickInterval,
		seen:         make(map[string]struct{}),
		hidden:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates an inbox and begins the poll loop and countdown. A
// failed creation is retried once after a short delay, except when the
// server rate-limited the request. The loop runs until the inbox
// expires, the session is closed, or ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateActive {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.mu.Unlock()

	created, err := s.client.CreateInbox(ctx)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(createRetryDelay):
		}
		created, err = s.client.CreateInbox(ctx)
		if err != nil {
			return err
		}
	}

	localPart := created.Address
	if at := strings.IndexByte(created.Address, '@'); at >= 0 {
		localPart = created.Address[:at]
	}

	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.state = StateActive
	s.address = created.Address
	s.localPart = localPart
	s.expiresAt = created.ExpiresAt
	s.remaining = time.Until(created.ExpiresAt)
	s.messages = nil
	s.seen = make(map[string]struct{})
	// Fingerprints are only meaningful within one inbox; hiding carries
	// no further than the inbox it happened in.
	s.hidden = make(map[string]struct{})
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(loopCtx)
	return nil
}

// run is the single periodic task per session: one ticker for fetches,
// one for the countdown. The countdown ticks on wall-clock time and is
// resynchronized from the server's expiresAt on every successful fetch.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	tick := time.NewTicker(s.tickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if !s.fetchOnce(ctx) {
				return
			}
		case <-tick.C:
			s.mu.Lock()
			s.remaining = time.Until(s.expiresAt)
			expired := s.remaining <= 0
			if expired {
				s.remaining = 0
				s.state = StateExpired
			}
			s.mu.Unlock()
			if expired {
				// Local expiry is optimistic; confirm with the server
				// before tearing the loop down.
				s.fetchOnce(ctx)
				return
			}
		}
	}
}

// fetchOnce pulls the inbox and reconciles. Returns false once the
// session has expired and polling should stop.
func (s *Session) fetchOnce(ctx context.Context) bool {
	s.mu.RLock()
	localPart := s.localPart
	s.mu.RUnlock()

	view, err := s.client.FetchInbox(ctx, localPart)
	if err != nil {
		if errors.Is(err, ErrInboxGone) {
			s.expire()
			return false
		}
		// Transient failure, keep the last known state and retry on the
		// next tick.
		return true
	}

	s.merge(view)
	return true
}

// merge folds a fetched snapshot into the local view. Messages already
// shown keep their position; unseen ones are inserted at the head in
// server order, so the list stays newest first without reordering.
func (s *Session) merge(view *InboxView) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return
	}

	s.expiresAt = view.ExpiresAt
	s.remaining = time.Until(view.ExpiresAt)

	var fresh []Message
	for _, dm := range view.Messages {
		m := Message{
			ID:      dm.ID,
			From:    dm.From,
			Subject: dm.Subject,
			Text:    dm.Text,
			HTML:    dm.HTML,
			Date:    dm.Date,
			Read:    dm.Read,
		}
		m.fingerprint = m.Fingerprint()
		if _, ok := s.seen[m.fingerprint]; ok {
			continue
		}
		s.seen[m.fingerprint] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) > 0 {
		s.messages = append(fresh, s.messages...)
	}
}

func (s *Session) expire() {
	s.mu.Lock()
	s.state = StateExpired
	s.remaining = 0
	s.mu.Unlock()
}

// Refresh triggers an immediate fetch outside the polling cadence.
func (s *Session) Refresh(ctx context.Context) {
	s.mu.RLock()
	active := s.state == StateActive
	s.mu.RUnlock()
	if active {
		s.fetchOnce(ctx)
	}
}

// Delete removes the inbox on the server and expires the session.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.RLock()
	localPart := s.localPart
	s.mu.RUnlock()

	err := s.client.DeleteInbox(ctx, localPart)
	if err != nil && !errors.Is(err, ErrInboxGone) {
		return err
	}
	s.Close()
	s.expire()
	return nil
}

// MarkRead flags a message as read on the server and locally.
func (s *Session) MarkRead(ctx context.Context, messageID string) error {
	s.mu.RLock()
	localPart := s.localPart
	s.mu.RUnlock()

	if err := s.client.MarkMessageRead(ctx, localPart, messageID); err != nil {
		return err
	}

	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Read = true
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// Hide soft-deletes a message locally. The server keeps the message;
// the fingerprint filter hides it from lists and counts until the local
// state is discarded.
func (s *Session) Hide(m Message) {
	s.mu.Lock()
	s.hidden[m.Fingerprint()] = struct{}{}
	s.mu.Unlock()
}

// Messages returns the visible messages, newest first, with locally
// hidden ones filtered out.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleLocked("")
}

// Search returns visible messages whose sender, subject or body
// contains the term, case-insensitively. An empty term matches all.
func (s *Session) Search(term string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleLocked(strings.ToLower(term))
}

// UnreadCount counts visible messages not yet marked read.
func (s *Session) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.visibleLocked("") {
		if !m.Read {
			count++
		}
	}
	return count
}

func (s *Session) visibleLocked(lowerTerm string) []Message {
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		if _, ok := s.hidden[m.fingerprint]; ok {
			continue
		}
		if lowerTerm != "" && !matches(m, lowerTerm) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func matches(m Message, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(m.From), lowerTerm) ||
		strings.Contains(strings.ToLower(m.Subject), lowerTerm) ||
		strings.Contains(strings.ToLower(m.Text), lowerTerm)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Address returns the full inbox address, empty before Start.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// ExpiresAt returns the server-reported expiry of the inbox.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Remaining returns the countdown value as of the last tick or fetch.
func (s *Session) Remaining() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remaining
}

// Close stops the poll loop without deleting the server-side inbox.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
