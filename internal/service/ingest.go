package service

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempx/backend/internal/config"
	"tempx/backend/internal/domain"
	"tempx/backend/internal/security"
	"tempx/backend/internal/storage"
)

// ErrMissingRecipient signals an inbound notification with no recipient;
// there is nothing to route, so the whole payload is rejected.
var ErrMissingRecipient = errors.New("no recipient found")

// IngestService normalizes inbound-email notifications from heterogeneous
// webhook providers into canonical messages and appends them to the
// addressed inbox. Each provider has its own payload type and parser;
// adding a provider means adding a variant, not branching on field shape.
type IngestService struct {
	store     domain.Store
	cfg       *config.Config
	sanitizer *security.Sanitizer
	log       *zap.Logger
}

// NewIngestService creates the ingestion gateway service.
func NewIngestService(store domain.Store, cfg *config.Config, log *zap.Logger) *IngestService {
	return &IngestService{
		store:     store,
		cfg:       cfg,
		sanitizer: security.NewSanitizer(),
		log:       log,
	}
}

// MailgunPayload is Mailgun's inbound-route notification. Mailgun posts
// form-encoded fields; the JSON tags cover its test harness.
type MailgunPayload struct {
	Recipient string `form:"recipient" json:"recipient"`
	Sender    string `form:"sender" json:"sender"`
	Subject   string `form:"subject" json:"subject"`
	BodyPlain string `form:"body-plain" json:"body-plain"`
	BodyHTML  string `form:"body-html" json:"body-html"`
	Timestamp string `form:"timestamp" json:"timestamp"`
	MessageID string `form:"Message-Id" json:"Message-Id"`
}

// SendGridEnvelope is one element of SendGrid's inbound-parse batch.
type SendGridEnvelope struct {
	To      []SendGridAddress `json:"to"`
	From    SendGridAddress   `json:"from"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers"`
}

// SendGridAddress is a single addressee in a SendGrid envelope.
type SendGridAddress struct {
	Email string `json:"email"`
}

// TestPayload is the synthetic debug source.
type TestPayload struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// IngestMailgun parses a Mailgun notification and delivers it.
func (s *IngestService) IngestMailgun(payload MailgunPayload) error {
	if payload.Recipient == "" {
		return ErrMissingRecipient
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		From:      payload.Sender,
		Subject:   defaultSubject(payload.Subject),
		Text:      payload.BodyPlain,
		HTML:      payload.BodyHTML,
		Date:      parseUnixTimestamp(payload.Timestamp),
		MessageID: payload.MessageID,
	}

	return s.deliver("mailgun", payload.Recipient, msg)
}

// IngestSendGrid processes a batch of envelopes. Envelopes are independent
// notifications: a dead inbox on one must not abort its siblings. Returns
// how many were accepted along with the last per-item failure.
func (s *IngestService) IngestSendGrid(envelopes []SendGridEnvelope) (int, error) {
	if len(envelopes) == 0 {
		return 0, ErrMissingRecipient
	}

	accepted := 0
	var lastErr error

	for _, env := range envelopes {
		if len(env.To) == 0 || env.To[0].Email == "" {
			lastErr = ErrMissingRecipient
			continue
		}
		recipient := env.To[0].Email

		msg := &domain.Message{
			ID:        uuid.NewString(),
			From:      env.From.Email,
			Subject:   defaultSubject(env.Subject),
			Text:      env.Text,
			HTML:      env.HTML,
			Date:      time.Now().UTC(),
			MessageID: env.Headers["Message-ID"],
		}

		if err := s.deliver("sendgrid", recipient, msg); err != nil {
			lastErr = err
			continue
		}
		accepted++
	}

	return accepted, lastErr
}

// IngestTest accepts the synthetic source, filling in debug defaults for
// every absent field.
func (s *IngestService) IngestTest(payload TestPayload) (*domain.Message, error) {
	if payload.To == "" {
		return nil, ErrMissingRecipient
	}

	from := payload.From
	if from == "" {
		from = "test@example.com"
	}
	subject := payload.Subject
	if subject == "" {
		subject = fmt.Sprintf("Test Message %d", time.Now().Unix())
	}
	text := payload.Text
	if text == "" {
		text = "This is a test message"
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		From:      from,
		Subject:   subject,
		Text:      text,
		HTML:      payload.HTML,
		Date:      time.Now().UTC(),
		MessageID: fmt.Sprintf("test-%d-%s", time.Now().UnixMilli(), randomSuffix(9)),
	}

	if err := s.deliver("test", payload.To, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// deliver routes a canonical message to its inbox by exact address match.
func (s *IngestService) deliver(provider, recipient string, msg *domain.Message) error {
	address := domain.NormalizeAddress(recipient, s.cfg.Inbox.Domain)
	if address == "" {
		return ErrMissingRecipient
	}

	if msg.HTML != "" {
		msg.HTML = s.sanitizer.CleanHTML(msg.HTML)
	}

	err := s.store.AppendMessage(address, msg)
	switch {
	case err == nil:
		s.log.Info("message ingested",
			zap.String("provider", provider),
			zap.String("inbox", address),
			zap.String("from", msg.From),
		)
		return nil
	case errors.Is(err, storage.ErrInboxNotFound):
		s.log.Info("message for unknown inbox rejected",
			zap.String("provider", provider),
			zap.String("inbox", address),
		)
		return err
	case errors.Is(err, storage.ErrInboxExpired):
		s.log.Info("message for expired inbox rejected",
			zap.String("provider", provider),
			zap.String("inbox", address),
		)
		return err
	default:
		s.log.Error("failed to store ingested message",
			zap.String("provider", provider),
			zap.String("inbox", address),
			zap.Error(err),
		)
		return err
	}
}

func defaultSubject(subject string) string {
	if subject == "" {
		return domain.DefaultSubject
	}
	return subject
}

// parseUnixTimestamp converts Mailgun's unix-seconds string; the source
// timestamp is untrusted, so anything unparseable becomes ingestion time.
func parseUnixTimestamp(value string) time.Time {
	if value == "" {
		return time.Now().UTC()
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}
