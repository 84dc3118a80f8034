package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempx/backend/internal/service"
	"tempx/backend/internal/storage"
)

// mailgunWebhook accepts Mailgun's inbound-route notification, a single
// form-encoded (or JSON) payload for one recipient.
func (h *Handler) mailgunWebhook(c *gin.Context) {
	var payload service.MailgunPayload
	if err := c.ShouldBind(&payload); err != nil {
		h.rejectIngest(c, "mailgun", service.ErrMissingRecipient)
		return
	}

	if err := h.ingest.IngestMailgun(payload); err != nil {
		h.rejectIngest(c, "mailgun", err)
		return
	}

	if h.metrics != nil {
		h.metrics.MessagesIngested.WithLabelValues("mailgun").Inc()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Email received and stored",
		"inbox":   payload.Recipient,
	})
}

// sendgridWebhook accepts SendGrid's inbound-parse batch: an array of
// independent envelopes, or a single bare envelope.
func (h *Handler) sendgridWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	var envelopes []service.SendGridEnvelope
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		var single service.SendGridEnvelope
		if err := json.Unmarshal(raw, &single); err != nil {
			respondError(c, http.StatusBadRequest, msgInvalidPayload)
			return
		}
		envelopes = []service.SendGridEnvelope{single}
	}

	accepted, lastErr := h.ingest.IngestSendGrid(envelopes)
	if accepted == 0 {
		// Nothing stored; report the most useful failure.
		h.rejectIngest(c, "sendgrid", lastErr)
		return
	}

	if lastErr != nil {
		h.log.Warn("sendgrid batch partially rejected",
			zap.Int("accepted", accepted),
			zap.Int("total", len(envelopes)),
			zap.Error(lastErr),
		)
	}
	if h.metrics != nil {
		h.metrics.MessagesIngested.WithLabelValues("sendgrid").Add(float64(accepted))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"accepted": accepted,
	})
}

// testWebhook is the synthetic source for manual and automated checks.
func (h *Handler) testWebhook(c *gin.Context) {
	var payload service.TestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	msg, err := h.ingest.IngestTest(payload)
	if err != nil {
		h.rejectIngest(c, "test", err)
		return
	}

	if h.metrics != nil {
		h.metrics.MessagesIngested.WithLabelValues("test").Inc()
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Test email added successfully",
		"inbox":     payload.To,
		"messageId": msg.MessageID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// webhookProbe documents the ingestion endpoints; external relays use it
// as a liveness check.
func (h *Handler) webhookProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Webhook endpoint is working",
		"endpoints": []string{
			"POST /webhook/mailgun - for Mailgun webhooks",
			"POST /webhook/sendgrid - for SendGrid webhooks",
			"POST /webhook/test - for testing",
		},
	})
}

// rejectIngest maps ingestion failures onto the wire taxonomy: 400 for
// unroutable payloads, 404 for unknown inboxes, 410 for inboxes that
// exist but are expired.
func (h *Handler) rejectIngest(c *gin.Context, provider string, err error) {
	var status int
	var msg, reason string

	switch {
	case errors.Is(err, service.ErrMissingRecipient):
		status, msg, reason = http.StatusBadRequest, msgNoRecipient, "missing_recipient"
	case errors.Is(err, storage.ErrInboxNotFound):
		status, msg, reason = http.StatusNotFound, msgInboxNotFound, "inbox_not_found"
	case errors.Is(err, storage.ErrInboxExpired):
		status, msg, reason = http.StatusGone, msgInboxExpired, "inbox_expired"
	default:
		status, msg, reason = http.StatusInternalServerError, msgInternalError, "internal"
	}

	if h.metrics != nil {
		h.metrics.IngestRejects.WithLabelValues(provider, reason).Inc()
	}
	respondError(c, status, msg)
}
