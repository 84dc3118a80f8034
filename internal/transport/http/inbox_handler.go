package httptransport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempx/backend/internal/domain"
	"tempx/backend/internal/storage"
)

// createInboxResponse is the POST /inbox 201 body.
type createInboxResponse struct {
	Inbox     string    `json:"inbox"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// fetchInboxResponse is the GET /inbox/:localpart 200 body.
type fetchInboxResponse struct {
	Address      string           `json:"address"`
	Messages     []domain.Message `json:"messages"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	MessageCount int              `json:"messageCount"`
}

func (h *Handler) createInbox(c *gin.Context) {
	inbox, err := h.inboxes.Create()
	if err != nil {
		if errors.Is(err, storage.ErrInboxExists) {
			respondError(c, http.StatusConflict, msgAddressConflict)
			return
		}
		respondError(c, http.StatusInternalServerError, msgInternalError)
		return
	}

	if h.metrics != nil {
		h.metrics.InboxesCreated.Inc()
	}

	c.JSON(http.StatusCreated, createInboxResponse{
		Inbox:     inbox.Address,
		ExpiresAt: inbox.ExpiresAt,
	})
}

func (h *Handler) getInbox(c *gin.Context) {
	inbox, err := h.inboxes.Fetch(c.Param("localpart"))
	if err != nil {
		// Absent and expired-and-purged are indistinguishable on purpose.
		if errors.Is(err, storage.ErrInboxNotFound) || errors.Is(err, storage.ErrInboxExpired) {
			respondError(c, http.StatusNotFound, msgInboxNotFound)
			return
		}
		h.log.Error("failed to fetch inbox", zap.Error(err))
		respondError(c, http.StatusInternalServerError, msgInternalError)
		return
	}

	messages := inbox.Messages
	if messages == nil {
		messages = []domain.Message{}
	}

	c.JSON(http.StatusOK, fetchInboxResponse{
		Address:      inbox.Address,
		Messages:     messages,
		ExpiresAt:    inbox.ExpiresAt,
		MessageCount: len(messages),
	})
}

func (h *Handler) deleteInbox(c *gin.Context) {
	if err := h.inboxes.Delete(c.Param("localpart")); err != nil {
		if errors.Is(err, storage.ErrInboxNotFound) {
			respondError(c, http.StatusNotFound, msgInboxNotFound)
			return
		}
		h.log.Error("failed to delete inbox", zap.Error(err))
		respondError(c, http.StatusInternalServerError, msgInternalError)
		return
	}

	if h.metrics != nil {
		h.metrics.InboxesDeleted.Inc()
	}

	c.JSON(http.StatusOK, gin.H{"message": "Inbox deleted"})
}

func (h *Handler) markMessageRead(c *gin.Context) {
	err := h.inboxes.MarkRead(c.Param("localpart"), c.Param("messageId"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMessageNotFound):
			respondError(c, http.StatusNotFound, "Message not found")
		case errors.Is(err, storage.ErrInboxNotFound), errors.Is(err, storage.ErrInboxExpired):
			respondError(c, http.StatusNotFound, msgInboxNotFound)
		default:
			h.log.Error("failed to mark message read", zap.Error(err))
			respondError(c, http.StatusInternalServerError, msgInternalError)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message marked as read"})
}
