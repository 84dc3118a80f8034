package httptransport

import "github.com/gin-gonic/gin"

// errorResponse is the uniform error body for every failure status.
type errorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

// Client-facing error messages. Storage internals never leak past these.
const (
	msgInboxNotFound   = "Inbox not found"
	msgInboxExpired    = "Inbox expired"
	msgAddressConflict = "Could not allocate a unique address"
	msgNoRecipient     = "No recipient found"
	msgInvalidPayload  = "Invalid payload"
	msgInternalError   = "Internal Server Error"
)
