package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tempx/backend/internal/domain"
)

// Sentinel errors surfaced to callers instead of raw status codes.
var (
	// ErrRateLimited is returned when inbox creation hits the server's
	// per-client quota. Callers should back off instead of retrying.
	ErrRateLimited = errors.New("client: inbox creation rate limited")

	// ErrInboxGone is returned when the inbox no longer exists on the
	// server, either never created, deleted, or expired.
	ErrInboxGone = errors.New("client: inbox not found or expired")
)

// APIError carries a non-sentinel HTTP failure from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// CreatedInbox is the server's response to inbox creation.
type CreatedInbox struct {
	Address   string    `json:"inbox"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// InboxView is the server's snapshot of an inbox and its messages.
type InboxView struct {
	Address      string           `json:"address"`
	Messages     []domain.Message `json:"messages"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	MessageCount int              `json:"messageCount"`
}

// Client is a thin HTTP client for the inbox API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a client for the API at baseURL (no trailing slash).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateInbox asks the server for a fresh random inbox.
func (c *Client) CreateInbox(ctx context.Context) (*CreatedInbox, error) {
	var created CreatedInbox
	if err := c.do(ctx, http.MethodPost, "/inbox", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// FetchInbox retrieves the current state of an inbox by local part.
func (c *Client) FetchInbox(ctx context.Context, localPart string) (*InboxView, error) {
	var view InboxView
	if err := c.do(ctx, http.MethodGet, "/inbox/"+localPart, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// DeleteInbox removes an inbox and all of its messages.
func (c *Client) DeleteInbox(ctx context.Context, localPart string) error {
	return c.do(ctx, http.MethodDelete, "/inbox/"+localPart, nil)
}

// MarkMessageRead flags a single message as read on the server.
func (c *Client) MarkMessageRead(ctx context.Context, localPart, messageID string) error {
	path := "/inbox/" + localPart + "/messages/" + messageID + "/read"
	return c.do(ctx, http.MethodPost, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrInboxGone
	case resp.StatusCode >= 400:
		return parseErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
