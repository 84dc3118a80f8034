package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempx/backend/internal/config"
	"tempx/backend/internal/domain"
	"tempx/backend/internal/service"
	"tempx/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type routerFixture struct {
	router *gin.Engine
	store  *memory.Store
	cfg    *config.Config
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	store := memory.NewStore()
	return newRouterFixtureWithStore(t, store, store)
}

func newRouterFixtureWithStore(t *testing.T, store domain.Store, mem *memory.Store) *routerFixture {
	t.Helper()

	cfg := &config.Config{
		Inbox: config.InboxConfig{
			Domain:        "tempx.me",
			TTL:           10 * time.Minute,
			AddressLength: 8,
		},
		RateLimit: config.RateLimitConfig{
			CreateMax:       5,
			CreateWindow:    15 * time.Minute,
			IngestPerSecond: 1000,
			IngestBurst:     1000,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	log := zap.NewNop()

	router := NewRouter(RouterDependencies{
		Config:        cfg,
		InboxService:  service.NewInboxService(store, cfg, log),
		IngestService: service.NewIngestService(store, cfg, log),
		RateLimits:    store,
		Logger:        log,
	})

	return &routerFixture{router: router, store: mem, cfg: cfg}
}

func (f *routerFixture) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *routerFixture) createInbox(t *testing.T) (address string, expiresAt time.Time) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/inbox", "", "")
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Inbox     string    `json:"inbox"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Inbox, body.ExpiresAt
}

func TestCreateInbox(t *testing.T) {
	f := newRouterFixture(t)

	address, expiresAt := f.createInbox(t)

	require.True(t, strings.HasSuffix(address, "@tempx.me"))
	localPart := strings.TrimSuffix(address, "@tempx.me")
	assert.Len(t, localPart, 8)

	assert.InDelta(t, 600, time.Until(expiresAt).Seconds(), 5)
}

func TestCreateInbox_RateLimited(t *testing.T) {
	f := newRouterFixture(t)

	for i := 0; i < 5; i++ {
		w := f.do(t, http.MethodPost, "/inbox", "", "")
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := f.do(t, http.MethodPost, "/inbox", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestIngestThenFetch(t *testing.T) {
	f := newRouterFixture(t)
	address, _ := f.createInbox(t)

	payload := fmt.Sprintf(`{"to":%q,"from":"a@b.com","subject":"Hi","text":"hello"}`, address)
	w := f.do(t, http.MethodPost, "/webhook/test", "application/json", payload)
	require.Equal(t, http.StatusOK, w.Code)

	localPart := strings.TrimSuffix(address, "@tempx.me")
	w = f.do(t, http.MethodGet, "/inbox/"+localPart, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Address      string           `json:"address"`
		Messages     []domain.Message `json:"messages"`
		MessageCount int              `json:"messageCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, address, body.Address)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, 1, body.MessageCount)
	assert.Equal(t, "Hi", body.Messages[0].Subject)
	assert.Equal(t, "a@b.com", body.Messages[0].From)
	assert.Equal(t, "hello", body.Messages[0].Text)
	assert.False(t, body.Messages[0].Read)
}

func TestSequentialIngestsNewestFirst(t *testing.T) {
	f := newRouterFixture(t)
	address, _ := f.createInbox(t)

	for _, subject := range []string{"first", "second"} {
		payload := fmt.Sprintf(`{"to":%q,"from":"a@b.com","subject":%q}`, address, subject)
		w := f.do(t, http.MethodPost, "/webhook/test", "application/json", payload)
		require.Equal(t, http.StatusOK, w.Code)
	}

	localPart := strings.TrimSuffix(address, "@tempx.me")
	w := f.do(t, http.MethodGet, "/inbox/"+localPart, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "second", body.Messages[0].Subject)
	assert.Equal(t, "first", body.Messages[1].Subject)
}

func TestMailgunWebhook_FormEncoded(t *testing.T) {
	f := newRouterFixture(t)
	address, _ := f.createInbox(t)

	form := url.Values{}
	form.Set("recipient", address)
	form.Set("sender", "alice@example.com")
	form.Set("subject", "Greetings")
	form.Set("body-plain", "plain text")
	form.Set("body-html", "<p>html</p>")
	form.Set("timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	form.Set("Message-Id", "<mg-1@example>")

	w := f.do(t, http.MethodPost, "/webhook/mailgun",
		"application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, w.Code)

	got, err := f.store.GetInboxByAddress(address)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Greetings", got.Messages[0].Subject)
	assert.Equal(t, "<mg-1@example>", got.Messages[0].MessageID)
}

func TestMailgunWebhook_MissingRecipient(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/webhook/mailgun",
		"application/json", `{"sender":"a@b.com","subject":"Hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_UnknownInbox(t *testing.T) {
	f := newRouterFixture(t)

	payload := `{"to":"nobody@tempx.me","from":"a@b.com","subject":"Hi"}`
	w := f.do(t, http.MethodPost, "/webhook/test", "application/json", payload)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhook_ExpiredInboxIsGone(t *testing.T) {
	f := newRouterFixture(t)

	now := time.Now().UTC()
	require.NoError(t, f.store.CreateInbox(&domain.Inbox{
		Address:   "stale123@tempx.me",
		LocalPart: "stale123",
		Domain:    "tempx.me",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-50 * time.Minute),
	}))

	payload := `{"to":"stale123@tempx.me","from":"a@b.com","subject":"Hi"}`
	w := f.do(t, http.MethodPost, "/webhook/test", "application/json", payload)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestFetchExpiredInbox(t *testing.T) {
	f := newRouterFixture(t)

	now := time.Now().UTC()
	require.NoError(t, f.store.CreateInbox(&domain.Inbox{
		Address:   "stale123@tempx.me",
		LocalPart: "stale123",
		Domain:    "tempx.me",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-50 * time.Minute),
	}))

	// Expired but not yet swept still reads as 404.
	w := f.do(t, http.MethodGet, "/inbox/stale123", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// faultyStore simulates a store whose backend is unreachable.
type faultyStore struct {
	domain.Store
	err error
}

func (f *faultyStore) GetInboxByAddress(string) (*domain.Inbox, error) { return nil, f.err }

func (f *faultyStore) DeleteInbox(string) error { return f.err }

func (f *faultyStore) MarkMessageRead(string, string) error { return f.err }

func TestStorageFailureIsNotReportedAsNotFound(t *testing.T) {
	mem := memory.NewStore()
	store := &faultyStore{
		Store: mem,
		err:   errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"),
	}
	f := newRouterFixtureWithStore(t, store, mem)

	// A backend outage must surface as an internal error, never as the
	// inbox being gone: pollers treat 404 as terminal expiry.
	w := f.do(t, http.MethodGet, "/inbox/abc12345", "", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")

	w = f.do(t, http.MethodDelete, "/inbox/abc12345", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = f.do(t, http.MethodPost, "/inbox/abc12345/messages/m1/read", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSendGridWebhook_Batch(t *testing.T) {
	f := newRouterFixture(t)
	address, _ := f.createInbox(t)

	payload := fmt.Sprintf(`[
		{"to":[{"email":%q}],"from":{"email":"one@example.com"},"subject":"first","text":"b1"},
		{"to":[{"email":"nobody@tempx.me"}],"from":{"email":"two@example.com"},"subject":"lost"},
		{"to":[{"email":%q}],"from":{"email":"three@example.com"},"subject":"second","text":"b2"}
	]`, address, address)

	w := f.do(t, http.MethodPost, "/webhook/sendgrid", "application/json", payload)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Accepted int `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Accepted)

	got, err := f.store.GetInboxByAddress(address)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestSendGridWebhook_AllRejected(t *testing.T) {
	f := newRouterFixture(t)

	payload := `[{"to":[{"email":"nobody@tempx.me"}],"from":{"email":"a@b.com"}}]`
	w := f.do(t, http.MethodPost, "/webhook/sendgrid", "application/json", payload)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteInbox(t *testing.T) {
	f := newRouterFixture(t)
	address, _ := f.createInbox(t)
	localPart := strings.TrimSuffix(address, "@tempx.me")

	w := f.do(t, http.MethodDelete, "/inbox/"+localPart, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/inbox/"+localPart, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodDelete, "/inbox/"+localPart, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteNonexistentInbox(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodDelete, "/inbox/neverwas1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkMessageRead(t *testing.T) {
	f := newRouterFixture(t)
	address, _ := f.createInbox(t)
	localPart := strings.TrimSuffix(address, "@tempx.me")

	payload := fmt.Sprintf(`{"to":%q,"from":"a@b.com","subject":"Hi"}`, address)
	w := f.do(t, http.MethodPost, "/webhook/test", "application/json", payload)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := f.store.GetInboxByAddress(address)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	msgID := got.Messages[0].ID

	w = f.do(t, http.MethodPost, "/inbox/"+localPart+"/messages/"+msgID+"/read", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	got, err = f.store.GetInboxByAddress(address)
	require.NoError(t, err)
	assert.True(t, got.Messages[0].Read)

	w = f.do(t, http.MethodPost, "/inbox/"+localPart+"/messages/missing/read", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookProbe(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/webhook/test", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Webhook endpoint is working")
}
