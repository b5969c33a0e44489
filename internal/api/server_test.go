package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/portal-hub/internal/errors"
	"github.com/portal-hub/internal/job"
	"github.com/portal-hub/internal/logging"
	"github.com/portal-hub/internal/metrics"
	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/ratelimit"
	"github.com/portal-hub/internal/service"
	"github.com/portal-hub/internal/storage"
	"github.com/portal-hub/internal/types"
)

// captureScheduler holds reply jobs so tests decide when they run
type captureScheduler struct {
	mu   sync.Mutex
	jobs []*job.Job
}

func (c *captureScheduler) Enqueue(j *job.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, j)
	return nil
}

func (c *captureScheduler) runAll(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	jobs := c.jobs
	c.jobs = nil
	c.mu.Unlock()
	for _, j := range jobs {
		require.NoError(t, j.Run(context.Background()))
	}
}

type testEnv struct {
	server    *Server
	store     *storage.MemoryStore
	scheduler *captureScheduler
	registry  *prometheus.Registry
}

func quietLogger() *logging.Logger {
	logger := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	logger.SetOutput(io.Discard)
	return logger
}

// Helper function to create test server backed by real services and an in-memory store
func createTestServer(t *testing.T, opts ...func(*ServerConfig, *Dependencies)) *testEnv {
	t.Helper()

	config := &ServerConfig{
		Addr:              "localhost:8080",
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		RateLimitEnabled:  false,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	}

	logger := quietLogger()
	store := storage.NewMemoryStore()
	scheduler := &captureScheduler{}
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	deps := Dependencies{
		Accounts:    service.NewAccountService(store, bcrypt.MinCost, logger),
		Preferences: service.NewPreferencesService(store),
		Assistant: service.NewAssistantService(store, service.NewKeywordResponder(), scheduler, m,
			service.AssistantConfig{ReplyDelay: time.Second}, logger),
		Records:  store,
		Limiter:  ratelimit.NewMemoryLimiter(0),
		Metrics:  m,
		Gatherer: registry,
		Logger:   logger,
	}
	for _, opt := range opts {
		opt(config, &deps)
	}

	return &testEnv{
		server:    NewServer(config, deps),
		store:     store,
		scheduler: scheduler,
		registry:  registry,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), "body: %s", w.Body.String())
	return out
}

func errorCodeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, w).Error.Code
}

func (e *testEnv) register(t *testing.T, username string) models.PublicUser {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username, "password": "password", "name": username + " name",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.PublicUser](t, w)
}

// TestHealthEndpoint tests the health check endpoint
func TestHealthEndpoint(t *testing.T) {
	env := createTestServer(t)
	env.register(t, "demo")

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Status  string               `json:"status"`
		Service string               `json:"service"`
		Records storage.EntityCounts `json:"records"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "portal-hub", response.Service)
	assert.Equal(t, storage.EntityCounts{Users: 1, Settings: 1}, response.Records)
}

func TestRegisterAndLogin(t *testing.T) {
	env := createTestServer(t)

	user := env.register(t, "demo")
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "demo", user.Username)

	w := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "demo", "password": "other", "name": "Other",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "USERNAME_TAKEN", errorCodeOf(t, w))

	w = env.do(t, http.MethodPost, "/api/auth/register", map[string]string{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCodeOf(t, w))

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "demo", "password": "password"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user, decode[models.PublicUser](t, w))

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "demo", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCodeOf(t, w))

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "demo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUser(t *testing.T) {
	env := createTestServer(t)
	user := env.register(t, "alice")

	w := env.do(t, http.MethodGet, "/api/users/"+strconv.FormatInt(user.ID, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.Equal(t, user, decode[models.PublicUser](t, w))

	w = env.do(t, http.MethodGet, "/api/users/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCodeOf(t, w))

	w = env.do(t, http.MethodGet, "/api/users/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PARAMETER", errorCodeOf(t, w))
}

func TestSettingsEndpoints(t *testing.T) {
	env := createTestServer(t)
	user := env.register(t, "alice")
	path := "/api/settings/" + strconv.FormatInt(user.ID, 10)

	w := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	settings := decode[models.Settings](t, w)
	assert.False(t, settings.ProxyEnabled)
	assert.True(t, settings.AudioEnabled)
	assert.True(t, settings.DarkThemeEnabled)
	assert.True(t, settings.EffectsEnabled)

	w = env.do(t, http.MethodPatch, path, map[string]bool{"audioEnabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	patched := decode[models.Settings](t, w)
	assert.False(t, patched.AudioEnabled)
	assert.True(t, patched.DarkThemeEnabled)
	assert.Equal(t, settings.ID, patched.ID)

	w = env.do(t, http.MethodPatch, "/api/settings/42", map[string]bool{"audioEnabled": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/settings/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/settings/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, path, map[string]interface{}{"audioEnabled": "yes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCodeOf(t, w))
}

func TestCreateSettings(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodPost, "/api/settings", map[string]interface{}{"userId": 7, "proxyEnabled": true})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[models.Settings](t, w)
	assert.True(t, created.ProxyEnabled)
	assert.True(t, created.AudioEnabled, "omitted flags take defaults")

	w = env.do(t, http.MethodPost, "/api/settings", map[string]interface{}{"userId": 7, "proxyEnabled": false})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, created, decode[models.Settings](t, w), "second create returns the existing record")

	w = env.do(t, http.MethodPost, "/api/settings", map[string]interface{}{"proxyEnabled": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSiteEndpoints(t *testing.T) {
	env := createTestServer(t)

	for _, pos := range []int{3, 1, 2} {
		w := env.do(t, http.MethodPost, "/api/sites", map[string]interface{}{
			"userId": 1, "name": "site " + strconv.Itoa(pos), "url": "https://example.com", "icon": "fa-globe", "position": pos,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/api/sites/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sites := decode[[]models.QuickAccessSite](t, w)
	require.Len(t, sites, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{sites[0].Position, sites[1].Position, sites[2].Position})

	w = env.do(t, http.MethodGet, "/api/sites/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	first := strconv.FormatInt(sites[0].ID, 10)
	w = env.do(t, http.MethodPatch, "/api/sites/"+first, map[string]interface{}{"name": "renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	renamed := decode[models.QuickAccessSite](t, w)
	assert.Equal(t, "renamed", renamed.Name)
	assert.Equal(t, sites[0].URL, renamed.URL)

	w = env.do(t, http.MethodPatch, "/api/sites/999", map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/sites/"+first, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = env.do(t, http.MethodDelete, "/api/sites/"+first, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// position zero is valid, a missing position is not
	w = env.do(t, http.MethodPost, "/api/sites", map[string]interface{}{
		"userId": 1, "name": "n", "url": "u", "icon": "i", "position": 0,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/api/sites", map[string]interface{}{
		"userId": 1, "name": "n", "url": "u", "icon": "i",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Error.Details, "position")
}

func TestAssistantEndpoints(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodPost, "/api/assistant/message", map[string]interface{}{"userId": 1, "message": "hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	posted := decode[PostMessageResponse](t, w)
	assert.True(t, posted.Success)
	require.NotNil(t, posted.Message)
	assert.Equal(t, types.SenderUser, posted.Message.Sender)
	assert.Equal(t, "hello", posted.Message.Content)

	w = env.do(t, http.MethodGet, "/api/assistant/messages/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.AssistantMessage](t, w), 1, "reply not yet delivered")

	env.scheduler.runAll(t)

	w = env.do(t, http.MethodGet, "/api/assistant/messages/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	messages := decode[[]models.AssistantMessage](t, w)
	require.Len(t, messages, 2)
	assert.Equal(t, types.SenderAI, messages[1].Sender)
	assert.Equal(t, "Hello there! How can I assist you today?", messages[1].Content)

	w = env.do(t, http.MethodPost, "/api/assistant/message", map[string]interface{}{"userId": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "a", "password": "b", "name": "c", "role": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCodeOf(t, w))

	w = env.do(t, http.MethodPost, "/api/auth/login", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutingErrors(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodGet, "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotFound, errorCodeOf(t, w))

	w = env.do(t, http.MethodGet, "/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotFound, errorCodeOf(t, w))

	// Known /api paths with the wrong method
	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/api/sites/1"},
		{http.MethodDelete, "/api/settings/1"},
		{http.MethodGet, "/api/auth/login"},
		{http.MethodPost, "/api/users/1"},
	} {
		w = env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, ErrCodeMethodNotAllowed, errorCodeOf(t, w), "%s %s", tc.method, tc.path)
	}

	// Shared /sites/{...} template still dispatches by method
	w = env.do(t, http.MethodGet, "/api/sites/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerListenAddr(t *testing.T) {
	env := createTestServer(t, func(c *ServerConfig, _ *Dependencies) {
		c.Addr = "[::1]:5000"
	})
	assert.Equal(t, "[::1]:5000", env.server.httpServer.Addr)
}

func TestCORSPreflight(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodOptions, "/api/sites/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestRequestID(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	id := "6f1c3c5e-8a52-4c52-9a55-2f0b7f4f3b11"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	env := createTestServer(t, func(cfg *ServerConfig, deps *Dependencies) {
		cfg.RateLimitEnabled = true
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/api/sites/1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := env.do(t, http.MethodGet, "/api/sites/1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCodeOf(t, w))

	// health checks are exempt
	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// another client has its own budget
	req := httptest.NewRequest(http.MethodGet, "/api/sites/1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingLimiter struct{}

func (failingLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	return nil, context.DeadlineExceeded
}

func TestRateLimit_FailsOpen(t *testing.T) {
	env := createTestServer(t, func(cfg *ServerConfig, deps *Dependencies) {
		cfg.RateLimitEnabled = true
		deps.Limiter = failingLimiter{}
	})

	w := env.do(t, http.MethodGet, "/api/sites/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type panickingAssistant struct{}

func (panickingAssistant) PostMessage(ctx context.Context, userID int64, content string) (*models.AssistantMessage, error) {
	panic("boom")
}

func (panickingAssistant) ListMessages(ctx context.Context, userID int64) ([]*models.AssistantMessage, error) {
	panic("boom")
}

func TestRecovery(t *testing.T) {
	env := createTestServer(t, func(cfg *ServerConfig, deps *Dependencies) {
		deps.Assistant = panickingAssistant{}
	})

	w := env.do(t, http.MethodGet, "/api/assistant/messages/1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeInternalError, errorCodeOf(t, w))
}

// failingAssistant returns a system error with an internal cause
type failingAssistant struct{}

func (failingAssistant) PostMessage(ctx context.Context, userID int64, content string) (*models.AssistantMessage, error) {
	return nil, apperrors.NewResponderError(errors.New("dial tcp 10.0.0.7:443: connection refused"))
}

func (failingAssistant) ListMessages(ctx context.Context, userID int64) ([]*models.AssistantMessage, error) {
	return nil, errors.New("store exploded")
}

func TestServiceErrorResponses(t *testing.T) {
	env := createTestServer(t, func(cfg *ServerConfig, deps *Dependencies) {
		deps.Assistant = failingAssistant{}
	})

	w := env.do(t, http.MethodPost, "/api/assistant/message", map[string]interface{}{"userId": 1, "message": "hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode[ErrorResponse](t, w)
	assert.Equal(t, "RESPONDER_ERROR", body.Error.Code)
	assert.Equal(t, "An internal error occurred", body.Error.Message)
	assert.NotContains(t, w.Body.String(), "10.0.0.7")

	w = env.do(t, http.MethodGet, "/api/assistant/messages/1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeInternalError, errorCodeOf(t, w))
	assert.NotContains(t, w.Body.String(), "exploded")

	// client errors keep their message and details
	w = env.do(t, http.MethodGet, "/api/settings/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	body = decode[ErrorResponse](t, w)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Equal(t, "42", body.Error.Details["id"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := createTestServer(t)
	env.do(t, http.MethodGet, "/api/sites/1", nil)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `portal_http_requests_total{method="GET",route="/api/sites/{userId}",status="200"} 1`)
}
