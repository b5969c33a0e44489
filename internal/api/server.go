// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/portal-hub/internal/logging"
	"github.com/portal-hub/internal/metrics"
	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/ratelimit"
	"github.com/portal-hub/internal/storage"
)

// Service interfaces for dependency injection and testing

// AccountServiceInterface defines the interface for account operations
type AccountServiceInterface interface {
	Register(ctx context.Context, input models.NewUser) (*models.PublicUser, error)
	Login(ctx context.Context, username, password string) (*models.PublicUser, error)
	GetUser(ctx context.Context, id int64) (*models.PublicUser, error)
}

// PreferencesServiceInterface defines the interface for settings and site operations
type PreferencesServiceInterface interface {
	GetSettings(ctx context.Context, userID int64) (*models.Settings, error)
	CreateSettings(ctx context.Context, input models.NewSettings) (*models.Settings, error)
	UpdateSettings(ctx context.Context, userID int64, patch models.SettingsPatch) (*models.Settings, error)
	ListSites(ctx context.Context, userID int64) ([]*models.QuickAccessSite, error)
	CreateSite(ctx context.Context, input models.NewSite) (*models.QuickAccessSite, error)
	UpdateSite(ctx context.Context, id int64, patch models.SitePatch) (*models.QuickAccessSite, error)
	DeleteSite(ctx context.Context, id int64) error
}

// AssistantServiceInterface defines the interface for assistant operations
type AssistantServiceInterface interface {
	PostMessage(ctx context.Context, userID int64, content string) (*models.AssistantMessage, error)
	ListMessages(ctx context.Context, userID int64) ([]*models.AssistantMessage, error)
}

// RecordCounter reports live record counts for the health endpoint
type RecordCounter interface {
	Counts() storage.EntityCounts
}

// Dependencies are the collaborators the server routes requests to
type Dependencies struct {
	Accounts    AccountServiceInterface
	Preferences PreferencesServiceInterface
	Assistant   AssistantServiceInterface
	Records     RecordCounter
	// Limiter is consulted per client when rate limiting is enabled
	Limiter  ratelimit.Limiter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	handler     http.Handler
	httpServer  *http.Server
	accounts    AccountServiceInterface
	preferences PreferencesServiceInterface
	assistant   AssistantServiceInterface
	records     RecordCounter
	limiter     ratelimit.Limiter
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	logger      *logging.Logger
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	RateLimitEnabled  bool
	RateLimitRequests int // requests allowed per window and client
	RateLimitWindow   time.Duration
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:      mux.NewRouter(),
		accounts:    deps.Accounts,
		preferences: deps.Preferences,
		assistant:   deps.Assistant,
		records:     deps.Records,
		limiter:     deps.Limiter,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		logger:      logger,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Route-aware middleware runs only for matched routes
	s.router.Use(RecoveryMiddleware)
	if s.metrics != nil {
		s.router.Use(MetricsMiddleware(s.metrics))
	}
	if s.config.RateLimitEnabled && s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.config.RateLimitRequests, s.config.RateLimitWindow, s.metrics))
	}

	setRoutingErrorHandlers(s.router)

	s.setupRoutes()

	// Outer middleware wraps every request, matched or not (order matters!)
	s.handler = RequestIDMiddleware(s.logger)(LoggingMiddleware(CORSMiddleware(s.router)))

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setRoutingErrorHandlers installs the JSON 404 and 405 responses on r
func setRoutingErrorHandlers(r *mux.Router) {
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed", nil)
	})
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.gatherer != nil {
		s.router.Handle("/metrics", metrics.Handler(s.gatherer)).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	// Subrouters resolve their own misses; without these a wrong method on a known path reads as 404
	setRoutingErrorHandlers(api)

	// Auth endpoints
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/auth/register", s.handleRegister).Methods("POST")

	// User endpoints
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")

	// Settings endpoints
	api.HandleFunc("/settings", s.handleCreateSettings).Methods("POST")
	api.HandleFunc("/settings/{userId}", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings/{userId}", s.handleUpdateSettings).Methods("PATCH")

	// Quick access site endpoints
	api.HandleFunc("/sites", s.handleCreateSite).Methods("POST")
	api.HandleFunc("/sites/{userId}", s.handleListSites).Methods("GET")
	api.HandleFunc("/sites/{id}", s.handleUpdateSite).Methods("PATCH")
	api.HandleFunc("/sites/{id}", s.handleDeleteSite).Methods("DELETE")

	// Assistant endpoints
	api.HandleFunc("/assistant/messages/{userId}", s.handleListMessages).Methods("GET")
	api.HandleFunc("/assistant/message", s.handlePostMessage).Methods("POST")
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": "portal-hub",
	}
	if s.records != nil {
		body["records"] = s.records.Counts()
	}
	respondJSON(w, http.StatusOK, body)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
