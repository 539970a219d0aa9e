package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/mmattdonk/solrock-eventsub/internal/events"
	"github.com/mmattdonk/solrock-eventsub/internal/helix"
	"github.com/mmattdonk/solrock-eventsub/internal/metrics"
)

// Registrar registers EventSub subscriptions for a broadcaster.
type Registrar interface {
	Register(ctx context.Context, broadcasterID string) ([]helix.Registration, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APISecret is the bearer token for /newuser and /events.
	APISecret string
	// LedgerBackend is reported by /healthz.
	LedgerBackend string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	RegistrationRate  float64
	RegistrationBurst int

	// EventsKeepAlive is the comment interval on idle /events streams.
	EventsKeepAlive time.Duration
}

// Server is the public HTTP listener. It serves the EventSub endpoint next to
// the admin and operational routes.
type Server struct {
	config    Config
	eventsub  http.Handler
	registrar Registrar
	events    *events.Hub
	gatherer  prometheus.Gatherer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	limiters  *clientLimiters
	server    *http.Server
	startedAt time.Time
}

// New creates the server. registrar is nil when Helix credentials are not
// configured; /newuser then answers 503. gatherer and m may be nil.
func New(config Config, eventsub http.Handler, registrar Registrar, hub *events.Hub, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *slog.Logger) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if config.EventsKeepAlive <= 0 {
		config.EventsKeepAlive = 15 * time.Second
	}
	if config.RegistrationRate <= 0 {
		config.RegistrationRate = 1
	}
	if config.RegistrationBurst <= 0 {
		config.RegistrationBurst = 1
	}
	if hub == nil {
		hub = events.NewHub(0)
	}
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	return &Server{
		config:    config,
		eventsub:  eventsub,
		registrar: registrar,
		events:    hub,
		gatherer:  gatherer,
		metrics:   m,
		logger:    logger,
		limiters:  newClientLimiters(rate.Limit(config.RegistrationRate), config.RegistrationBurst),
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		// SSE streams stay open; /events clears its own write deadline.
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("server starting", "listen", s.config.Listen)

	// Run server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Twitch delivers here; the endpoint does its own HMAC authentication.
	r.Method(http.MethodPost, "/eventsub", s.eventsub)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Protected API.
	r.With(s.rateLimitMiddleware, s.authMiddleware).Post("/newuser", s.handleNewUser)
	r.With(s.authMiddleware).Get("/events", s.handleEvents)

	return r
}

// loggingMiddleware logs HTTP requests (excludes bodies and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}
