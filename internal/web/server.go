// Package web provides the HTTP API for the string catalog: catalog
// reads with version tokens, single-value writes, the bulk import
// pipeline endpoints, and the audit listing.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/config"
	"github.com/lexcat/lexcat/internal/importer"
	"github.com/lexcat/lexcat/internal/logging"
	"github.com/lexcat/lexcat/internal/store"
	mw "github.com/lexcat/lexcat/internal/web/middleware"
)

// Store is the persistence surface the handlers need. *store.Store
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	Ping(ctx context.Context) error

	EnsureNamespace(ctx context.Context, name string) (int64, error)
	EnsureKey(ctx context.Context, namespaceID int64, name string) (int64, error)
	UpsertMessage(ctx context.Context, keyID int64, locale, value string) (*store.UpsertResult, error)
	UpsertOverride(ctx context.Context, orgID uuid.UUID, keyID int64, locale, value string) (*store.UpsertResult, error)
	GetMessage(ctx context.Context, keyID int64, locale string) (string, error)
	ListMessages(ctx context.Context, namespace, locale string) ([]catalog.Item, error)
	ListOverrides(ctx context.Context, namespace, locale string, orgID uuid.UUID) ([]catalog.Item, error)

	GetVersion(ctx context.Context, scope store.ScopeID) (int64, error)
	IncrementVersion(ctx context.Context, scope store.ScopeID) (int64, error)

	AppendAudit(ctx context.Context, e store.AuditEntry) error
	ListAudit(ctx context.Context, filter store.AuditFilter) ([]store.AuditEntry, error)

	IsMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// Server is the HTTP server for the catalog API.
type Server struct {
	cfg       *config.Config
	store     Store
	imports   *importer.Service
	validator *catalog.Validator
	router    *chi.Mux
	server    *http.Server
}

// NewServer wires the router, middleware, and routes.
func NewServer(cfg *config.Config, st Store, imports *importer.Service, validator *catalog.Validator) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		imports:   imports,
		validator: validator,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(metricsMiddleware)

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.JWTAuth(&s.cfg.Auth))

		// Catalog reads
		r.Get("/catalog/{namespace}", s.handleReadCatalog)

		// Single-value writes
		r.Put("/messages/{namespace}/{key}/{locale}", s.handleWriteMessage)
		r.Put("/orgs/{orgID}/messages/{namespace}/{key}/{locale}", s.handleWriteOverride)

		// Import pipeline; submissions get their own tighter limiter
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				importLimiter := newRateLimiter(s.cfg.Rate.ImportLimit, time.Minute)
				r.Use(importLimiter.middleware)
			}
			r.Post("/import", s.handleSubmitImport)
			r.Post("/import/preflight", s.handlePreflight)
		})
		r.Get("/import/jobs/{jobID}", s.handleJobStatus)
		r.Get("/import/jobs/{jobID}/logs", s.handleJobLogs)
		r.Post("/import/jobs/{jobID}/retry", s.handleJobRetry)
		r.Post("/import/jobs/{jobID}/cancel", s.handleJobCancel)
		r.Post("/import/jobs/{jobID}/force-cancel", s.handleJobForceCancel)

		// Audit
		r.Get("/audit", s.handleListAudit)
	})
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	logging.FromContext(context.Background()).Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON API: nothing should ever load resources from a response
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	// Check if we have tokens left
	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		// Use X-Real-IP if set (by RealIP middleware)
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "rate limit exceeded",
				Action:  "slow down and retry shortly",
				Code:    "http_rate_limited",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
