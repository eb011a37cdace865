// Package web provides the JSON HTTP API over the grid service.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/datagrid/internal/config"
	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/metrics"
	webmw "github.com/JonMunkholm/datagrid/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the grid API.
type Server struct {
	cfg      *config.Config
	service  *core.Service
	resolver webmw.PrincipalResolver
	metrics  *metrics.Metrics
	promHTTP http.Handler

	router *chi.Mux
	server *http.Server

	limiter       *rateLimiter
	importLimiter *rateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics in m and serves h at the configured
// metrics path.
func WithMetrics(m *metrics.Metrics, h http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.promHTTP = h
	}
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, service *core.Service, resolver webmw.PrincipalResolver, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		service:  service,
		resolver: resolver,
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Rate.Enabled {
		s.limiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.importLimiter = newRateLimiter(cfg.Rate.ImportLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(webmw.Metrics(s.metrics))
	}
	s.router.Use(middleware.Compress(5))

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.limiter != nil {
		s.router.Use(s.limiter.middleware(s.respondError))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.promHTTP != nil && s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, s.promHTTP)
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, errRouteNotFound)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, errMethodNotAllowed)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(webmw.Authenticate(s.resolver, s.respondError))
		r.Use(requestMetadata)

		// Imports run under the service's own import timeout.
		r.Group(func(r chi.Router) {
			if s.importLimiter != nil {
				r.Use(s.importLimiter.middleware(s.respondError))
			}
			r.Post("/grids/{gridID}/rows/import", s.handleImportRows)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/types", s.handleListTypes)

			// Grids
			r.Get("/grids", s.handleListGrids)
			r.Post("/grids", s.handleCreateGrid)
			r.Get("/grids/{gridID}", s.handleGetGrid)
			r.Put("/grids/{gridID}", s.handleUpdateGrid)
			r.Delete("/grids/{gridID}", s.handleDeleteGrid)

			// Columns
			r.Get("/grids/{gridID}/columns", s.handleListColumns)
			r.Post("/grids/{gridID}/columns", s.handleAddColumn)
			r.Put("/columns/{columnID}", s.handleUpdateColumn)
			r.Delete("/columns/{columnID}", s.handleDeleteColumn)

			// Rows
			r.Get("/grids/{gridID}/rows", s.handleListRows)
			r.Post("/grids/{gridID}/rows", s.handleCreateRow)
			r.Post("/grids/{gridID}/rows/batch", s.handleCreateRows)
			r.Post("/grids/{gridID}/rows/preview", s.handlePreviewRows)
			r.Post("/grids/{gridID}/rows/batch-delete", s.handleDeleteRows)
			r.Get("/rows/{rowID}", s.handleGetRow)
			r.Put("/rows/{rowID}", s.handleUpdateRow)
			r.Patch("/rows/{rowID}/cells", s.handleUpdateCell)
			r.Delete("/rows/{rowID}", s.handleDeleteRow)

			// Grants
			r.Get("/grids/{gridID}/grants", s.handleListGrants)
			r.Put("/grids/{gridID}/grants/{userID}", s.handlePutGrant)
			r.Delete("/grids/{gridID}/grants/{userID}", s.handleRevokeGrant)

			// Audit log
			r.Get("/audit-log", s.handleAuditLog)
		})

		// Exports stream for as long as the log is.
		r.Get("/audit-log/export", s.handleAuditLogExport)
	})
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

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, then waits for in-flight imports.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.importLimiter != nil {
		s.importLimiter.stop()
	}
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.service.Limiter().WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		logError(r, err, http.StatusServiceUnavailable, "DB004")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.Limiter().Stats(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			// The API serves JSON and a static error page; nothing else may load.
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'")
			}

			// Control referrer information
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter is a fixed-window request limiter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
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
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries once per window until stop is called.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if rl.now().Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware rate limits by RemoteAddr, which TrustedRealIP has already
// resolved to the client IP.
func (rl *rateLimiter) middleware(onLimit func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(r.RemoteAddr) {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				onLimit(w, r, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
