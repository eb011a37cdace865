// Package logging provides structured logging configuration using log/slog.
//
// This package integrates with chi's RequestID middleware to propagate
// request IDs through structured log entries. Handlers deeper in the chain
// (authentication, for example) can attach further attributes to the request
// with AddAttrs, and both the access log and FromContext pick them up.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup configures the global slog logger based on level and format and
// returns it.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// Use "json" format in production for machine parsing.
// Use "text" format in development for human readability.
func Setup(level, format string) *slog.Logger {
	logger := New(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w without touching the global default.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level. Unknown values map
// to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns a logger enriched with request context.
//
// When called with a request context that contains a chi RequestID,
// the returned logger automatically includes request_id in all log entries,
// followed by any attributes added with AddAttrs.
//
// Usage:
//
//	func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("listing rows", "grid_id", gridID)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	for _, a := range RequestAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	importLogger := logging.WithFields(ctx,
//	    "grid_id", gridID,
//	    "format", "xlsx",
//	)
//	importLogger.Info("import started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// ---- Request attributes ----

type ctxKey struct{}

// requestAttrs is shared by pointer so middleware that runs before the
// attributes are known still sees them once the handler returns.
type requestAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// WithRequestAttrs installs an empty attribute holder in ctx. Call it once,
// at the outermost logging middleware.
func WithRequestAttrs(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, &requestAttrs{})
}

// AddAttrs attaches attributes to the current request. It is a no-op when
// ctx carries no holder.
func AddAttrs(ctx context.Context, attrs ...slog.Attr) {
	ra, ok := ctx.Value(ctxKey{}).(*requestAttrs)
	if !ok {
		return
	}
	ra.mu.Lock()
	ra.attrs = append(ra.attrs, attrs...)
	ra.mu.Unlock()
}

// RequestAttrs returns a copy of the attributes added to the request.
func RequestAttrs(ctx context.Context) []slog.Attr {
	ra, ok := ctx.Value(ctxKey{}).(*requestAttrs)
	if !ok {
		return nil
	}
	ra.mu.Lock()
	defer ra.mu.Unlock()
	out := make([]slog.Attr, len(ra.attrs))
	copy(out, ra.attrs)
	return out
}
