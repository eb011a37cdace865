package middleware

import (
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/datagrid/internal/auth"
	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/logging"
)

// PrincipalResolver turns request credentials into a principal.
type PrincipalResolver interface {
	Resolve(r *http.Request) (core.Principal, error)
}

// ErrorResponder writes an error response for a rejected request.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// Authenticate resolves the request principal and stores it in the context
// for handlers (auth.PrincipalFromContext). Requests without credentials
// continue as anonymous; the core decides what anonymous callers may do.
// Presented but invalid credentials are rejected through onError.
func Authenticate(resolver PrincipalResolver, onError ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolver.Resolve(r)
			if err != nil {
				logging.FromContext(r.Context()).Warn("auth: rejected credentials",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err.Error(),
				)
				onError(w, r, err)
				return
			}

			ctx := r.Context()
			if p.Authenticated() {
				logging.AddAttrs(ctx, slog.String("user_id", p.UserID))
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(ctx, p)))
		})
	}
}
