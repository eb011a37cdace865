package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/datagrid/internal/auth"
	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustedRealIP(t *testing.T) {
	mw := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.5", "not-a-cidr"})

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted proxy headers ignored", "203.0.113.9:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9"},
		{"trusted X-Real-IP", "10.1.2.3:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"trusted single address", "192.168.1.5:80", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "5.6.7.8"},
		{"trusted but invalid header", "10.1.2.3:4000", map[string]string{"X-Real-IP": "garbage"}, "10.1.2.3"},
		{"no headers", "10.1.2.3:4000", nil, "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = r.RemoteAddr }))

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubResolver struct {
	p   core.Principal
	err error
}

func (s stubResolver) Resolve(*http.Request) (core.Principal, error) { return s.p, s.err }

func TestAuthenticate(t *testing.T) {
	var seen core.Principal
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	reject := func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	}

	t.Run("stores principal", func(t *testing.T) {
		p := core.Principal{UserID: "alice"}
		rec := httptest.NewRecorder()
		Authenticate(stubResolver{p: p}, reject)(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, p, seen)
	})

	t.Run("rejects bad credentials", func(t *testing.T) {
		seen = core.Principal{}
		rec := httptest.NewRecorder()
		Authenticate(stubResolver{err: errors.New("bad token")}, reject)(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, seen.Authenticated())
	})
}

func TestLogger_IncludesUserID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "info", "text"))
	defer slog.SetDefault(prev)

	h := Logger(Authenticate(stubResolver{p: core.Principal{UserID: "alice"}}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}),
	))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/grids", nil))

	out := buf.String()
	assert.Contains(t, out, "user_id=alice")
	assert.Contains(t, out, "status=201")
	assert.Contains(t, out, "path=/api/grids")
}

func TestLogger_LevelAndSize(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "info", "text"))
	defer slog.SetDefault(prev)

	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/grids/x", nil))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "bytes=7")
}

func TestLogger_PassesFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page"))
		require.NoError(t, http.NewResponseController(w).Flush())
	}))
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.True(t, rec.Flushed)
}

type recordedRequest struct {
	route  string
	status int
}

type recorder struct{ got []recordedRequest }

func (r *recorder) ObserveRequest(route, _ string, status int, _ time.Duration) {
	r.got = append(r.got, recordedRequest{route, status})
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	rec := &recorder{}
	router := chi.NewRouter()
	router.Use(Metrics(rec))
	router.Get("/api/grids/{gridID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/grids/123", nil))

	require.Len(t, rec.got, 1)
	assert.Equal(t, recordedRequest{"/api/grids/{gridID}", http.StatusTeapot}, rec.got[0])
}
