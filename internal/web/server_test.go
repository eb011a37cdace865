package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/datagrid/internal/auth"
	"github.com/JonMunkholm/datagrid/internal/config"
	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/importer"
	"github.com/JonMunkholm/datagrid/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxRows:       100,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       10 * time.Second,
		},
		Rate:     config.RateLimitConfig{Enabled: false},
		Security: config.SecurityConfig{EnableCSP: true},
		Metrics:  config.MetricsConfig{Path: "/metrics"},
	}
}

type testEnv struct {
	server   *Server
	resolver *auth.Resolver
	admin    string
	alice    string
	bob      string
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	svc := core.NewService(memory.New(),
		core.WithImportLimits(cfg.Import.MaxRows, cfg.Import.Timeout),
		core.WithOpenGridCreation(true),
	)
	resolver := auth.NewResolver(testSecret)

	issue := func(user string, roles ...string) string {
		tok, err := resolver.Issue(user, roles, time.Hour)
		require.NoError(t, err)
		return tok
	}

	return &testEnv{
		server:   NewServer(cfg, svc, resolver),
		resolver: resolver,
		admin:    issue("root", auth.DefaultAdminRole),
		alice:    issue("alice", "User"),
		bob:      issue("bob", "User"),
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:5000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// setupGrid creates a grid owned by alice with a required Title and an
// optional Amount column.
func (e *testEnv) setupGrid(t *testing.T) core.Grid {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/grids", e.alice, core.GridInput{Name: "Tasks"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	grid := decode[core.Grid](t, rec)

	for _, col := range []map[string]any{
		{"name": "Title", "dataType": "String", "isRequired": true},
		{"name": "Amount", "dataType": "Numeric"},
	} {
		rec := e.do(t, http.MethodPost, "/api/grids/"+grid.ID.String()+"/columns", e.alice, col)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	return grid
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", core.NewValidationError("Title", "missing"), http.StatusBadRequest},
		{"unauthorized", core.ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("write grid: %w", core.ErrForbidden), http.StatusForbidden},
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"conflict", core.ErrConflict, http.StatusConflict},
		{"rate limited", errRateLimited, http.StatusTooManyRequests},
		{"method", errMethodNotAllowed, http.StatusMethodNotAllowed},
		{"imports busy", core.ErrTooManyImports, http.StatusServiceUnavailable},
		{"too many rows", core.ErrTooManyRows, http.StatusRequestEntityTooLarge},
		{"file too large", importer.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"unsupported", importer.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{"no file", importer.ErrNoFile, http.StatusBadRequest},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "imports")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	t.Run("anonymous", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/grids", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("bad token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/grids", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.NotEmpty(t, resp.Code)
	})
}

func TestGridLifecycle(t *testing.T) {
	env := newTestEnv(t)
	grid := env.setupGrid(t)
	base := "/api/grids/" + grid.ID.String()

	rec := env.do(t, http.MethodGet, "/api/types", env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ExternalCollection")

	rec = env.do(t, http.MethodGet, base+"/columns", env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cols := decode[[]core.Column](t, rec)
	require.Len(t, cols, 2)
	assert.Equal(t, "Title", cols[0].Name)

	rec = env.do(t, http.MethodPost, base+"/rows", env.alice, map[string]any{
		"values": map[string]any{"Title": "Write report", "Amount": " 12.50 "},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	row := decode[core.Row](t, rec)
	amount, _ := row.Values.Get("Amount")
	assert.Equal(t, "12.50", amount)
	assert.Equal(t, core.StatusToDo, row.Status)

	rowPath := "/api/rows/" + row.ID.String()

	rec = env.do(t, http.MethodPatch, rowPath+"/cells", env.alice, core.UpdateCellRequest{
		Column: "Amount", Value: "3", Version: row.Version,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[core.Row](t, rec)
	assert.Greater(t, edited.Version, row.Version)

	// The old version is stale now.
	rec = env.do(t, http.MethodPatch, rowPath+"/cells", env.alice, core.UpdateCellRequest{
		Column: "Amount", Value: "4", Version: row.Version,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, rowPath, env.alice, map[string]any{
		"values":  map[string]any{"Title": "Final report"},
		"status":  "finished",
		"version": edited.Version,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.StatusFinished, decode[core.Row](t, rec).Status)

	rec = env.do(t, http.MethodDelete, rowPath, env.alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, rowPath, env.alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, base, env.alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, base, env.alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRow_ValidationError(t *testing.T) {
	env := newTestEnv(t)
	grid := env.setupGrid(t)

	rec := env.do(t, http.MethodPost, "/api/grids/"+grid.ID.String()+"/rows", env.alice, map[string]any{
		"values": map[string]any{"Amount": "1"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Title", resp.Column)
	assert.Equal(t, "VAL001", resp.Code)
	assert.Zero(t, resp.Row)
}

func TestCreateRows_AllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	grid := env.setupGrid(t)
	base := "/api/grids/" + grid.ID.String()

	batch := []map[string]any{
		{"values": map[string]any{"Title": "a", "Amount": "1"}},
		{"values": map[string]any{"Title": "b", "Amount": "x"}},
	}

	rec := env.do(t, http.MethodPost, base+"/rows/batch", env.alice, batch)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, 2, resp.Row)
	assert.Equal(t, "Amount", resp.Column)

	rec = env.do(t, http.MethodGet, base+"/rows", env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]core.Row](t, rec))

	rec = env.do(t, http.MethodPost, base+"/rows/preview", env.alice, batch)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[batchReportResponse](t, rec)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Invalid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Row)

	batch[1]["values"] = map[string]any{"Title": "b", "Amount": "2"}
	rec = env.do(t, http.MethodPost, base+"/rows/batch", env.alice, batch)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[struct {
		Created int        `json:"created"`
		Rows    []core.Row `json:"rows"`
	}](t, rec)
	require.Equal(t, 2, created.Created)

	rec = env.do(t, http.MethodPost, base+"/rows/batch-delete", env.alice, map[string]any{
		"rowIds": []string{created.Rows[0].ID.String(), created.Rows[1].ID.String()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[map[string]int](t, rec)["deleted"])
}

func TestAccess(t *testing.T) {
	env := newTestEnv(t)
	grid := env.setupGrid(t)
	base := "/api/grids/" + grid.ID.String()

	rec := env.do(t, http.MethodGet, base+"/rows", env.bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, base+"/grants/bob", env.alice, map[string]string{"permissionType": "read"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, base+"/rows", env.bob, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Grantees read but do not write.
	rec = env.do(t, http.MethodPost, base+"/rows", env.bob, map[string]any{"values": map[string]any{"Title": "x"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, base+"/grants", env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Grant](t, rec), 1)

	rec = env.do(t, http.MethodDelete, base+"/grants/bob", env.alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, base+"/rows", env.bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The grid is invisible to bob in listings.
	rec = env.do(t, http.MethodGet, "/api/grids", env.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]core.Grid](t, rec))
}

func TestAuditLog(t *testing.T) {
	env := newTestEnv(t)
	grid := env.setupGrid(t)

	rec := env.do(t, http.MethodGet, "/api/audit-log", env.alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/audit-log?gridId="+grid.ID.String()+"&action=column_create", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Entries []core.AuditEntry `json:"entries"`
	}](t, rec)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "alice", body.Entries[0].UserID)
	assert.Equal(t, "192.0.2.10", body.Entries[0].IPAddress)

	rec = env.do(t, http.MethodGet, "/api/audit-log?from=yesterday", env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/audit-log/export?action=grid_create", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Timestamp,Action"))
	assert.Contains(t, lines[1], "grid_create")
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, path, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestImportRows(t *testing.T) {
	env := newTestEnv(t)
	grid := env.setupGrid(t)
	path := "/api/grids/" + grid.ID.String() + "/rows/import"

	t.Run("csv", func(t *testing.T) {
		rec := env.upload(t, path, env.alice, "tasks.csv", "Title,Amount,Status\nFirst,1,ToDo\nSecond,2.5,finished\n")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decode[importResponse](t, rec)
		assert.Equal(t, "csv", resp.Format)
		assert.Equal(t, 2, resp.Imported)
		assert.False(t, resp.DryRun)
	})

	t.Run("dry run reports every error", func(t *testing.T) {
		rec := env.upload(t, path+"?dryRun=true", env.alice, "tasks.csv", "Title,Amount\n,1\nok,x\nfine,3\n")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[importResponse](t, rec)
		assert.True(t, resp.DryRun)
		assert.Zero(t, resp.Imported)
		assert.Equal(t, 3, resp.Report.Total)
		assert.Equal(t, 2, resp.Report.Invalid)
		require.Len(t, resp.Report.Errors, 2)
		assert.Equal(t, 1, resp.Report.Errors[0].Row)
		assert.Equal(t, 2, resp.Report.Errors[1].Row)
	})

	t.Run("invalid row rejects file", func(t *testing.T) {
		rec := env.upload(t, path, env.alice, "tasks.csv", "Title,Amount\nok,1\nbad,x\n")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 2, decode[ErrorResponse](t, rec).Row)
	})

	t.Run("unsupported format", func(t *testing.T) {
		rec := env.upload(t, path, env.alice, "tasks.pdf", "%PDF-1.4")
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("no file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "empty"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, path, &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+env.alice)
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "IMP005", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("reader cannot import", func(t *testing.T) {
		rec := env.upload(t, path, env.bob, "tasks.csv", "Title\nx\n")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	rec := env.do(t, http.MethodGet, "/api/grids/"+grid.ID.String()+"/rows", env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Row](t, rec), 2)
}

func TestImportRows_FileTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Import.MaxFileSize = 64 })
	grid := env.setupGrid(t)

	content := "Title\n" + strings.Repeat("a very long title\n", 20)
	rec := env.upload(t, "/api/grids/"+grid.ID.String()+"/rows/import", env.alice, "big.csv", content)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t)
	grid := env.setupGrid(t)

	t.Run("malformed id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/grids/not-a-uuid", env.alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/grids/"+grid.ID.String()+"/rows", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+env.alice)
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/grids", env.alice, map[string]any{"title": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/nope", env.alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := env.do(t, http.MethodPatch, "/api/grids", env.alice, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestErrorPage_HTML(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>")
	assert.Contains(t, rec.Body.String(), "NF001")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}
	})
	t.Cleanup(func() {
		env.server.limiter.stop()
		env.server.importLimiter.stop()
	})

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/healthz", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("a"))
}
