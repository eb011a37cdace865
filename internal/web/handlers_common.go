package web

// Shared request parsing helpers used across handlers.

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/datagrid/internal/auth"
	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxJSONBody bounds JSON request bodies. Large batches belong in imports.
const maxJSONBody = 8 << 20

var errEmptyBody = core.NewValidationError("", "request body is empty")

// principal returns the caller resolved by the Authenticate middleware.
func principal(r *http.Request) core.Principal {
	return auth.PrincipalFromContext(r.Context())
}

// uuidParam parses a UUID route parameter. A malformed id cannot name an
// existing resource, so it reads as not found.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &notFoundError{what: name, id: raw}
	}
	return id, nil
}

type notFoundError struct {
	what string
	id   string
}

func (e *notFoundError) Error() string { return e.what + " " + e.id + ": not found" }
func (e *notFoundError) Unwrap() error { return core.ErrNotFound }

// decodeJSON reads a JSON body into v. Malformed bodies are validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return core.NewValidationError("", "invalid request body: %v", err)
	}
	return nil
}

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// parseBoolParam reads "true"/"1" style query flags.
func parseBoolParam(r *http.Request, name string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && b
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates. A plain date
// used as an upper bound covers the whole day.
func parseTimeParam(r *http.Request, name string, endOfDay bool) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, core.NewValidationError(name, "%s must be a date (2006-01-02) or an RFC 3339 timestamp", name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
