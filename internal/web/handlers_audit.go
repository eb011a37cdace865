package web

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/logging"
	"github.com/google/uuid"
)

// auditExportPage is the number of entries fetched per query while exporting.
const auditExportPage = 1000

// parseAuditFilter reads gridId, action, from, to, limit and offset.
// Dates are inclusive; to=2024-01-31 covers the whole day.
func parseAuditFilter(r *http.Request) (core.AuditFilter, error) {
	q := r.URL.Query()
	f := core.AuditFilter{
		Action: core.AuditAction(q.Get("action")),
		Limit:  parseIntParam(r, "limit", core.DefaultAuditLimit),
		Offset: parseIntParam(r, "offset", 0),
	}

	if raw := q.Get("gridId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, core.NewValidationError("gridId", "gridId must be a UUID")
		}
		f.GridID = id
	}

	var err error
	if f.StartTime, err = parseTimeParam(r, "from", false); err != nil {
		return f, err
	}
	if f.EndTime, err = parseTimeParam(r, "to", true); err != nil {
		return f, err
	}
	return f, nil
}

// handleAuditLog returns audit entries, newest first. Administrators only.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	entries, err := s.service.AuditLog(r.Context(), principal(r), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// handleAuditLogExport streams matching audit entries as CSV, one page at a time.
func (s *Server) handleAuditLogExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	filter.Limit = auditExportPage
	filter.Offset = 0

	// Authorize before any header is written.
	entries, err := s.service.AuditLog(r.Context(), principal(r), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("audit_log_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"ID", "Timestamp", "Action", "Severity", "Grid",
		"User", "IP Address", "Row", "Column",
		"Old Value", "New Value", "Rows Affected", "Reason",
	})

	for {
		for _, e := range entries {
			cw.Write(auditRecord(e))
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			logging.FromContext(r.Context()).Warn("audit export aborted", "error", err)
			return
		}
		if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logging.FromContext(r.Context()).Warn("audit export flush failed", "error", err)
			return
		}

		if len(entries) < filter.Limit {
			return
		}
		filter.Offset += filter.Limit
		entries, err = s.service.AuditLog(r.Context(), principal(r), filter)
		if err != nil {
			// Headers are sent; the truncated file is all the client gets.
			logging.FromContext(r.Context()).Error("audit export failed", "error", err, "offset", filter.Offset)
			return
		}
	}
}

func auditRecord(e core.AuditEntry) []string {
	rowID := ""
	if e.RowID != uuid.Nil {
		rowID = e.RowID.String()
	}
	gridID := ""
	if e.GridID != uuid.Nil {
		gridID = e.GridID.String()
	}
	return []string{
		e.ID.String(),
		e.CreatedAt.UTC().Format(time.RFC3339),
		string(e.Action),
		string(e.Severity),
		gridID,
		e.UserID,
		e.IPAddress,
		rowID,
		e.ColumnName,
		e.OldValue,
		e.NewValue,
		strconv.Itoa(e.RowsAffected),
		e.Reason,
	}
}
