package web

import (
	"net/http"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
)

// rowError locates one failed row in a batch report. Row is 1-based.
type rowError struct {
	Row     int    `json:"row,omitempty"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// batchReportResponse is the wire form of core.BatchReport.
type batchReportResponse struct {
	Total   int        `json:"total"`
	Valid   int        `json:"valid"`
	Invalid int        `json:"invalid"`
	Errors  []rowError `json:"errors"`
}

func newBatchReportResponse(rep core.BatchReport) batchReportResponse {
	resp := batchReportResponse{
		Total:   rep.Total,
		Valid:   rep.Valid,
		Invalid: rep.Invalid,
		Errors:  make([]rowError, 0, len(rep.Errors)),
	}
	for _, ve := range rep.Errors {
		e := rowError{Column: ve.Column, Message: ve.Error()}
		if ve.Row >= 0 {
			e.Row = ve.Row + 1
		}
		resp.Errors = append(resp.Errors, e)
	}
	return resp
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rows, err := s.service.ListRows(r.Context(), principal(r), gridID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := uuidParam(r, "rowID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	row, err := s.service.GetRow(r.Context(), principal(r), rowID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleCreateRow(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var in core.RowInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	row, err := s.service.CreateRow(r.Context(), principal(r), gridID, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// handleCreateRows stores a JSON array of rows as one batch. The first
// invalid row rejects the whole batch.
func (s *Server) handleCreateRows(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var inputs []core.RowInput
	if err := decodeJSON(w, r, &inputs); err != nil {
		s.respondError(w, r, err)
		return
	}

	rows, err := s.service.CreateRows(r.Context(), principal(r), gridID, inputs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.Row{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"created": len(rows),
		"rows":    rows,
	})
}

// handlePreviewRows validates a batch and reports every failing row.
// Nothing is stored.
func (s *Server) handlePreviewRows(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var inputs []core.RowInput
	if err := decodeJSON(w, r, &inputs); err != nil {
		s.respondError(w, r, err)
		return
	}

	report, err := s.service.PreviewRows(r.Context(), principal(r), gridID, inputs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchReportResponse(report))
}

// handleDeleteRows deletes the listed rows of a grid, all or nothing.
func (s *Server) handleDeleteRows(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req struct {
		RowIDs []uuid.UUID `json:"rowIds"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.RowIDs) == 0 {
		s.respondError(w, r, core.NewValidationError("rowIds", "no rows specified"))
		return
	}

	deleted, err := s.service.DeleteRows(r.Context(), principal(r), gridID, req.RowIDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// updateRowRequest replaces a row. Version must match the stored row.
type updateRowRequest struct {
	Values  core.Values `json:"values"`
	Status  string      `json:"status,omitempty"`
	Version int64       `json:"version"`
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := uuidParam(r, "rowID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req updateRowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	in := core.RowInput{Values: req.Values, Status: req.Status}
	row, err := s.service.UpdateRow(r.Context(), principal(r), rowID, req.Version, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleUpdateCell edits one cell. Only the edited cell is validated.
func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	rowID, err := uuidParam(r, "rowID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req core.UpdateCellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Column == "" {
		s.respondError(w, r, core.NewValidationError("column", "column is required"))
		return
	}

	row, err := s.service.UpdateCell(r.Context(), principal(r), rowID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := uuidParam(r, "rowID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteRow(r.Context(), principal(r), rowID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
