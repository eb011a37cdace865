package web

import (
	"net/http"

	"github.com/JonMunkholm/datagrid/internal/core"
)

func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	cols, err := s.service.ListColumns(r.Context(), principal(r), gridID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if cols == nil {
		cols = []core.Column{}
	}
	writeJSON(w, http.StatusOK, cols)
}

// handleAddColumn appends a column to a grid. Position and ids in the body
// are ignored; the store assigns them.
func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var col core.Column
	if err := decodeJSON(w, r, &col); err != nil {
		s.respondError(w, r, err)
		return
	}

	created, err := s.service.AddColumn(r.Context(), principal(r), gridID, col)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateColumn(w http.ResponseWriter, r *http.Request) {
	columnID, err := uuidParam(r, "columnID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var col core.Column
	if err := decodeJSON(w, r, &col); err != nil {
		s.respondError(w, r, err)
		return
	}

	updated, err := s.service.UpdateColumn(r.Context(), principal(r), columnID, col)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	columnID, err := uuidParam(r, "columnID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteColumn(r.Context(), principal(r), columnID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
