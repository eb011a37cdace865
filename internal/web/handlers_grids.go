package web

import (
	"net/http"

	"github.com/JonMunkholm/datagrid/internal/core"
)

// handleListTypes returns the supported column data types.
func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": s.service.ListTypes()})
}

// handleListGrids returns the grids visible to the caller.
func (s *Server) handleListGrids(w http.ResponseWriter, r *http.Request) {
	grids, err := s.service.ListGrids(r.Context(), principal(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if grids == nil {
		grids = []core.Grid{}
	}
	writeJSON(w, http.StatusOK, grids)
}

func (s *Server) handleCreateGrid(w http.ResponseWriter, r *http.Request) {
	var in core.GridInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	grid, err := s.service.CreateGrid(r.Context(), principal(r), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grid)
}

func (s *Server) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	grid, err := s.service.GetGrid(r.Context(), principal(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

func (s *Server) handleUpdateGrid(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var in core.GridInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	grid, err := s.service.UpdateGrid(r.Context(), principal(r), id, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// handleDeleteGrid deletes a grid with its columns, rows and grants.
func (s *Server) handleDeleteGrid(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteGrid(r.Context(), principal(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
