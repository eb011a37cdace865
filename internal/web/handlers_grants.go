package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	grants, err := s.service.ListGrants(r.Context(), principal(r), gridID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if grants == nil {
		grants = []core.Grant{}
	}
	writeJSON(w, http.StatusOK, grants)
}

// handlePutGrant grants a user access to a private grid. The body is
// optional and may carry a permissionType label.
func (s *Server) handlePutGrant(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))

	var req struct {
		PermissionType string `json:"permissionType"`
	}
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.respondError(w, r, err)
		return
	}

	grant, err := s.service.PutGrant(r.Context(), principal(r), gridID, userID, req.PermissionType)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))

	if err := s.service.RevokeGrant(r.Context(), principal(r), gridID, userID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
