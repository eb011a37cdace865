package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/importer"
)

// multipartSlack covers multipart boundaries and headers on top of the file.
const multipartSlack = 1 << 20

// importResponse is the wire form of core.ImportResult.
type importResponse struct {
	Format   string              `json:"format"`
	Total    int                 `json:"total"`
	Imported int                 `json:"imported"`
	DryRun   bool                `json:"dryRun"`
	Report   batchReportResponse `json:"report"`
}

// handleImportRows imports an uploaded .xlsx or .csv file into a grid.
// With ?dryRun=true every row is validated and all failures are reported;
// otherwise the file is stored as one batch or not at all.
func (s *Server) handleImportRows(w http.ResponseWriter, r *http.Request) {
	gridID, err := uuidParam(r, "gridID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartSlack)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, fmt.Errorf("%w: %w", importer.ErrFileTooLarge, err))
			return
		}
		s.respondError(w, r, core.NewValidationError("file", "invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, importer.ErrNoFile)
		return
	}
	defer file.Close()

	src, err := importer.Open(header.Filename, file, maxSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.ImportRows(r.Context(), principal(r), gridID, src, parseBoolParam(r, "dryRun"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.DryRun {
		status = http.StatusOK
	}
	writeJSON(w, status, importResponse{
		Format:   result.Format,
		Total:    result.Total,
		Imported: result.Imported,
		DryRun:   result.DryRun,
		Report:   newBatchReportResponse(result.Report),
	})
}
