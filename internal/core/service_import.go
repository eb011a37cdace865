package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrTooManyRows is returned when an import file exceeds the row limit.
var ErrTooManyRows = errors.New("too many rows in import file")

// ImportSource yields row payloads from an uploaded file. columns is the
// grid's snapshot, which the source uses to map its header row.
type ImportSource interface {
	Format() string
	Rows(ctx context.Context, columns []Column) ([]RowInput, error)
}

// ImportResult is the outcome of ImportRows.
type ImportResult struct {
	Format   string      `json:"format"`
	Total    int         `json:"total"`
	Imported int         `json:"imported"`
	DryRun   bool        `json:"dryRun"`
	Report   BatchReport `json:"report"`
	Rows     []Row       `json:"-"`
}

// ImportRows reads src and stores its rows as one batch. With dryRun set the
// rows are only validated and every failure is reported in Report. Otherwise
// the first invalid row fails the import and nothing is stored.
//
// Imports hold a limiter slot for their whole duration and run under the
// configured import timeout.
func (s *Service) ImportRows(ctx context.Context, p Principal, gridID uuid.UUID, src ImportSource, dryRun bool) (ImportResult, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpWrite); err != nil {
		return ImportResult{}, err
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	start := s.now()
	result, err := s.runImport(ctx, p, gridID, src, dryRun)
	s.metrics.ObserveImport(src.Format(), result.Total, err == nil, s.now().Sub(start))
	if err != nil {
		s.logger.Warn("import failed",
			slog.String("grid_id", gridID.String()),
			slog.String("format", src.Format()),
			slog.String("error", err.Error()),
		)
		return result, err
	}
	return result, nil
}

func (s *Service) runImport(ctx context.Context, p Principal, gridID uuid.UUID, src ImportSource, dryRun bool) (ImportResult, error) {
	result := ImportResult{Format: src.Format(), DryRun: dryRun}

	cols, err := s.columns(ctx, gridID)
	if err != nil {
		return result, err
	}

	inputs, err := src.Rows(ctx, cols)
	if err != nil {
		return result, fmt.Errorf("read %s: %w", src.Format(), err)
	}
	result.Total = len(inputs)
	if len(inputs) > s.maxImportRows {
		return result, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(inputs), s.maxImportRows)
	}

	if dryRun {
		result.Report = PreviewBatch(cols, inputs)
		return result, nil
	}

	norm, err := s.validateBatch(cols, inputs)
	if err != nil {
		return result, err
	}

	rows, err := s.store.InsertRows(ctx, gridID, norm)
	if err != nil {
		return result, fmt.Errorf("insert rows: %w", err)
	}
	result.Imported = len(rows)
	result.Rows = rows
	result.Report = BatchReport{Total: len(inputs), Valid: len(rows)}

	s.logger.Info("rows imported",
		slog.String("grid_id", gridID.String()),
		slog.String("format", src.Format()),
		slog.Int("rows", len(rows)),
	)
	s.logAudit(ctx, p, AuditEntry{Action: ActionImport, GridID: gridID, RowsAffected: len(rows), Reason: src.Format()})
	return result, nil
}
