package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ListRows returns the rows of a grid p may read.
func (s *Service) ListRows(ctx context.Context, p Principal, gridID uuid.UUID) ([]Row, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpRead); err != nil {
		return nil, err
	}
	rows, err := s.store.ListRows(ctx, gridID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return rows, nil
}

// GetRow returns one row if p may read its grid.
func (s *Service) GetRow(ctx context.Context, p Principal, rowID uuid.UUID) (Row, error) {
	row, _, err := s.authorizeRow(ctx, p, rowID, OpRead)
	return row, err
}

// CreateRow validates and stores one row.
func (s *Service) CreateRow(ctx context.Context, p Principal, gridID uuid.UUID, in RowInput) (Row, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpWrite); err != nil {
		return Row{}, err
	}
	cols, err := s.columns(ctx, gridID)
	if err != nil {
		return Row{}, err
	}

	norm, err := s.validateRow(cols, in, true)
	if err != nil {
		return Row{}, err
	}

	row, err := s.store.InsertRow(ctx, gridID, norm)
	if err != nil {
		return Row{}, fmt.Errorf("insert row: %w", err)
	}

	s.logAudit(ctx, p, AuditEntry{Action: ActionRowCreate, GridID: gridID, RowID: row.ID, RowsAffected: 1})
	return row, nil
}

// CreateRows validates a batch and stores it in one transaction. The first
// invalid row fails the whole batch and nothing is stored.
func (s *Service) CreateRows(ctx context.Context, p Principal, gridID uuid.UUID, inputs []RowInput) ([]Row, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpWrite); err != nil {
		return nil, err
	}
	cols, err := s.columns(ctx, gridID)
	if err != nil {
		return nil, err
	}

	norm, err := s.validateBatch(cols, inputs)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.InsertRows(ctx, gridID, norm)
	if err != nil {
		return nil, fmt.Errorf("insert rows: %w", err)
	}

	s.logger.Info("rows created", slog.String("grid_id", gridID.String()), slog.Int("rows", len(rows)))
	s.logAudit(ctx, p, AuditEntry{Action: ActionBatchCreate, GridID: gridID, RowsAffected: len(rows)})
	return rows, nil
}

// PreviewRows validates a batch and reports every failing row without
// storing anything.
func (s *Service) PreviewRows(ctx context.Context, p Principal, gridID uuid.UUID, inputs []RowInput) (BatchReport, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpWrite); err != nil {
		return BatchReport{}, err
	}
	cols, err := s.columns(ctx, gridID)
	if err != nil {
		return BatchReport{}, err
	}

	start := s.now()
	report := PreviewBatch(cols, inputs)
	s.metrics.ObserveValidation("preview", report.OK(), s.now().Sub(start))
	return report, nil
}

// UpdateRow replaces a row's values and status. version must be the version
// the caller read; a stale version fails with ErrConflict.
func (s *Service) UpdateRow(ctx context.Context, p Principal, rowID uuid.UUID, version int64, in RowInput) (Row, error) {
	current, _, err := s.authorizeRow(ctx, p, rowID, OpWrite)
	if err != nil {
		return Row{}, err
	}
	cols, err := s.columns(ctx, current.GridID)
	if err != nil {
		return Row{}, err
	}

	norm, err := s.validateRow(cols, in, true)
	if err != nil {
		return Row{}, err
	}

	updated, err := s.store.UpdateRow(ctx, rowID, version, norm)
	if err != nil {
		return Row{}, fmt.Errorf("update row %s: %w", rowID, err)
	}

	s.logAudit(ctx, p, AuditEntry{Action: ActionRowUpdate, GridID: current.GridID, RowID: rowID, RowsAffected: 1})
	return updated, nil
}

// UpdateCellRequest edits one cell of a row.
type UpdateCellRequest struct {
	Column  string `json:"column"`  // Column name, or "status" for the row status
	Value   string `json:"value"`   // New raw value
	Version int64  `json:"version"` // Version the caller read
}

// statusField is the pseudo-column used to edit a row's status in place.
const statusField = "status"

// UpdateCell validates and stores a single cell edit. Other cells are not
// revalidated, so a row written under an older schema stays editable.
func (s *Service) UpdateCell(ctx context.Context, p Principal, rowID uuid.UUID, req UpdateCellRequest) (Row, error) {
	current, _, err := s.authorizeRow(ctx, p, rowID, OpWrite)
	if err != nil {
		return Row{}, err
	}
	cols, err := s.columns(ctx, current.GridID)
	if err != nil {
		return Row{}, err
	}

	next := NormalizedRow{Values: current.Values.Clone(), Status: current.Status}
	oldValue, _ := current.Values.Get(req.Column)
	var newValue string

	if _, isColumn := ColumnByName(cols, req.Column); !isColumn && strings.EqualFold(req.Column, statusField) {
		st, err := ParseStatus(req.Value)
		if err != nil {
			return Row{}, err
		}
		oldValue = string(current.Status)
		next.Status = st
		newValue = string(st)
	} else {
		patch := RowInput{Values: NewValues(req.Column, req.Value)}
		norm, err := s.validateRow(cols, patch, false)
		if err != nil {
			return Row{}, err
		}
		val, _ := norm.Values.Get(req.Column)
		next.Values.Set(req.Column, val)
		newValue = val
	}

	updated, err := s.store.UpdateRow(ctx, rowID, req.Version, next)
	if err != nil {
		return Row{}, fmt.Errorf("update cell: %w", err)
	}

	s.logAudit(ctx, p, AuditEntry{
		Action:     ActionCellEdit,
		GridID:     current.GridID,
		RowID:      rowID,
		ColumnName: req.Column,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
	return updated, nil
}

// DeleteRow deletes one row.
func (s *Service) DeleteRow(ctx context.Context, p Principal, rowID uuid.UUID) error {
	current, _, err := s.authorizeRow(ctx, p, rowID, OpDelete)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRow(ctx, rowID); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	s.logAudit(ctx, p, AuditEntry{Action: ActionRowDelete, GridID: current.GridID, RowID: rowID, RowsAffected: 1})
	return nil
}

// DeleteRows deletes rows of one grid. If any id is unknown or belongs to
// another grid, nothing is deleted and ErrNotFound is returned.
func (s *Service) DeleteRows(ctx context.Context, p Principal, gridID uuid.UUID, ids []uuid.UUID) (int, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpDelete); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, NewValidationError("", "no rows provided")
	}

	n, err := s.store.DeleteRows(ctx, gridID, dedupeIDs(ids))
	if err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}

	s.logger.Info("rows deleted", slog.String("grid_id", gridID.String()), slog.Int("rows", n))
	s.logAudit(ctx, p, AuditEntry{Action: ActionBatchDelete, GridID: gridID, RowsAffected: n})
	return n, nil
}

// authorizeRow loads a row and authorizes op on its grid.
func (s *Service) authorizeRow(ctx context.Context, p Principal, rowID uuid.UUID, op Operation) (Row, Grid, error) {
	if !p.Authenticated() {
		return Row{}, Grid{}, s.check(denyAnonymous, op)
	}
	row, err := s.store.GetRow(ctx, rowID)
	if err != nil {
		return Row{}, Grid{}, fmt.Errorf("get row %s: %w", rowID, err)
	}
	g, err := s.authorizeGrid(ctx, p, row.GridID, op)
	if err != nil {
		return Row{}, Grid{}, err
	}
	return row, g, nil
}

func (s *Service) validateRow(cols []Column, in RowInput, requireAll bool) (NormalizedRow, error) {
	start := s.now()
	norm, err := ValidateRow(cols, in, requireAll)
	s.metrics.ObserveValidation("row", err == nil, s.now().Sub(start))
	return norm, err
}

func (s *Service) validateBatch(cols []Column, inputs []RowInput) ([]NormalizedRow, error) {
	start := s.now()
	norm, err := ValidateBatch(cols, inputs)
	s.metrics.ObserveValidation("batch", err == nil, s.now().Sub(start))
	return norm, err
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
