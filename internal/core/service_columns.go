package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ListColumns returns a grid's columns in position order.
func (s *Service) ListColumns(ctx context.Context, p Principal, gridID uuid.UUID) ([]Column, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpRead); err != nil {
		return nil, err
	}
	return s.columns(ctx, gridID)
}

// AddColumn validates and appends a column to a grid. A zero Position places
// it after the existing columns.
func (s *Service) AddColumn(ctx context.Context, p Principal, gridID uuid.UUID, col Column) (Column, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpWrite); err != nil {
		return Column{}, err
	}

	existing, err := s.store.ListColumns(ctx, gridID)
	if err != nil {
		return Column{}, fmt.Errorf("list columns: %w", err)
	}

	col = NormalizeColumn(col)
	col.ID = uuid.Nil
	col.GridID = gridID
	if err := s.validateColumn(existing, col); err != nil {
		return Column{}, err
	}
	if col.Position == 0 {
		col.Position = nextPosition(existing)
	}

	created, err := s.store.CreateColumn(ctx, col)
	if err != nil {
		return Column{}, fmt.Errorf("create column: %w", err)
	}
	s.invalidateColumns(ctx, gridID)

	s.logger.Info("column added",
		slog.String("grid_id", gridID.String()),
		slog.String("column", created.Name),
		slog.String("type", string(created.Type)),
	)
	s.logAudit(ctx, p, AuditEntry{Action: ActionColumnCreate, GridID: gridID, ColumnName: created.Name, NewValue: string(created.Type)})
	return created, nil
}

// UpdateColumn replaces a column definition. Rows already stored are not
// revalidated.
func (s *Service) UpdateColumn(ctx context.Context, p Principal, columnID uuid.UUID, col Column) (Column, error) {
	if !p.Authenticated() {
		return Column{}, s.check(denyAnonymous, OpWrite)
	}
	current, err := s.store.GetColumn(ctx, columnID)
	if err != nil {
		return Column{}, fmt.Errorf("get column %s: %w", columnID, err)
	}
	if _, err := s.authorizeGrid(ctx, p, current.GridID, OpWrite); err != nil {
		return Column{}, err
	}

	existing, err := s.store.ListColumns(ctx, current.GridID)
	if err != nil {
		return Column{}, fmt.Errorf("list columns: %w", err)
	}

	col = NormalizeColumn(col)
	col.ID = current.ID
	col.GridID = current.GridID
	if col.Position == 0 {
		col.Position = current.Position
	}
	if err := s.validateColumn(existing, col); err != nil {
		return Column{}, err
	}

	updated, err := s.store.UpdateColumn(ctx, col)
	if err != nil {
		return Column{}, fmt.Errorf("update column: %w", err)
	}
	s.invalidateColumns(ctx, current.GridID)

	s.logAudit(ctx, p, AuditEntry{
		Action:     ActionColumnUpdate,
		GridID:     current.GridID,
		ColumnName: updated.Name,
		OldValue:   current.Name,
		NewValue:   updated.Name,
	})
	return updated, nil
}

// DeleteColumn removes a column. Values stored under its name stay in
// existing rows and are ignored on read.
func (s *Service) DeleteColumn(ctx context.Context, p Principal, columnID uuid.UUID) error {
	if !p.Authenticated() {
		return s.check(denyAnonymous, OpDelete)
	}
	current, err := s.store.GetColumn(ctx, columnID)
	if err != nil {
		return fmt.Errorf("get column %s: %w", columnID, err)
	}
	if _, err := s.authorizeGrid(ctx, p, current.GridID, OpDelete); err != nil {
		return err
	}

	if err := s.store.DeleteColumn(ctx, columnID); err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	s.invalidateColumns(ctx, current.GridID)

	s.logAudit(ctx, p, AuditEntry{Action: ActionColumnDelete, GridID: current.GridID, ColumnName: current.Name})
	return nil
}

func (s *Service) validateColumn(existing []Column, col Column) error {
	start := s.now()
	err := ValidateColumnSet(existing, col)
	s.metrics.ObserveValidation("column", err == nil, s.now().Sub(start))
	return err
}

func nextPosition(columns []Column) int {
	highest := 0
	for _, c := range columns {
		if c.Position > highest {
			highest = c.Position
		}
	}
	return highest + 1
}
