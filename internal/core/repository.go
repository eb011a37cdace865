package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GridStore persists grids. Delete cascades to columns, rows and grants.
type GridStore interface {
	CreateGrid(ctx context.Context, g Grid) (Grid, error)
	GetGrid(ctx context.Context, id uuid.UUID) (Grid, error)
	ListGrids(ctx context.Context) ([]Grid, error)
	UpdateGrid(ctx context.Context, g Grid) (Grid, error)
	DeleteGrid(ctx context.Context, id uuid.UUID) error
}

// ColumnStore persists column definitions. ListColumns returns them ordered
// by Position.
type ColumnStore interface {
	CreateColumn(ctx context.Context, c Column) (Column, error)
	GetColumn(ctx context.Context, id uuid.UUID) (Column, error)
	ListColumns(ctx context.Context, gridID uuid.UUID) ([]Column, error)
	UpdateColumn(ctx context.Context, c Column) (Column, error)
	DeleteColumn(ctx context.Context, id uuid.UUID) error
}

// RowStore persists rows.
//
// UpdateRow applies only when the stored version equals expectedVersion and
// returns ErrConflict otherwise. InsertRows is all-or-nothing. DeleteRows
// returns ErrNotFound, deleting nothing, unless every id belongs to the grid.
type RowStore interface {
	InsertRow(ctx context.Context, gridID uuid.UUID, r NormalizedRow) (Row, error)
	InsertRows(ctx context.Context, gridID uuid.UUID, rows []NormalizedRow) ([]Row, error)
	GetRow(ctx context.Context, id uuid.UUID) (Row, error)
	ListRows(ctx context.Context, gridID uuid.UUID) ([]Row, error)
	UpdateRow(ctx context.Context, id uuid.UUID, expectedVersion int64, r NormalizedRow) (Row, error)
	DeleteRow(ctx context.Context, id uuid.UUID) error
	DeleteRows(ctx context.Context, gridID uuid.UUID, ids []uuid.UUID) (int, error)
}

// GrantStore persists explicit grants. PutGrant upserts on (grid, user).
type GrantStore interface {
	GrantChecker
	PutGrant(ctx context.Context, g Grant) (Grant, error)
	ListGrants(ctx context.Context, gridID uuid.UUID) ([]Grant, error)
	DeleteGrant(ctx context.Context, gridID uuid.UUID, userID string) error
}

// AuditStore persists audit entries.
type AuditStore interface {
	InsertAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store bundles every port a Service needs.
type Store interface {
	GridStore
	ColumnStore
	RowStore
	GrantStore
	AuditStore
	Ping(ctx context.Context) error
}

// ColumnCache holds column snapshots per grid. Misses and cache errors fall
// through to the ColumnStore.
//
// Each grid has a generation that Invalidate advances. A refill reads the
// generation before loading columns from the store and passes it to
// SetColumns, which drops the snapshot if an invalidation happened since.
type ColumnCache interface {
	GetColumns(ctx context.Context, gridID uuid.UUID) ([]Column, bool, error)
	Generation(ctx context.Context, gridID uuid.UUID) (int64, error)
	SetColumns(ctx context.Context, gridID uuid.UUID, gen int64, columns []Column) error
	Invalidate(ctx context.Context, gridID uuid.UUID) error
}

// Recorder receives operational measurements. All methods must be safe to call
// concurrently.
type Recorder interface {
	ObserveValidation(kind string, ok bool, d time.Duration)
	ObserveAccess(op Operation, allowed bool)
	ObserveImport(format string, rows int, ok bool, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveValidation(string, bool, time.Duration) {}
func (nopRecorder) ObserveAccess(Operation, bool) {}
func (nopRecorder) ObserveImport(string, int, bool, time.Duration) {}
