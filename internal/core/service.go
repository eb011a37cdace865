package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultImportTimeout bounds one import, parse through insert.
const DefaultImportTimeout = 5 * time.Minute

// DefaultMaxImportRows caps the rows accepted from one file.
const DefaultMaxImportRows = 50000

// Service runs grid, column, row, grant and audit operations. Every operation
// takes the acting Principal explicitly, authorizes it, validates against a
// single column snapshot and only then calls the store.
type Service struct {
	store   Store
	cache   ColumnCache
	policy  *Policy
	limiter *ImportLimiter
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time

	openGridCreation bool
	maxImportRows    int
	importTimeout    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithColumnCache enables the column snapshot cache.
func WithColumnCache(c ColumnCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithImportLimiter sets the limiter gating concurrent imports.
func WithImportLimiter(l *ImportLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithImportLimits bounds rows per import and the time one import may take.
// Non-positive values keep the defaults.
func WithImportLimits(maxRows int, timeout time.Duration) Option {
	return func(s *Service) {
		if maxRows > 0 {
			s.maxImportRows = maxRows
		}
		if timeout > 0 {
			s.importTimeout = timeout
		}
	}
}

// WithOpenGridCreation lets any authenticated principal create grids.
func WithOpenGridCreation(open bool) Option {
	return func(s *Service) { s.openGridCreation = open }
}

// WithClock overrides the time source used for audit entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		metrics:       nopRecorder{},
		logger:        slog.Default(),
		now:           time.Now,
		maxImportRows: DefaultMaxImportRows,
		importTimeout: DefaultImportTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultImportWait)
	}
	s.policy = NewPolicy(store, s.openGridCreation)
	return s
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Limiter returns the import limiter, for shutdown draining and status.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// ListTypes returns the supported column data types.
func (s *Service) ListTypes() []DataType {
	return KnownTypes()
}

// ---- Access helpers ----

// check records an access decision and converts a denial to an error.
func (s *Service) check(d Decision, op Operation) error {
	s.metrics.ObserveAccess(op, d.Allowed)
	return d.Err()
}

// authorizeGrid loads a grid and authorizes op on it. An anonymous principal
// is rejected before the lookup so it cannot probe for grid ids.
func (s *Service) authorizeGrid(ctx context.Context, p Principal, gridID uuid.UUID, op Operation) (Grid, error) {
	if !p.Authenticated() {
		return Grid{}, s.check(denyAnonymous, op)
	}

	g, err := s.store.GetGrid(ctx, gridID)
	if err != nil {
		return Grid{}, fmt.Errorf("get grid %s: %w", gridID, err)
	}

	d, err := s.policy.Authorize(ctx, p, g, op)
	if err != nil {
		return Grid{}, err
	}
	if err := s.check(d, op); err != nil {
		s.logger.Warn("access denied",
			slog.String("user_id", p.UserID),
			slog.String("grid_id", gridID.String()),
			slog.String("operation", string(op)),
		)
		return Grid{}, fmt.Errorf("%s grid %s: %w", op, gridID, err)
	}
	return g, nil
}

// columns returns the grid's column snapshot, preferring the cache. Cache
// failures are logged and fall through to the store.
//
// The generation is read before the store so a column change that lands
// while the list is loading makes the refill a no-op instead of caching the
// old schema.
func (s *Service) columns(ctx context.Context, gridID uuid.UUID) ([]Column, error) {
	gen, refill := int64(0), false
	if s.cache != nil {
		cols, ok, err := s.cache.GetColumns(ctx, gridID)
		if err != nil {
			s.logger.Warn("column cache read failed", slog.String("grid_id", gridID.String()), slog.String("error", err.Error()))
		} else if ok {
			return cols, nil
		}
		if gen, err = s.cache.Generation(ctx, gridID); err != nil {
			s.logger.Warn("column cache read failed", slog.String("grid_id", gridID.String()), slog.String("error", err.Error()))
		} else {
			refill = true
		}
	}

	cols, err := s.store.ListColumns(ctx, gridID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	if refill {
		if err := s.cache.SetColumns(ctx, gridID, gen, cols); err != nil {
			s.logger.Warn("column cache write failed", slog.String("grid_id", gridID.String()), slog.String("error", err.Error()))
		}
	}
	return cols, nil
}

func (s *Service) invalidateColumns(ctx context.Context, gridID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, gridID); err != nil {
		s.logger.Warn("column cache invalidate failed", slog.String("grid_id", gridID.String()), slog.String("error", err.Error()))
	}
}

// ---- Grids ----

// GridInput holds the editable grid fields.
type GridInput struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"isPublic"`
}

// CreateGrid creates a grid owned by p.
func (s *Service) CreateGrid(ctx context.Context, p Principal, in GridInput) (Grid, error) {
	if err := s.check(s.policy.AuthorizeCreateGrid(p), OpWrite); err != nil {
		return Grid{}, fmt.Errorf("create grid: %w", err)
	}

	g := Grid{Name: strings.TrimSpace(in.Name), OwnerID: p.UserID, IsPublic: in.IsPublic}
	if err := ValidateGrid(g); err != nil {
		return Grid{}, err
	}

	created, err := s.store.CreateGrid(ctx, g)
	if err != nil {
		return Grid{}, fmt.Errorf("create grid: %w", err)
	}

	s.logger.Info("grid created", slog.String("grid_id", created.ID.String()), slog.String("user_id", p.UserID))
	s.logAudit(ctx, p, AuditEntry{Action: ActionGridCreate, GridID: created.ID, NewValue: created.Name})
	return created, nil
}

// GetGrid returns a grid p may read.
func (s *Service) GetGrid(ctx context.Context, p Principal, id uuid.UUID) (Grid, error) {
	return s.authorizeGrid(ctx, p, id, OpRead)
}

// ListGrids returns the grids p may read.
func (s *Service) ListGrids(ctx context.Context, p Principal) ([]Grid, error) {
	if !p.Authenticated() {
		return nil, s.check(denyAnonymous, OpRead)
	}

	all, err := s.store.ListGrids(ctx)
	if err != nil {
		return nil, fmt.Errorf("list grids: %w", err)
	}

	visible := make([]Grid, 0, len(all))
	for _, g := range all {
		d, err := s.policy.Authorize(ctx, p, g, OpRead)
		if err != nil {
			return nil, err
		}
		if d.Allowed {
			visible = append(visible, g)
		}
	}
	return visible, nil
}

// UpdateGrid changes a grid's name and visibility.
func (s *Service) UpdateGrid(ctx context.Context, p Principal, id uuid.UUID, in GridInput) (Grid, error) {
	g, err := s.authorizeGrid(ctx, p, id, OpWrite)
	if err != nil {
		return Grid{}, err
	}

	old := g.Name
	g.Name = strings.TrimSpace(in.Name)
	g.IsPublic = in.IsPublic
	if err := ValidateGrid(g); err != nil {
		return Grid{}, err
	}

	updated, err := s.store.UpdateGrid(ctx, g)
	if err != nil {
		return Grid{}, fmt.Errorf("update grid: %w", err)
	}

	s.logAudit(ctx, p, AuditEntry{Action: ActionGridUpdate, GridID: id, OldValue: old, NewValue: updated.Name})
	return updated, nil
}

// DeleteGrid deletes a grid with its columns, rows and grants.
func (s *Service) DeleteGrid(ctx context.Context, p Principal, id uuid.UUID) error {
	g, err := s.authorizeGrid(ctx, p, id, OpDelete)
	if err != nil {
		return err
	}

	if err := s.store.DeleteGrid(ctx, id); err != nil {
		return fmt.Errorf("delete grid: %w", err)
	}
	s.invalidateColumns(ctx, id)

	s.logger.Info("grid deleted", slog.String("grid_id", id.String()), slog.String("user_id", p.UserID))
	s.logAudit(ctx, p, AuditEntry{Action: ActionGridDelete, GridID: id, OldValue: g.Name})
	return nil
}
