// Package memory is an in-process implementation of core.Store, used for
// local development (STORE_DRIVER=memory) and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
)

// Store keeps everything in maps guarded by one RWMutex. Returned values are
// copies; callers cannot mutate stored state.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	grids   map[uuid.UUID]core.Grid
	columns map[uuid.UUID]core.Column
	rows    map[uuid.UUID]core.Row
	grants  map[uuid.UUID]map[string]core.Grant
	audit   []core.AuditEntry
}

var _ core.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		now:     func() time.Time { return time.Now().UTC() },
		grids:   make(map[uuid.UUID]core.Grid),
		columns: make(map[uuid.UUID]core.Column),
		rows:    make(map[uuid.UUID]core.Row),
		grants:  make(map[uuid.UUID]map[string]core.Grant),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// ---- Grids ----

func (s *Store) CreateGrid(_ context.Context, g core.Grid) (core.Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.ID = uuid.New()
	g.CreatedAt = s.now()
	s.grids[g.ID] = g
	return g, nil
}

func (s *Store) GetGrid(_ context.Context, id uuid.UUID) (core.Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grids[id]
	if !ok {
		return core.Grid{}, fmt.Errorf("grid %s: %w", id, core.ErrNotFound)
	}
	return g, nil
}

func (s *Store) ListGrids(context.Context) ([]core.Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Grid, 0, len(s.grids))
	for _, g := range s.grids {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) UpdateGrid(_ context.Context, g core.Grid) (core.Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.grids[g.ID]
	if !ok {
		return core.Grid{}, fmt.Errorf("grid %s: %w", g.ID, core.ErrNotFound)
	}
	cur.Name = g.Name
	cur.IsPublic = g.IsPublic
	s.grids[g.ID] = cur
	return cur, nil
}

func (s *Store) DeleteGrid(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grids[id]; !ok {
		return fmt.Errorf("grid %s: %w", id, core.ErrNotFound)
	}
	delete(s.grids, id)
	delete(s.grants, id)
	for cid, c := range s.columns {
		if c.GridID == id {
			delete(s.columns, cid)
		}
	}
	for rid, r := range s.rows {
		if r.GridID == id {
			delete(s.rows, rid)
		}
	}
	return nil
}

// ---- Columns ----

func (s *Store) CreateColumn(_ context.Context, c core.Column) (core.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grids[c.GridID]; !ok {
		return core.Column{}, fmt.Errorf("grid %s: %w", c.GridID, core.ErrNotFound)
	}
	for _, existing := range s.columns {
		if existing.GridID == c.GridID && existing.Name == c.Name {
			return core.Column{}, fmt.Errorf("column %q: duplicate key", c.Name)
		}
	}
	c.ID = uuid.New()
	c.Options = cloneStrings(c.Options)
	s.columns[c.ID] = c
	return c, nil
}

func (s *Store) GetColumn(_ context.Context, id uuid.UUID) (core.Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.columns[id]
	if !ok {
		return core.Column{}, fmt.Errorf("column %s: %w", id, core.ErrNotFound)
	}
	c.Options = cloneStrings(c.Options)
	return c, nil
}

func (s *Store) ListColumns(_ context.Context, gridID uuid.UUID) ([]core.Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Column, 0)
	for _, c := range s.columns {
		if c.GridID == gridID {
			c.Options = cloneStrings(c.Options)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) UpdateColumn(_ context.Context, c core.Column) (core.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.columns[c.ID]
	if !ok {
		return core.Column{}, fmt.Errorf("column %s: %w", c.ID, core.ErrNotFound)
	}
	c.GridID = cur.GridID
	c.Options = cloneStrings(c.Options)
	s.columns[c.ID] = c
	return c, nil
}

func (s *Store) DeleteColumn(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.columns[id]; !ok {
		return fmt.Errorf("column %s: %w", id, core.ErrNotFound)
	}
	delete(s.columns, id)
	return nil
}

// ---- Rows ----

func (s *Store) InsertRow(ctx context.Context, gridID uuid.UUID, r core.NormalizedRow) (core.Row, error) {
	rows, err := s.InsertRows(ctx, gridID, []core.NormalizedRow{r})
	if err != nil {
		return core.Row{}, err
	}
	return rows[0], nil
}

func (s *Store) InsertRows(_ context.Context, gridID uuid.UUID, rows []core.NormalizedRow) ([]core.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grids[gridID]; !ok {
		return nil, fmt.Errorf("grid %s: %w", gridID, core.ErrNotFound)
	}

	now := s.now()
	out := make([]core.Row, len(rows))
	for i, nr := range rows {
		row := core.Row{
			ID:        uuid.New(),
			GridID:    gridID,
			Values:    nr.Values.Clone(),
			Status:    nr.Status,
			CreatedAt: now,
			Version:   1,
		}
		s.rows[row.ID] = row
		out[i] = cloneRow(row)
	}
	return out, nil
}

func (s *Store) GetRow(_ context.Context, id uuid.UUID) (core.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[id]
	if !ok {
		return core.Row{}, fmt.Errorf("row %s: %w", id, core.ErrNotFound)
	}
	return cloneRow(r), nil
}

func (s *Store) ListRows(_ context.Context, gridID uuid.UUID) ([]core.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Row, 0)
	for _, r := range s.rows {
		if r.GridID == gridID {
			out = append(out, cloneRow(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) UpdateRow(_ context.Context, id uuid.UUID, expectedVersion int64, r core.NormalizedRow) (core.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[id]
	if !ok {
		return core.Row{}, fmt.Errorf("row %s: %w", id, core.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return core.Row{}, fmt.Errorf("row %s at version %d, caller had %d: %w", id, cur.Version, expectedVersion, core.ErrConflict)
	}
	cur.Values = r.Values.Clone()
	cur.Status = r.Status
	cur.Version++
	s.rows[id] = cur
	return cloneRow(cur), nil
}

func (s *Store) DeleteRow(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return fmt.Errorf("row %s: %w", id, core.ErrNotFound)
	}
	delete(s.rows, id)
	return nil
}

func (s *Store) DeleteRows(_ context.Context, gridID uuid.UUID, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		r, ok := s.rows[id]
		if !ok || r.GridID != gridID {
			return 0, fmt.Errorf("some rows not found: %w", core.ErrNotFound)
		}
	}
	for _, id := range ids {
		delete(s.rows, id)
	}
	return len(ids), nil
}

// ---- Grants ----

func (s *Store) HasGrant(_ context.Context, gridID uuid.UUID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.grants[gridID][userID]
	return ok, nil
}

func (s *Store) PutGrant(_ context.Context, g core.Grant) (core.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grids[g.GridID]; !ok {
		return core.Grant{}, fmt.Errorf("grid %s: %w", g.GridID, core.ErrNotFound)
	}
	byUser := s.grants[g.GridID]
	if byUser == nil {
		byUser = make(map[string]core.Grant)
		s.grants[g.GridID] = byUser
	}
	if cur, ok := byUser[g.UserID]; ok {
		g.CreatedAt = cur.CreatedAt
	} else {
		g.CreatedAt = s.now()
	}
	byUser[g.UserID] = g
	return g, nil
}

func (s *Store) ListGrants(_ context.Context, gridID uuid.UUID) ([]core.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Grant, 0, len(s.grants[gridID]))
	for _, g := range s.grants[gridID] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) DeleteGrant(_ context.Context, gridID uuid.UUID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[gridID][userID]; !ok {
		return fmt.Errorf("grant %s/%s: %w", gridID, userID, core.ErrNotFound)
	}
	delete(s.grants[gridID], userID)
	return nil
}

// ---- Audit ----

func (s *Store) InsertAudit(_ context.Context, e core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// ListAudit returns matching entries newest first.
func (s *Store) ListAudit(_ context.Context, f core.AuditFilter) ([]core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		if f.Matches(s.audit[i]) {
			out = append(out, s.audit[i])
		}
	}
	if f.Offset >= len(out) {
		return []core.AuditEntry{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func cloneRow(r core.Row) core.Row {
	r.Values = r.Values.Clone()
	return r
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
