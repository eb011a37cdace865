package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const gridColumns = `id, name, owner_id, is_public, created_at`

func scanGrid(row pgx.Row) (core.Grid, error) {
	var g core.Grid
	err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.IsPublic, &g.CreatedAt)
	return g, err
}

func (s *Store) CreateGrid(ctx context.Context, g core.Grid) (core.Grid, error) {
	g.ID = uuid.New()
	created, err := scanGrid(s.pool.QueryRow(ctx,
		`INSERT INTO grids (id, name, owner_id, is_public)
		VALUES ($1, $2, $3, $4)
		RETURNING `+gridColumns,
		g.ID, g.Name, g.OwnerID, g.IsPublic,
	))
	if err != nil {
		return core.Grid{}, classifyError("insert grid", err)
	}
	return created, nil
}

func (s *Store) GetGrid(ctx context.Context, id uuid.UUID) (core.Grid, error) {
	g, err := scanGrid(s.pool.QueryRow(ctx, `SELECT `+gridColumns+` FROM grids WHERE id = $1`, id))
	if err != nil {
		return core.Grid{}, classifyError(fmt.Sprintf("grid %s", id), err)
	}
	return g, nil
}

func (s *Store) ListGrids(ctx context.Context) ([]core.Grid, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+gridColumns+` FROM grids ORDER BY created_at, name`)
	if err != nil {
		return nil, classifyError("list grids", err)
	}
	defer rows.Close()

	grids := make([]core.Grid, 0)
	for rows.Next() {
		g, err := scanGrid(rows)
		if err != nil {
			return nil, classifyError("scan grid", err)
		}
		grids = append(grids, g)
	}
	return grids, rows.Err()
}

func (s *Store) UpdateGrid(ctx context.Context, g core.Grid) (core.Grid, error) {
	updated, err := scanGrid(s.pool.QueryRow(ctx,
		`UPDATE grids SET name = $2, is_public = $3
		WHERE id = $1
		RETURNING `+gridColumns,
		g.ID, g.Name, g.IsPublic,
	))
	if err != nil {
		return core.Grid{}, classifyError(fmt.Sprintf("grid %s", g.ID), err)
	}
	return updated, nil
}

// DeleteGrid removes the grid; columns, rows and grants go with it through
// ON DELETE CASCADE.
func (s *Store) DeleteGrid(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM grids WHERE id = $1`, id)
	if err != nil {
		return classifyError(fmt.Sprintf("grid %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("grid %s: %w", id, core.ErrNotFound)
	}
	return nil
}
