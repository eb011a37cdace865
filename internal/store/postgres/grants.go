package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func scanGrant(row pgx.Row) (core.Grant, error) {
	var (
		g    core.Grant
		perm pgtype.Text
	)
	if err := row.Scan(&g.GridID, &g.UserID, &perm, &g.CreatedAt); err != nil {
		return core.Grant{}, err
	}
	g.PermissionType = fromPgText(perm)
	return g, nil
}

func (s *Store) HasGrant(ctx context.Context, gridID uuid.UUID, userID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM grid_grants WHERE grid_id = $1 AND user_id = $2)`,
		gridID, userID,
	).Scan(&ok)
	if err != nil {
		return false, classifyError("check grant", err)
	}
	return ok, nil
}

// PutGrant inserts or updates a grant. created_at of an existing grant is kept.
func (s *Store) PutGrant(ctx context.Context, g core.Grant) (core.Grant, error) {
	out, err := scanGrant(s.pool.QueryRow(ctx,
		`INSERT INTO grid_grants (grid_id, user_id, permission_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (grid_id, user_id) DO UPDATE SET permission_type = EXCLUDED.permission_type
		RETURNING grid_id, user_id, permission_type, created_at`,
		g.GridID, g.UserID, toPgText(g.PermissionType),
	))
	if err != nil {
		return core.Grant{}, classifyError(fmt.Sprintf("grant %s on %s", g.UserID, g.GridID), err)
	}
	return out, nil
}

func (s *Store) ListGrants(ctx context.Context, gridID uuid.UUID) ([]core.Grant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT grid_id, user_id, permission_type, created_at
		FROM grid_grants WHERE grid_id = $1 ORDER BY user_id`,
		gridID,
	)
	if err != nil {
		return nil, classifyError("list grants", err)
	}
	defer rows.Close()

	grants := make([]core.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, classifyError("scan grant", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *Store) DeleteGrant(ctx context.Context, gridID uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM grid_grants WHERE grid_id = $1 AND user_id = $2`, gridID, userID)
	if err != nil {
		return classifyError("delete grant", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("grant %s on %s: %w", userID, gridID, core.ErrNotFound)
	}
	return nil
}
