package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const rowColumns = `id, grid_id, cell_values, status, created_at, version`

func scanRow(row pgx.Row) (core.Row, error) {
	var (
		r      core.Row
		raw    []byte
		status string
	)
	if err := row.Scan(&r.ID, &r.GridID, &raw, &status, &r.CreatedAt, &r.Version); err != nil {
		return core.Row{}, err
	}
	if err := json.Unmarshal(raw, &r.Values); err != nil {
		return core.Row{}, fmt.Errorf("decode values of row %s: %w", r.ID, err)
	}
	r.Status = core.Status(status)
	return r, nil
}

func encodeValues(v core.Values) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	return string(data), nil
}

func insertRow(ctx context.Context, q DBTX, gridID uuid.UUID, r core.NormalizedRow) (core.Row, error) {
	values, err := encodeValues(r.Values)
	if err != nil {
		return core.Row{}, err
	}
	created, err := scanRow(q.QueryRow(ctx,
		`INSERT INTO grid_rows (id, grid_id, cell_values, status, version)
		VALUES ($1, $2, $3::json, $4, 1)
		RETURNING `+rowColumns,
		uuid.New(), gridID, values, string(r.Status),
	))
	if err != nil {
		return core.Row{}, classifyError("insert row", err)
	}
	return created, nil
}

func (s *Store) InsertRow(ctx context.Context, gridID uuid.UUID, r core.NormalizedRow) (core.Row, error) {
	return insertRow(ctx, s.pool, gridID, r)
}

// InsertRows stores the batch in one transaction; any failure stores nothing.
func (s *Store) InsertRows(ctx context.Context, gridID uuid.UUID, rows []core.NormalizedRow) ([]core.Row, error) {
	out := make([]core.Row, 0, len(rows))
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for i, r := range rows {
			created, err := insertRow(ctx, tx, gridID, r)
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetRow(ctx context.Context, id uuid.UUID) (core.Row, error) {
	r, err := scanRow(s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM grid_rows WHERE id = $1`, id))
	if err != nil {
		return core.Row{}, classifyError(fmt.Sprintf("row %s", id), err)
	}
	return r, nil
}

func (s *Store) ListRows(ctx context.Context, gridID uuid.UUID) ([]core.Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rowColumns+` FROM grid_rows WHERE grid_id = $1 ORDER BY created_at, id`,
		gridID,
	)
	if err != nil {
		return nil, classifyError("list rows", err)
	}
	defer rows.Close()

	out := make([]core.Row, 0)
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, classifyError("scan row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRow writes only if the stored version equals expectedVersion, then
// bumps the version. A missing row is ErrNotFound; a version mismatch is
// ErrConflict.
func (s *Store) UpdateRow(ctx context.Context, id uuid.UUID, expectedVersion int64, r core.NormalizedRow) (core.Row, error) {
	values, err := encodeValues(r.Values)
	if err != nil {
		return core.Row{}, err
	}

	updated, err := scanRow(s.pool.QueryRow(ctx,
		`UPDATE grid_rows SET cell_values = $2::json, status = $3, version = version + 1
		WHERE id = $1 AND version = $4
		RETURNING `+rowColumns,
		id, values, string(r.Status), expectedVersion,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return core.Row{}, classifyError(fmt.Sprintf("row %s", id), err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM grid_rows WHERE id = $1)`, id).Scan(&exists); err != nil {
		return core.Row{}, classifyError(fmt.Sprintf("row %s", id), err)
	}
	if !exists {
		return core.Row{}, fmt.Errorf("row %s: %w", id, core.ErrNotFound)
	}
	return core.Row{}, fmt.Errorf("row %s version %d: %w", id, expectedVersion, core.ErrConflict)
}

func (s *Store) DeleteRow(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM grid_rows WHERE id = $1`, id)
	if err != nil {
		return classifyError(fmt.Sprintf("row %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("row %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// DeleteRows deletes ids from one grid in a transaction. If fewer rows match
// than were requested the transaction is rolled back.
func (s *Store) DeleteRows(ctx context.Context, gridID uuid.UUID, ids []uuid.UUID) (int, error) {
	params := make([]string, len(ids))
	for i, id := range ids {
		params[i] = id.String()
	}

	var deleted int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM grid_rows WHERE grid_id = $1 AND id = ANY($2::uuid[])`,
			gridID, params,
		)
		if err != nil {
			return classifyError("delete rows", err)
		}
		if n := int(tag.RowsAffected()); n != len(ids) {
			return fmt.Errorf("some rows not found (%d of %d): %w", n, len(ids), core.ErrNotFound)
		}
		deleted = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
