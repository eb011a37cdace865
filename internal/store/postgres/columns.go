package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const columnColumns = `id, grid_id, name, data_type, is_required, validation_pattern,
	options, external_collection_url, position`

func scanColumn(row pgx.Row) (core.Column, error) {
	var (
		c        core.Column
		dataType string
		pattern  pgtype.Text
		extURL   pgtype.Text
	)
	err := row.Scan(&c.ID, &c.GridID, &c.Name, &dataType, &c.Required, &pattern,
		&c.Options, &extURL, &c.Position)
	if err != nil {
		return core.Column{}, err
	}
	c.Type = core.DataType(dataType)
	c.ValidationPattern = fromPgText(pattern)
	c.ExternalCollectionURL = fromPgText(extURL)
	if len(c.Options) == 0 {
		c.Options = nil
	}
	return c, nil
}

func optionsParam(opts []string) []string {
	if opts == nil {
		return []string{}
	}
	return opts
}

func (s *Store) CreateColumn(ctx context.Context, c core.Column) (core.Column, error) {
	c.ID = uuid.New()
	created, err := scanColumn(s.pool.QueryRow(ctx,
		`INSERT INTO grid_columns (id, grid_id, name, data_type, is_required,
			validation_pattern, options, external_collection_url, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+columnColumns,
		c.ID, c.GridID, c.Name, string(c.Type), c.Required,
		toPgText(c.ValidationPattern), optionsParam(c.Options), toPgText(c.ExternalCollectionURL), c.Position,
	))
	if err != nil {
		return core.Column{}, classifyError(fmt.Sprintf("column %q", c.Name), err)
	}
	return created, nil
}

func (s *Store) GetColumn(ctx context.Context, id uuid.UUID) (core.Column, error) {
	c, err := scanColumn(s.pool.QueryRow(ctx, `SELECT `+columnColumns+` FROM grid_columns WHERE id = $1`, id))
	if err != nil {
		return core.Column{}, classifyError(fmt.Sprintf("column %s", id), err)
	}
	return c, nil
}

// ListColumns returns a grid's columns ordered by position.
func (s *Store) ListColumns(ctx context.Context, gridID uuid.UUID) ([]core.Column, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+columnColumns+` FROM grid_columns WHERE grid_id = $1 ORDER BY position, name`,
		gridID,
	)
	if err != nil {
		return nil, classifyError("list columns", err)
	}
	defer rows.Close()

	cols := make([]core.Column, 0)
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, classifyError("scan column", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (s *Store) UpdateColumn(ctx context.Context, c core.Column) (core.Column, error) {
	updated, err := scanColumn(s.pool.QueryRow(ctx,
		`UPDATE grid_columns SET name = $2, data_type = $3, is_required = $4,
			validation_pattern = $5, options = $6, external_collection_url = $7, position = $8
		WHERE id = $1
		RETURNING `+columnColumns,
		c.ID, c.Name, string(c.Type), c.Required,
		toPgText(c.ValidationPattern), optionsParam(c.Options), toPgText(c.ExternalCollectionURL), c.Position,
	))
	if err != nil {
		return core.Column{}, classifyError(fmt.Sprintf("column %s", c.ID), err)
	}
	return updated, nil
}

func (s *Store) DeleteColumn(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM grid_columns WHERE id = $1`, id)
	if err != nil {
		return classifyError(fmt.Sprintf("column %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("column %s: %w", id, core.ErrNotFound)
	}
	return nil
}
