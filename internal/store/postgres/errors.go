package postgres

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the store translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// classifyError maps driver errors onto core error kinds. what names the
// object being accessed ("grid 1234", "row 5678") and prefixes the message.
func classifyError(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: duplicate key (%s)", what, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: referenced grid: %w", what, core.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
