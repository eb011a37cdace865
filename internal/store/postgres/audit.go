package postgres

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func (s *Store) InsertAudit(ctx context.Context, e core.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, action, severity, grid_id, user_id, ip_address, user_agent,
			row_id, column_name, old_value, new_value, rows_affected, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, string(e.Action), string(e.Severity), toPgUUID(e.GridID),
		toPgText(e.UserID), toInet(e.IPAddress), toPgText(e.UserAgent),
		toPgUUID(e.RowID), toPgText(e.ColumnName), toPgText(e.OldValue), toPgText(e.NewValue),
		toPgInt4(e.RowsAffected), toPgText(e.Reason), e.CreatedAt,
	)
	if err != nil {
		return classifyError("insert audit entry", err)
	}
	return nil
}

// ListAudit returns matching entries newest first.
func (s *Store) ListAudit(ctx context.Context, f core.AuditFilter) ([]core.AuditEntry, error) {
	wb := newWhereBuilder()
	if f.GridID != uuid.Nil {
		wb.add("grid_id", f.GridID)
	}
	if f.Action != "" {
		wb.add("action", string(f.Action))
	}
	wb.addTimestampRange("created_at", f.StartTime, f.EndTime)

	where, args := wb.build()
	query := `SELECT id, action, severity, grid_id, user_id, ip_address, user_agent,
		row_id, column_name, old_value, new_value, rows_affected, reason, created_at
		FROM audit_log` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", wb.nextArg(), wb.nextArg()+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyError("list audit log", err)
	}
	defer rows.Close()

	entries := make([]core.AuditEntry, 0)
	for rows.Next() {
		e, err := scanAuditRow(rows)
		if err != nil {
			return nil, classifyError("scan audit entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanAuditRow(rows pgx.Rows) (core.AuditEntry, error) {
	var (
		e            core.AuditEntry
		action       string
		severity     string
		gridID       pgtype.UUID
		userID       pgtype.Text
		ipAddress    *netip.Addr
		userAgent    pgtype.Text
		rowID        pgtype.UUID
		columnName   pgtype.Text
		oldValue     pgtype.Text
		newValue     pgtype.Text
		rowsAffected pgtype.Int4
		reason       pgtype.Text
		createdAt    pgtype.Timestamptz
	)

	err := rows.Scan(
		&e.ID, &action, &severity, &gridID, &userID, &ipAddress, &userAgent,
		&rowID, &columnName, &oldValue, &newValue, &rowsAffected, &reason, &createdAt,
	)
	if err != nil {
		return core.AuditEntry{}, err
	}

	e.Action = core.AuditAction(action)
	e.Severity = core.AuditSeverity(severity)
	e.GridID = fromPgUUID(gridID)
	e.UserID = fromPgText(userID)
	if ipAddress != nil {
		e.IPAddress = ipAddress.String()
	}
	e.UserAgent = fromPgText(userAgent)
	e.RowID = fromPgUUID(rowID)
	e.ColumnName = fromPgText(columnName)
	e.OldValue = fromPgText(oldValue)
	e.NewValue = fromPgText(newValue)
	if rowsAffected.Valid {
		e.RowsAffected = int(rowsAffected.Int32)
	}
	e.Reason = fromPgText(reason)
	e.CreatedAt = createdAt.Time
	return e, nil
}

// ---- Query building ----

// whereBuilder assembles a parameterized WHERE clause. Column names come
// from code, never from request input.
type whereBuilder struct {
	conds []string
	args  []any
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{}
}

func (wb *whereBuilder) add(column string, value any) {
	wb.args = append(wb.args, value)
	wb.conds = append(wb.conds, fmt.Sprintf("%s = $%d", column, len(wb.args)))
}

// addTimestampRange adds bounds for the non-zero ends of [start, end].
func (wb *whereBuilder) addTimestampRange(column string, start, end time.Time) {
	if !start.IsZero() {
		wb.args = append(wb.args, pgtype.Timestamptz{Time: start, Valid: true})
		wb.conds = append(wb.conds, fmt.Sprintf("%s >= $%d", column, len(wb.args)))
	}
	if !end.IsZero() {
		wb.args = append(wb.args, pgtype.Timestamptz{Time: end, Valid: true})
		wb.conds = append(wb.conds, fmt.Sprintf("%s <= $%d", column, len(wb.args)))
	}
}

// nextArg returns the placeholder index for the next argument.
func (wb *whereBuilder) nextArg() int {
	return len(wb.args) + 1
}

func (wb *whereBuilder) build() (string, []any) {
	if len(wb.conds) == 0 {
		return "", wb.args
	}
	return " WHERE " + strings.Join(wb.conds, " AND "), wb.args
}
