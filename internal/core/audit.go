package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionGridCreate   AuditAction = "grid_create"
	ActionGridUpdate   AuditAction = "grid_update"
	ActionGridDelete   AuditAction = "grid_delete"
	ActionColumnCreate AuditAction = "column_create"
	ActionColumnUpdate AuditAction = "column_update"
	ActionColumnDelete AuditAction = "column_delete"
	ActionRowCreate    AuditAction = "row_create"
	ActionRowUpdate    AuditAction = "row_update"
	ActionCellEdit     AuditAction = "cell_edit"
	ActionRowDelete    AuditAction = "row_delete"
	ActionBatchCreate  AuditAction = "batch_create"
	ActionBatchDelete  AuditAction = "batch_delete"
	ActionImport       AuditAction = "import"
	ActionGrantPut     AuditAction = "grant_put"
	ActionGrantDelete  AuditAction = "grant_delete"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           uuid.UUID     `json:"id"`
	Action       AuditAction   `json:"action"`
	Severity     AuditSeverity `json:"severity"`
	GridID       uuid.UUID     `json:"gridId"`
	UserID       string        `json:"userId,omitempty"`
	IPAddress    string        `json:"ipAddress,omitempty"`
	UserAgent    string        `json:"userAgent,omitempty"`
	RowID        uuid.UUID     `json:"rowId,omitempty"`
	ColumnName   string        `json:"columnName,omitempty"`
	OldValue     string        `json:"oldValue,omitempty"`
	NewValue     string        `json:"newValue,omitempty"`
	RowsAffected int           `json:"rowsAffected,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// AuditFilter narrows an audit log query. Zero fields do not filter.
type AuditFilter struct {
	GridID    uuid.UUID
	Action    AuditAction
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// DefaultAuditLimit caps audit queries that do not set a limit.
const DefaultAuditLimit = 100

// Matches reports whether e passes the filter's predicates. Limit and Offset
// are applied by the caller.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.GridID != uuid.Nil && e.GridID != f.GridID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.StartTime.IsZero() && e.CreatedAt.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.CreatedAt.After(f.EndTime) {
		return false
	}
	return true
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionGridDelete:
		return SeverityCritical
	case ActionColumnDelete, ActionBatchDelete, ActionImport, ActionBatchCreate, ActionRowDelete:
		return SeverityHigh
	case ActionGridCreate, ActionColumnCreate, ActionGrantPut, ActionGrantDelete:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// logAudit records an audit entry. Failures are logged and never fail the
// operation being audited.
func (s *Service) logAudit(ctx context.Context, p Principal, e AuditEntry) {
	e.ID = uuid.New()
	e.Severity = determineSeverity(e.Action)
	e.UserID = p.UserID
	e.IPAddress = IPAddressFromContext(ctx)
	e.UserAgent = UserAgentFromContext(ctx)
	e.CreatedAt = s.now()

	if err := s.store.InsertAudit(ctx, e); err != nil {
		s.logger.Warn("audit write failed",
			slog.String("action", string(e.Action)),
			slog.String("grid_id", e.GridID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// AuditLog returns audit entries. Administrators only.
func (s *Service) AuditLog(ctx context.Context, p Principal, f AuditFilter) ([]AuditEntry, error) {
	if err := s.check(RequireAdmin(p), OpRead); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	return s.store.ListAudit(ctx, f)
}
