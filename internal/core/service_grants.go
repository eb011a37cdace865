package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ListGrants returns a grid's explicit grants. Owner and administrators only.
func (s *Service) ListGrants(ctx context.Context, p Principal, gridID uuid.UUID) ([]Grant, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpWrite); err != nil {
		return nil, err
	}
	grants, err := s.store.ListGrants(ctx, gridID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// PutGrant gives userID read access to a grid. Granting twice updates the
// permission type of the existing grant.
func (s *Service) PutGrant(ctx context.Context, p Principal, gridID uuid.UUID, userID, permission string) (Grant, error) {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpWrite); err != nil {
		return Grant{}, err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Grant{}, NewValidationError("userId", "user id cannot be empty")
	}

	g, err := s.store.PutGrant(ctx, Grant{GridID: gridID, UserID: userID, PermissionType: strings.TrimSpace(permission)})
	if err != nil {
		return Grant{}, fmt.Errorf("put grant: %w", err)
	}

	s.logAudit(ctx, p, AuditEntry{Action: ActionGrantPut, GridID: gridID, NewValue: userID})
	return g, nil
}

// RevokeGrant removes userID's grant on a grid.
func (s *Service) RevokeGrant(ctx context.Context, p Principal, gridID uuid.UUID, userID string) error {
	if _, err := s.authorizeGrid(ctx, p, gridID, OpWrite); err != nil {
		return err
	}
	if err := s.store.DeleteGrant(ctx, gridID, userID); err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	s.logAudit(ctx, p, AuditEntry{Action: ActionGrantDelete, GridID: gridID, OldValue: userID})
	return nil
}
