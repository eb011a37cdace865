package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Operation is an action a principal wants to perform on a grid or its rows.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
)

// DenyReason says why a Decision refused access.
type DenyReason int

const (
	DenyNone DenyReason = iota
	// DenyUnauthenticated: no usable principal. Maps to 401.
	DenyUnauthenticated
	// DenyForbidden: the principal is known but lacks rights. Maps to 403.
	DenyForbidden
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var (
	allow         = Decision{Allowed: true}
	denyAnonymous = Decision{Reason: DenyUnauthenticated}
	denyForbidden = Decision{Reason: DenyForbidden}
)

// Err converts a denial into ErrUnauthorized or ErrForbidden. It returns nil
// for an allowed decision.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == DenyUnauthenticated:
		return ErrUnauthorized
	default:
		return ErrForbidden
	}
}

// Authenticated reports whether p identifies a user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// Evaluate decides whether p may perform op on g. hasGrant reports whether an
// explicit (grid, user) grant exists. It performs no I/O.
//
// Reads are allowed on public grids, to administrators, to the owner and to
// grantees. Writes and deletes, which cover grid metadata, columns, grants and
// rows, are allowed only to administrators and the owner.
func Evaluate(p Principal, g Grid, op Operation, hasGrant bool) Decision {
	if !p.Authenticated() {
		return denyAnonymous
	}
	if p.IsAdministrator || p.UserID == g.OwnerID {
		return allow
	}
	if op == OpRead && (g.IsPublic || hasGrant) {
		return allow
	}
	return denyForbidden
}

// GrantChecker reports whether an explicit grant exists for a grid and user.
type GrantChecker interface {
	HasGrant(ctx context.Context, gridID uuid.UUID, userID string) (bool, error)
}

// Policy authorizes principals against grids, consulting grants when needed.
type Policy struct {
	grants           GrantChecker
	openGridCreation bool
}

// NewPolicy creates a policy backed by the given grant lookup. When
// openGridCreation is set, any authenticated principal may create grids;
// otherwise only administrators may.
func NewPolicy(grants GrantChecker, openGridCreation bool) *Policy {
	return &Policy{grants: grants, openGridCreation: openGridCreation}
}

// Authorize evaluates op on g for p. The grant lookup only happens for reads
// that the cheaper rules did not already settle.
func (pol *Policy) Authorize(ctx context.Context, p Principal, g Grid, op Operation) (Decision, error) {
	d := Evaluate(p, g, op, false)
	if d.Allowed || d.Reason == DenyUnauthenticated || op != OpRead || pol.grants == nil {
		return d, nil
	}

	ok, err := pol.grants.HasGrant(ctx, g.ID, p.UserID)
	if err != nil {
		return Decision{}, fmt.Errorf("check grant: %w", err)
	}
	return Evaluate(p, g, op, ok), nil
}

// AuthorizeCreateGrid decides whether p may create a new grid.
func (pol *Policy) AuthorizeCreateGrid(p Principal) Decision {
	if !p.Authenticated() {
		return denyAnonymous
	}
	if p.IsAdministrator || pol.openGridCreation {
		return allow
	}
	return denyForbidden
}

// RequireAdmin allows only administrators. Used for cross-grid views such as
// the audit log.
func RequireAdmin(p Principal) Decision {
	if !p.Authenticated() {
		return denyAnonymous
	}
	if p.IsAdministrator {
		return allow
	}
	return denyForbidden
}
