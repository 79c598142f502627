package store

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// ErrUnavailable indicates the permission store could not be reached. Checks
// fail closed when resolution hits this.
var ErrUnavailable = errors.New("permission store unavailable")

// RoleHolder identifies a user holding a role within an organization
type RoleHolder struct {
	UserID         int64
	OrganizationID int64
}

// Store is the read-side adapter over the platform's RBAC tables. Warden
// owns no data of its own; everything here is a projection of the domain
// service's schema, plus the expiry mark-down that the sweep performs.
type Store interface {
	// ActiveAssignments returns the user's active role assignments in an
	// organization as of now
	ActiveAssignments(ctx context.Context, userID, orgID int64, now time.Time) ([]rbac.UserRoleAssignment, error)

	// RolePermissions returns the active permission bundle of a role
	RolePermissions(ctx context.Context, roleID int64) (rbac.PermissionSet, error)

	// RoleHolders returns every user actively holding the role
	RoleHolders(ctx context.Context, roleID int64, now time.Time) ([]RoleHolder, error)

	// IsMember reports whether the user is an active member of the
	// organization. Only consulted on the deny path to pick the reason.
	IsMember(ctx context.Context, userID, orgID int64) (bool, error)

	// OrganizationRoles returns the active roles of an organization
	OrganizationRoles(ctx context.Context, orgID int64) ([]rbac.Role, error)

	// ListCatalog returns the full permission catalog, inactive entries
	// included
	ListCatalog(ctx context.Context) ([]rbac.CatalogEntry, error)

	// LookupPermission returns the catalog entry for a resource/action
	// pair, or nil when the pair is not in the catalog
	LookupPermission(ctx context.Context, resource rbac.Resource, action rbac.Action) (*rbac.CatalogEntry, error)

	// ExpiredAssignments returns up to limit assignments whose expiry has
	// passed but which have not yet been marked removed
	ExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]rbac.UserRoleAssignment, error)

	// MarkAssignmentsExpired stamps removed_at on lapsed assignments so the
	// sweep does not pick them up again
	MarkAssignmentsExpired(ctx context.Context, ids []int64, now time.Time) error
}
