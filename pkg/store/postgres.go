package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// Postgres implements Store over the platform's PostgreSQL schema
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed store
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ActiveAssignments returns the user's active role assignments in an organization
func (s *Postgres) ActiveAssignments(ctx context.Context, userID, orgID int64, now time.Time) ([]rbac.UserRoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, organization_id, assigned_by, assigned_at, expires_at, removed_at
		FROM user_role_assignments
		WHERE user_id = $1
		  AND organization_id = $2
		  AND removed_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY assigned_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, orgID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query assignments: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var assignments []rbac.UserRoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: assignment rows failed: %v", ErrUnavailable, err)
	}
	return assignments, nil
}

// RolePermissions returns the active permission bundle of a role
func (s *Postgres) RolePermissions(ctx context.Context, roleID int64) (rbac.PermissionSet, error) {
	query := `
		SELECT p.resource, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 AND p.is_active = true
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query role permissions: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	set := rbac.NewPermissionSet()
	for rows.Next() {
		var resource, action string
		if err := rows.Scan(&resource, &action); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p, err := permissionFromColumns(resource, action)
		if err != nil {
			return nil, err
		}
		set.Add(p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: permission rows failed: %v", ErrUnavailable, err)
	}
	return set, nil
}

// RoleHolders returns every user actively holding the role
func (s *Postgres) RoleHolders(ctx context.Context, roleID int64, now time.Time) ([]RoleHolder, error) {
	query := `
		SELECT DISTINCT user_id, organization_id
		FROM user_role_assignments
		WHERE role_id = $1
		  AND removed_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
	`

	rows, err := s.db.QueryContext(ctx, query, roleID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query role holders: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var holders []RoleHolder
	for rows.Next() {
		var h RoleHolder
		if err := rows.Scan(&h.UserID, &h.OrganizationID); err != nil {
			return nil, fmt.Errorf("failed to scan role holder: %w", err)
		}
		holders = append(holders, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: role holder rows failed: %v", ErrUnavailable, err)
	}
	return holders, nil
}

// IsMember reports whether the user is an active member of the organization
func (s *Postgres) IsMember(ctx context.Context, userID, orgID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM organization_members
			WHERE user_id = $1 AND organization_id = $2 AND is_active = true
		)
	`

	var member bool
	if err := s.db.QueryRowContext(ctx, query, userID, orgID).Scan(&member); err != nil {
		return false, fmt.Errorf("%w: failed to query membership: %v", ErrUnavailable, err)
	}
	return member, nil
}

// OrganizationRoles returns the active roles of an organization
func (s *Postgres) OrganizationRoles(ctx context.Context, orgID int64) ([]rbac.Role, error) {
	query := `
		SELECT id, organization_id, name, description, role_type, is_active, created_at, updated_at
		FROM roles
		WHERE organization_id = $1 AND is_active = true
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query roles: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		var roleType string
		if err := rows.Scan(
			&role.ID,
			&role.OrganizationID,
			&role.Name,
			&role.Description,
			&roleType,
			&role.Active,
			&role.CreatedAt,
			&role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.Type = rbac.RoleType(roleType)
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: role rows failed: %v", ErrUnavailable, err)
	}
	return roles, nil
}

// ListCatalog returns the full permission catalog
func (s *Postgres) ListCatalog(ctx context.Context) ([]rbac.CatalogEntry, error) {
	query := `
		SELECT id, resource, action, is_active
		FROM permissions
		ORDER BY resource ASC, action ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query catalog: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []rbac.CatalogEntry
	for rows.Next() {
		var e rbac.CatalogEntry
		var resource, action string
		if err := rows.Scan(&e.ID, &resource, &action, &e.Active); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		e.Resource = rbac.Resource(resource)
		e.Action = rbac.Action(action)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: catalog rows failed: %v", ErrUnavailable, err)
	}
	return entries, nil
}

// LookupPermission returns the catalog entry for a resource/action pair
func (s *Postgres) LookupPermission(ctx context.Context, resource rbac.Resource, action rbac.Action) (*rbac.CatalogEntry, error) {
	query := `
		SELECT id, resource, action, is_active
		FROM permissions
		WHERE resource = $1 AND action = $2
	`

	var e rbac.CatalogEntry
	var res, act string
	err := s.db.QueryRowContext(ctx, query, string(resource), string(action)).Scan(&e.ID, &res, &act, &e.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query permission: %v", ErrUnavailable, err)
	}

	e.Resource = rbac.Resource(res)
	e.Action = rbac.Action(act)
	return &e, nil
}

// ExpiredAssignments returns lapsed assignments not yet marked removed
func (s *Postgres) ExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]rbac.UserRoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, organization_id, assigned_by, assigned_at, expires_at, removed_at
		FROM user_role_assignments
		WHERE removed_at IS NULL
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query expired assignments: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var assignments []rbac.UserRoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: expired assignment rows failed: %v", ErrUnavailable, err)
	}
	return assignments, nil
}

// MarkAssignmentsExpired stamps removed_at and the EXPIRED reason on lapsed
// assignments
func (s *Postgres) MarkAssignmentsExpired(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE user_role_assignments
		SET removed_at = $1, removal_reason = 'EXPIRED'
		WHERE id = ANY($2) AND removed_at IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, now, pq.Array(ids)); err != nil {
		return fmt.Errorf("%w: failed to mark assignments expired: %v", ErrUnavailable, err)
	}
	return nil
}

func scanAssignment(rows *sql.Rows) (rbac.UserRoleAssignment, error) {
	var a rbac.UserRoleAssignment
	var expiresAt, removedAt sql.NullTime

	if err := rows.Scan(
		&a.ID,
		&a.UserID,
		&a.RoleID,
		&a.OrganizationID,
		&a.AssignedBy,
		&a.AssignedAt,
		&expiresAt,
		&removedAt,
	); err != nil {
		return rbac.UserRoleAssignment{}, fmt.Errorf("failed to scan assignment: %w", err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	if removedAt.Valid {
		t := removedAt.Time
		a.RemovedAt = &t
	}
	return a, nil
}

func permissionFromColumns(resource, action string) (rbac.Permission, error) {
	res, err := rbac.ParseResource(resource)
	if err != nil {
		return rbac.Permission{}, fmt.Errorf("catalog row has %w", err)
	}
	act, err := rbac.ParseAction(action)
	if err != nil {
		return rbac.Permission{}, fmt.Errorf("catalog row has %w", err)
	}
	return rbac.Permission{Resource: res, Action: act}, nil
}
