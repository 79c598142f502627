package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Resource represents a category of protected entity
type Resource string

const (
	ResourcePayments      Resource = "PAYMENTS"
	ResourceUsers         Resource = "USERS"
	ResourceOrganizations Resource = "ORGANIZATIONS"
	ResourceSubscriptions Resource = "SUBSCRIPTIONS"
	ResourceAudit         Resource = "AUDIT"
)

// Resources returns all resources in the permission catalog
func Resources() []Resource {
	return []Resource{
		ResourcePayments,
		ResourceUsers,
		ResourceOrganizations,
		ResourceSubscriptions,
		ResourceAudit,
	}
}

// ParseResource validates a resource string against the catalog
func ParseResource(s string) (Resource, error) {
	for _, r := range Resources() {
		if Resource(s) == r {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource %q", s)
}

// Action represents an operation that can be performed on a resource
type Action string

const (
	ActionRead   Action = "READ"
	ActionWrite  Action = "WRITE"
	ActionDelete Action = "DELETE"
	ActionAdmin  Action = "ADMIN"
)

// Actions returns all actions in the permission catalog
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionDelete, ActionAdmin}
}

// ParseAction validates an action string against the catalog
func ParseAction(s string) (Action, error) {
	for _, a := range Actions() {
		if Action(s) == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns the permission key, e.g. "PAYMENTS:READ"
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParsePermission parses a "RESOURCE:ACTION" key into a Permission
func ParsePermission(key string) (Permission, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return Permission{}, fmt.Errorf("malformed permission key %q", key)
	}
	res, err := ParseResource(parts[0])
	if err != nil {
		return Permission{}, err
	}
	act, err := ParseAction(parts[1])
	if err != nil {
		return Permission{}, err
	}
	return Permission{Resource: res, Action: act}, nil
}

// IsHighPrivilege reports whether a permission key grants elevated access.
// The classification is a substring heuristic carried over from the source
// system: anything containing ADMIN or DELETE, or ending in :WRITE. Kept in
// one place so a sensitivity flag on the catalog can replace it later.
func IsHighPrivilege(key string) bool {
	return strings.Contains(key, "ADMIN") ||
		strings.Contains(key, "DELETE") ||
		strings.HasSuffix(key, ":WRITE")
}

// PermissionSet is a deduplicated set of granted permissions. It is the value
// cached per (user, organization) and per role.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from individual permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts a permission into the set
func (s PermissionSet) Add(p Permission) {
	s[p] = struct{}{}
}

// Has reports whether the set grants the given permission
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union merges another set into this one
func (s PermissionSet) Union(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Len returns the number of distinct permissions in the set
func (s PermissionSet) Len() int {
	return len(s)
}

// Keys returns the sorted permission keys. Sorting makes the serialized form
// deterministic regardless of resolution order.
func (s PermissionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for p := range s {
		keys = append(keys, p.String())
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the set as a sorted array of permission keys
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Keys())
}

// UnmarshalJSON decodes an array of permission keys into the set
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	out := make(PermissionSet, len(keys))
	for _, key := range keys {
		p, err := ParsePermission(key)
		if err != nil {
			return err
		}
		out[p] = struct{}{}
	}
	*s = out
	return nil
}

// CatalogEntry is a persisted permission catalog record. The catalog is seeded
// at system initialization and entries are only ever soft-deactivated.
type CatalogEntry struct {
	ID       int64    `json:"id"`
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
	Active   bool     `json:"active"`
}

// RoleType distinguishes tenant-managed roles from provisioned ones
type RoleType string

const (
	RolePredefined RoleType = "PREDEFINED"
	RoleCustom     RoleType = "CUSTOM"
)

// Role represents a named, organization-scoped bundle of permissions
type Role struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Type           RoleType  `json:"role_type"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Mutable reports whether tenants may edit this role's permission set.
// Predefined roles are immutable.
func (r Role) Mutable() bool {
	return r.Type == RoleCustom
}

// UserRoleAssignment grants a role to a user within an organization
type UserRoleAssignment struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	RoleID         int64      `json:"role_id"`
	OrganizationID int64      `json:"organization_id"`
	AssignedBy     int64      `json:"assigned_by"`
	AssignedAt     time.Time  `json:"assigned_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"`
}

// ActiveAt is the single definition of assignment activity: not removed and
// not past its expiry. The resolver and the expiry sweep both use this; do not
// reimplement the predicate elsewhere.
func (a UserRoleAssignment) ActiveAt(now time.Time) bool {
	if a.RemovedAt != nil {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// ExpiredAt reports whether the assignment lapsed through expiry rather than
// explicit removal
func (a UserRoleAssignment) ExpiredAt(now time.Time) bool {
	return a.RemovedAt == nil && a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// Permanent reports whether the assignment has no expiry
func (a UserRoleAssignment) Permanent() bool {
	return a.ExpiresAt == nil
}
