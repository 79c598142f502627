package cache

import (
	"fmt"
	"strings"
)

// Key prefixes. These are wire-visible: operators match on them with
// redis-cli and the flush tool, so changing them is a breaking change.
const (
	userPermissionsPrefix   = "userPermissions"
	rolePermissionsPrefix   = "rolePermissions"
	organizationRolesPrefix = "organizationRoles"
)

// UserPermissionsKey builds the cache key for a user's resolved permission
// set within an organization
func UserPermissionsKey(userID, orgID int64) string {
	return fmt.Sprintf("%s:%d:%d", userPermissionsPrefix, userID, orgID)
}

// UserPermissionsOrgPattern builds the glob pattern matching every user's
// permission set in an organization. Used for broad sweeps.
func UserPermissionsOrgPattern(orgID int64) string {
	return fmt.Sprintf("%s:*:%d", userPermissionsPrefix, orgID)
}

// RolePermissionsKey builds the cache key for a role's permission bundle
func RolePermissionsKey(roleID int64) string {
	return fmt.Sprintf("%s:%d", rolePermissionsPrefix, roleID)
}

// OrganizationRolesKey builds the cache key for an organization's role list
func OrganizationRolesKey(orgID int64) string {
	return fmt.Sprintf("%s:%d", organizationRolesPrefix, orgID)
}

// KeyType returns the metrics label for a cache key or pattern
func KeyType(key string) string {
	switch {
	case strings.HasPrefix(key, userPermissionsPrefix+":"):
		return userPermissionsPrefix
	case strings.HasPrefix(key, rolePermissionsPrefix+":"):
		return rolePermissionsPrefix
	case strings.HasPrefix(key, organizationRolesPrefix+":"):
		return organizationRolesPrefix
	default:
		return "other"
	}
}
