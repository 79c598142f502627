// Package rbac defines the domain model for Warden's role-based access
// control: resources, actions, permissions, roles, and user role assignments.
//
// # Permission model
//
// A permission is a (resource, action) pair rendered as "RESOURCE:ACTION",
// e.g. "PAYMENTS:READ". The catalog is fixed: five resources (PAYMENTS, USERS,
// ORGANIZATIONS, SUBSCRIPTIONS, AUDIT) crossed with four actions (READ, WRITE,
// DELETE, ADMIN). There is no attribute-based evaluation and no policy
// language; a user's effective permissions are the union of the permission
// bundles of every role they actively hold in an organization.
//
// # Roles and assignments
//
// Roles are organization-scoped. Predefined roles (owner, admin, member,
// viewer) are provisioned with each organization and are immutable; only
// CUSTOM roles can be edited by tenants. An assignment is active iff it has
// not been removed and has not expired; that predicate lives in exactly one
// place, UserRoleAssignment.ActiveAt, and is shared by the resolver and the
// expiry sweep.
//
// # High-privilege classification
//
// IsHighPrivilege classifies permission keys containing ADMIN or DELETE, or
// ending in :WRITE, as high privilege. The invalidation engine widens its
// eviction breadth for changes involving these keys.
package rbac
