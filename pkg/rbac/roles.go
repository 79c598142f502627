package rbac

// Predefined role names, created at organization provisioning. These cannot be
// deleted or have their permission sets edited by tenants.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// RoleDefinition describes a role template with its permission bundle
type RoleDefinition struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// PredefinedRoles returns the role definitions provisioned for every new
// organization
func PredefinedRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Name:        RoleOwner,
			Description: "Full access to every resource in the organization",
			Permissions: allPermissions(),
		},
		{
			Name:        RoleAdmin,
			Description: "Administrative access excluding organization deletion",
			Permissions: []Permission{
				{Resource: ResourcePayments, Action: ActionRead},
				{Resource: ResourcePayments, Action: ActionWrite},
				{Resource: ResourcePayments, Action: ActionDelete},
				{Resource: ResourceUsers, Action: ActionRead},
				{Resource: ResourceUsers, Action: ActionWrite},
				{Resource: ResourceUsers, Action: ActionDelete},
				{Resource: ResourceUsers, Action: ActionAdmin},
				{Resource: ResourceOrganizations, Action: ActionRead},
				{Resource: ResourceOrganizations, Action: ActionWrite},
				{Resource: ResourceSubscriptions, Action: ActionRead},
				{Resource: ResourceSubscriptions, Action: ActionWrite},
				{Resource: ResourceAudit, Action: ActionRead},
			},
		},
		{
			Name:        RoleMember,
			Description: "Day-to-day access without destructive operations",
			Permissions: []Permission{
				{Resource: ResourcePayments, Action: ActionRead},
				{Resource: ResourcePayments, Action: ActionWrite},
				{Resource: ResourceUsers, Action: ActionRead},
				{Resource: ResourceOrganizations, Action: ActionRead},
				{Resource: ResourceSubscriptions, Action: ActionRead},
			},
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access to organization resources",
			Permissions: []Permission{
				{Resource: ResourcePayments, Action: ActionRead},
				{Resource: ResourceUsers, Action: ActionRead},
				{Resource: ResourceOrganizations, Action: ActionRead},
				{Resource: ResourceSubscriptions, Action: ActionRead},
			},
		},
	}
}

func allPermissions() []Permission {
	var perms []Permission
	for _, r := range Resources() {
		for _, a := range Actions() {
			perms = append(perms, Permission{Resource: r, Action: a})
		}
	}
	return perms
}
