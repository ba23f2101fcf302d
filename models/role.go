package models

// Admin roles, ordered super_admin > admin > viewer
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleViewer     = "viewer"
)

// grantableRoles declares the full role hierarchy in one place: which roles
// an inviter of a given role may hand out through an invitation
var grantableRoles = map[string][]string{
	RoleSuperAdmin: {RoleSuperAdmin, RoleAdmin, RoleViewer},
	RoleAdmin:      {RoleAdmin, RoleViewer},
	RoleViewer:     {},
}

// ValidRole reports whether role is one of the three known admin roles
func ValidRole(role string) bool {
	_, ok := grantableRoles[role]
	return ok
}

// CanGrant reports whether an inviter holding inviterRole may create an
// invitation for targetRole. Unknown roles grant nothing.
func CanGrant(inviterRole, targetRole string) bool {
	for _, r := range grantableRoles[inviterRole] {
		if r == targetRole {
			return true
		}
	}
	return false
}
