package auth

// Role is a named set of permissions carried in token claims.
type Role string

const (
	// RoleAdmin can do everything, including token and source
	// management.
	RoleAdmin Role = "admin"
	// RoleEditor can ingest documents and query.
	RoleEditor Role = "editor"
	// RoleViewer can only query.
	RoleViewer Role = "viewer"
)

// IsValid reports whether the role is a known value.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Permission gates one class of operations.
type Permission string

const (
	// PermissionQuery covers the query endpoints.
	PermissionQuery Permission = "query"
	// PermissionIngest covers ingestion and source deletion.
	PermissionIngest Permission = "ingest"
	// PermissionManage covers token minting and administration.
	PermissionManage Permission = "manage"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin:  {PermissionQuery, PermissionIngest, PermissionManage},
	RoleEditor: {PermissionQuery, PermissionIngest},
	RoleViewer: {PermissionQuery},
}

// Permissions returns the permission set of a role; unknown roles have
// none.
func (r Role) Permissions() []Permission {
	return rolePermissions[r]
}

// HasPermission reports whether any of the roles grants the
// permission.
func HasPermission(roles []Role, perm Permission) bool {
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			if p == perm {
				return true
			}
		}
	}
	return false
}
