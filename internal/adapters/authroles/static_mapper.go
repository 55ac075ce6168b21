package authroles

import (
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// StaticRoleMapper maps provider groups to roles by simple string membership.
// Members of AdminGroup become admins; everyone else is a regular user, which
// keeps the default safe when group claims are missing entirely.
type StaticRoleMapper struct {
	AdminGroup string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	return domainauth.RoleUser
}
