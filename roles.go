package auth

import "strings"

// Role is the closed set of roles the remote API assigns to an identity.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleRegulator   Role = "REGULATOR"
	RoleStartup     Role = "STARTUP"
	RoleEnterprise  Role = "ENTERPRISE"
	RoleFintechUser Role = "FINTECH_USER"
)

const (
	// HomeAdmin is the landing area for administrators
	HomeAdmin = "/admin"
	// HomeRegulator is the landing area for regulators
	HomeRegulator = "/regulator"
	// HomeDashboard is shared by startups, enterprises and fintech users
	HomeDashboard = "/dashboard"
)

var homeAreas = map[Role]string{
	RoleAdmin:       HomeAdmin,
	RoleRegulator:   HomeRegulator,
	RoleStartup:     HomeDashboard,
	RoleEnterprise:  HomeDashboard,
	RoleFintechUser: HomeDashboard,
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	_, ok := homeAreas[r]
	return ok
}

// HomeArea returns the landing path for the role and false for unknown roles.
func (r Role) HomeArea() (string, bool) {
	path, ok := homeAreas[r]
	return path, ok
}

func (r Role) String() string {
	return string(r)
}

// In reports whether the role is part of roles.
func (r Role) In(roles []Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{
		RoleAdmin,
		RoleRegulator,
		RoleStartup,
		RoleEnterprise,
		RoleFintechUser,
	}
}

// ParseRole parses a role name, accepting any letter case.
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}
