package types

import "strings"

// Role identifies a participant class. Several sessions may share one.
type Role string

// Well-known roles
const (
	RoleDashboard    Role = "dashboard"
	RoleTelemetry    Role = "telemetry"
	RoleMotorControl Role = "motor_control"
)

// KnownRoles lists the roles used by the field-control endpoints
var KnownRoles = []Role{RoleDashboard, RoleTelemetry, RoleMotorControl}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsEmpty returns true if the role is empty
func (r Role) IsEmpty() bool {
	return r == ""
}

// IsKnown reports whether r is one of KnownRoles
func (r Role) IsKnown() bool {
	for _, k := range KnownRoles {
		if r == k {
			return true
		}
	}
	return false
}

// Normalize trims and lower-cases a role so "Dashboard " and "dashboard"
// select the same bucket. Hyphens and spaces become underscores.
func Normalize(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return Role(s)
}

// ParseRole normalizes s and rejects empty or malformed values
func ParseRole(s string) (Role, error) {
	r := Normalize(s)
	if r.IsEmpty() {
		return "", NewError(ErrCodeInvalidArgument, "role cannot be empty")
	}
	for _, c := range r {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '.') {
			return "", NewError(ErrCodeInvalidArgument, "role contains invalid character: "+string(r))
		}
	}
	return r, nil
}
