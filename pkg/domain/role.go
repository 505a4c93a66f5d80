package domain

import dErrors "biblioteca/pkg/domain-errors"

// Role is the access level attached to an account profile.
// Invariant: the value must be one of the three supported roles.
//
// Usage: construct via ParseRole at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Role string

const (
	RoleReader    Role = "lector"
	RoleLibrarian Role = "bibliotecario"
	RoleAdmin     Role = "administrador"
)

var validRoles = map[Role]bool{
	RoleReader:    true,
	RoleLibrarian: true,
	RoleAdmin:     true,
}

// assignableRoles are the roles an administrator may grant. Administrators
// are bootstrapped out of band and cannot be created through promotion.
var assignableRoles = map[Role]bool{
	RoleReader:    true,
	RoleLibrarian: true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsAssignable reports whether an administrator may grant this role.
func (r Role) IsAssignable() bool {
	return assignableRoles[r]
}

func (r Role) String() string {
	return string(r)
}
