package core

import (
	"slices"
	"strings"
	"time"
)

// Role is the permission context a session acts under.
type Role string

const (
	RoleDonor        Role = "donor"
	RoleOrganization Role = "organization"
	RoleVendor       Role = "vendor"
	RoleAdmin        Role = "admin"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleDonor, RoleOrganization, RoleVendor, RoleAdmin}
}

// ParseRole converts a user supplied role name into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

func (r Role) String() string {
	return string(r)
}

// Account is a wallet-backed user with a set of roles and one active role.
type Account struct {
	ID         string
	Address    string
	Roles      []Role
	ActiveRole Role
	Verified   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasRole reports whether the account holds role.
func (a *Account) HasRole(role Role) bool {
	return slices.Contains(a.Roles, role)
}

// Clone returns a deep copy so callers can mutate roles without aliasing.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Roles = slices.Clone(a.Roles)
	return &cp
}
