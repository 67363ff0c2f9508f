package domain

import "fmt"

// Role identifies the conversational mode currently owning the session.
type Role string

const (
	// RoleGreeting collects the caller's identifier. Initial role.
	RoleGreeting Role = "greeting"
	// RoleAuthenticating verifies the collected identifier against the identity store.
	RoleAuthenticating Role = "authenticating"
	// RoleMain serves read-only account data to a verified caller.
	RoleMain Role = "main"
	// RoleHelpline frames the conversation as human support.
	RoleHelpline Role = "helpline"
	// RoleLocked is entered after MaxAuthAttempts failed verifications.
	RoleLocked Role = "locked"
)

// Roles lists every role in state-machine order.
var Roles = []Role{RoleGreeting, RoleAuthenticating, RoleMain, RoleHelpline, RoleLocked}

// Valid reports whether r is one of the five known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGreeting, RoleAuthenticating, RoleMain, RoleHelpline, RoleLocked:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Authenticated reports whether the role requires a verified caller.
func (r Role) Authenticated() bool {
	return r == RoleMain || r == RoleHelpline
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
