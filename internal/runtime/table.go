package runtime

import (
	"fmt"
	"sort"

	"github.com/aretw0/gocare/pkg/domain"
)

type edge struct {
	from   domain.Role
	action domain.Action
	to     domain.Role
}

// Table is the set of permitted role changes.
type Table struct {
	edges map[edge]bool
}

// DefaultTable returns the transition table of the support line.
// Self edges allow a handler to patch the context without leaving its role.
func DefaultTable() Table {
	t := Table{edges: make(map[edge]bool)}
	t.allow(domain.RoleGreeting, domain.ActionProvideIdentifier, domain.RoleAuthenticating)
	t.allow(domain.RoleGreeting, domain.ActionConfirmIdentifier, domain.RoleAuthenticating)

	t.allow(domain.RoleAuthenticating, domain.ActionVerify, domain.RoleMain)
	t.allow(domain.RoleAuthenticating, domain.ActionVerify, domain.RoleAuthenticating)
	t.allow(domain.RoleAuthenticating, domain.ActionVerify, domain.RoleLocked)
	t.allow(domain.RoleAuthenticating, domain.ActionResendCode, domain.RoleAuthenticating)
	t.allow(domain.RoleAuthenticating, domain.ActionResendCode, domain.RoleLocked)
	t.allow(domain.RoleAuthenticating, domain.ActionChangeNumber, domain.RoleGreeting)

	t.allow(domain.RoleMain, domain.ActionEscalate, domain.RoleHelpline)

	t.allow(domain.RoleHelpline, domain.ActionEndSession, domain.RoleGreeting)
	t.allow(domain.RoleHelpline, domain.ActionEndSession, domain.RoleAuthenticating)

	t.allow(domain.RoleLocked, domain.ActionRestartVerification, domain.RoleGreeting)
	return t
}

func (t Table) allow(from domain.Role, a domain.Action, to domain.Role) {
	t.edges[edge{from, a, to}] = true
}

// Allows reports whether a transition from role from, triggered by a, may land on to.
func (t Table) Allows(from domain.Role, a domain.Action, to domain.Role) bool {
	return t.edges[edge{from, a, to}]
}

// Check returns domain.ErrTransitionRejected for an edge not in the table.
func (t Table) Check(from domain.Role, tr domain.Transition) error {
	if err := tr.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransitionRejected, err)
	}
	if !t.Allows(from, tr.Action, tr.Next) {
		return fmt.Errorf("%w: %s --%s--> %s", domain.ErrTransitionRejected, from, tr.Action, tr.Next)
	}
	return nil
}

// Edges lists the table as (from, action, to) triples, for introspection.
func (t Table) Edges() [][3]string {
	order := make(map[string]int, len(domain.Roles))
	for i, r := range domain.Roles {
		order[string(r)] = i
	}
	out := make([][3]string, 0, len(t.edges))
	for e := range t.edges {
		out = append(out, [3]string{string(e.from), string(e.action), string(e.to)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return order[out[i][0]] < order[out[j][0]]
		}
		if out[i][1] != out[j][1] {
			return out[i][1] < out[j][1]
		}
		return order[out[i][2]] < order[out[j][2]]
	})
	return out
}
