package runtime

import (
	"context"

	"github.com/aretw0/gocare/pkg/domain"
)

// lockedHandler is terminal until restart_verification. It offers nothing else.
type lockedHandler struct {
	policy domain.Policy
}

func (h *lockedHandler) Role() domain.Role { return domain.RoleLocked }

// Enter is empty: the lockout notice is the reply of the failing turn.
func (h *lockedHandler) Enter(*domain.SessionContext) string {
	return ""
}

func (h *lockedHandler) Actions(*domain.SessionContext) []domain.ActionSpec {
	return []domain.ActionSpec{{
		Action:      domain.ActionRestartVerification,
		Description: "Start identity verification again from the beginning.",
		Operator:    !h.policy.AllowUserRestart,
	}}
}

func (h *lockedHandler) Handle(_ context.Context, sc *domain.SessionContext, in domain.Intent) Outcome {
	if in.Action == domain.ActionRestartVerification {
		return transition(domain.Transition{
			Action: domain.ActionRestartVerification,
			Next:   domain.RoleGreeting,
			Patch:  endSessionPatch(domain.RoleGreeting),
			Reply:  msgRestart,
		})
	}
	return reply(lockoutNotice(h.policy, sc.AuthAttempts))
}
