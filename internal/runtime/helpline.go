package runtime

import (
	"context"
	"log/slog"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
)

// helplineHandler frames the conversation as human support.
type helplineHandler struct {
	policy    domain.Policy
	responder ports.Responder
	logger    *slog.Logger
}

func (h *helplineHandler) Role() domain.Role { return domain.RoleHelpline }

func (h *helplineHandler) Enter(*domain.SessionContext) string {
	return msgHelplineWelcome
}

func (h *helplineHandler) Actions(*domain.SessionContext) []domain.ActionSpec {
	return []domain.ActionSpec{{
		Action:      domain.ActionEndSession,
		Description: "The caller is done (for example they said goodbye or that's all).",
	}}
}

func (h *helplineHandler) Handle(ctx context.Context, sc *domain.SessionContext, in domain.Intent) Outcome {
	if in.Action == domain.ActionEndSession {
		return transition(domain.Transition{
			Action: domain.ActionEndSession,
			Next:   h.policy.EndSessionRole,
			Patch:  endSessionPatch(h.policy.EndSessionRole),
			Reply:  msgFarewell,
		})
	}

	if h.responder == nil {
		return reply(msgHelplineDefault)
	}
	text, err := h.responder.Respond(ctx, sc, in.Text)
	if err != nil || text == "" {
		h.logger.Warn("responder failed", "session_id", sc.SessionID, "role", sc.Role, "err", err)
		return reply(msgHelplineDefault)
	}
	return reply(text)
}

// endSessionPatch fully resets identity state. The identifier is kept only when the
// next role re-verifies it.
func endSessionPatch(next domain.Role) domain.ContextPatch {
	return domain.ContextPatch{
		ResetIdentity: true,
		ResetAttempts: true,
		ClearMobile:   next != domain.RoleAuthenticating,
	}
}
