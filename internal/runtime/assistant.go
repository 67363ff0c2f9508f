package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
)

// assistantHandler serves the verified caller: read-only account data scoped to
// the verified user id, and escalation to Helpline.
type assistantHandler struct {
	tools     *toolbox
	policy    domain.Policy
	responder ports.Responder
	logger    *slog.Logger
}

func (h *assistantHandler) Role() domain.Role { return domain.RoleMain }

// Enter greets by the name the identity store returned, never by a hint.
func (h *assistantHandler) Enter(sc *domain.SessionContext) string {
	return authenticatedWelcome(sc.UserName)
}

func (h *assistantHandler) Actions(*domain.SessionContext) []domain.ActionSpec {
	specs := make([]domain.ActionSpec, 0, len(domain.DataKinds)+1)
	for _, kind := range domain.DataKinds {
		specs = append(specs, domain.ActionSpec{
			Action:      dataAction(kind),
			Description: fmt.Sprintf("Read the caller's %s.", kind.Label()),
		})
	}
	specs = append(specs, domain.ActionSpec{
		Action:      domain.ActionEscalate,
		Description: "Hand the caller over to a human support specialist.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				domain.ArgReason: map[string]string{"type": "string", "description": "Short note for the specialist"},
			},
		},
	})
	return specs
}

func (h *assistantHandler) Handle(ctx context.Context, sc *domain.SessionContext, in domain.Intent) Outcome {
	if kind, ok := in.Action.DataKind(); ok {
		return h.fetch(ctx, sc, kind, in)
	}
	if in.Action == domain.ActionEscalate {
		return h.escalate(sc, in)
	}

	if h.responder == nil {
		return reply(msgMainMenu)
	}
	text, err := h.responder.Respond(ctx, sc, in.Text)
	if err != nil || text == "" {
		h.logger.Warn("responder failed", "session_id", sc.SessionID, "role", sc.Role, "err", err)
		return reply(msgMainMenu)
	}
	return reply(text)
}

func (h *assistantHandler) fetch(ctx context.Context, sc *domain.SessionContext, kind domain.DataKind, in domain.Intent) Outcome {
	if claimed := in.Arg(domain.ArgUserID); claimed != "" && claimed != sc.UserID {
		h.logger.Warn("ignoring caller-supplied user id", "session_id", sc.SessionID, "user_id", sc.UserID, "claimed", claimed)
	}

	rec, err := h.tools.fetch(ctx, sc, kind)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return replyErr(dataNotFound(kind), err)
	case err != nil:
		return replyErr(msgServiceTrouble, err)
	case len(rec) == 0:
		return replyErr(dataNotFound(kind), domain.ErrNotFound)
	}
	return reply(dataReply(kind, rec))
}

func (h *assistantHandler) escalate(sc *domain.SessionContext, in domain.Intent) Outcome {
	advisory := in.Arg(domain.ArgReason)
	if advisory == "" {
		who := sc.UserName
		if who == "" {
			who = "The caller"
		}
		advisory = fmt.Sprintf(msgDefaultEscalateFmt, who)
	}

	patch := domain.ContextPatch{Advisory: domain.Ptr(advisory)}
	if h.policy.Escalation == domain.EscalationReset {
		patch.ResetIdentity = true
		patch.ResetAttempts = true
	}
	return transition(domain.Transition{
		Action: domain.ActionEscalate,
		Next:   domain.RoleHelpline,
		Patch:  patch,
		Reply:  escalationAck(sc.UserName),
	})
}

func dataAction(kind domain.DataKind) domain.Action {
	switch kind {
	case domain.DataProfile:
		return domain.ActionGetProfile
	case domain.DataBilling:
		return domain.ActionGetBilling
	case domain.DataContact:
		return domain.ActionGetContact
	case domain.DataLastLogin:
		return domain.ActionGetLastLogin
	case domain.DataActivity:
		return domain.ActionGetActivity
	}
	return domain.ActionNone
}
