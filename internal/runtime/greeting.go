package runtime

import (
	"context"

	"github.com/aretw0/gocare/pkg/domain"
)

// greetingHandler collects the caller's identifier. It never verifies.
type greetingHandler struct{}

func (h *greetingHandler) Role() domain.Role { return domain.RoleGreeting }

func (h *greetingHandler) Enter(sc *domain.SessionContext) string {
	return welcome(sc)
}

func (h *greetingHandler) Actions(sc *domain.SessionContext) []domain.ActionSpec {
	specs := []domain.ActionSpec{{
		Action:      domain.ActionProvideIdentifier,
		Description: "The caller stated the mobile number on their account.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				domain.ArgIdentifier: map[string]string{"type": "string", "description": "The mobile number as spoken"},
			},
			"required": []string{domain.ArgIdentifier},
		},
	}}
	if sc.IdentifierHint != "" {
		specs = append(specs, domain.ActionSpec{
			Action:      domain.ActionConfirmIdentifier,
			Description: "The caller confirmed the mobile number we already have on file for this call.",
		})
	}
	return specs
}

func (h *greetingHandler) Handle(ctx context.Context, sc *domain.SessionContext, in domain.Intent) Outcome {
	switch in.Action {
	case domain.ActionProvideIdentifier:
		raw := in.Arg(domain.ArgIdentifier)
		if raw == "" {
			raw = in.Text
		}
		return h.collect(raw)

	case domain.ActionConfirmIdentifier:
		if sc.IdentifierHint == "" {
			return replyErr(msgConfirmNoHint, &domain.ValidationError{Field: "identifier", Reason: "no identifier on file"})
		}
		return transition(domain.Transition{
			Action: domain.ActionConfirmIdentifier,
			Next:   domain.RoleAuthenticating,
			Patch:  domain.ContextPatch{UserMobile: domain.Ptr(sc.IdentifierHint), CodeIssued: domain.Ptr(false)},
		})
	}

	// Free text: a bare number is still an identifier.
	if normalizeIdentifier(in.Text) != "" {
		return h.collect(in.Text)
	}
	return reply(msgAskIdentifier)
}

func (h *greetingHandler) collect(raw string) Outcome {
	id := normalizeIdentifier(raw)
	if id == "" {
		return replyErr(msgAskIdentifier, &domain.ValidationError{Field: "identifier", Reason: "no digits"})
	}
	return transition(domain.Transition{
		Action: domain.ActionProvideIdentifier,
		Next:   domain.RoleAuthenticating,
		Patch:  domain.ContextPatch{UserMobile: domain.Ptr(id), CodeIssued: domain.Ptr(false)},
	})
}
