package runtime

import (
	"context"
	"errors"

	"github.com/aretw0/gocare/pkg/domain"
)

// Phrases that mean the caller is not reading out a code even if digits are present.
var (
	changeNumberPhrases = []string{"change number", "change my number", "different number", "wrong number", "new number"}
	resendPhrases       = []string{"resend", "send again", "send it again", "new code", "another code", "didn't get", "didnt receive", "no code"}
)

// authenticatingHandler verifies the collected identifier. Every identity store
// call it makes ends in exactly one of: success, counted failure, lockout.
type authenticatingHandler struct {
	tools  *toolbox
	policy domain.Policy
}

func (h *authenticatingHandler) Role() domain.Role { return domain.RoleAuthenticating }

func (h *authenticatingHandler) Enter(sc *domain.SessionContext) string {
	return askCode(sc)
}

func (h *authenticatingHandler) Actions(*domain.SessionContext) []domain.ActionSpec {
	return []domain.ActionSpec{
		{
			Action:      domain.ActionVerify,
			Description: "The caller read out their verification code.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					domain.ArgCredential: map[string]string{"type": "string", "description": "The code as spoken"},
				},
				"required": []string{domain.ArgCredential},
			},
		},
		{Action: domain.ActionResendCode, Description: "The caller did not receive a code and wants a new one."},
		{Action: domain.ActionChangeNumber, Description: "The caller wants to use a different mobile number."},
	}
}

// TakesCredential treats any utterance carrying digits as a code, unless the
// caller is asking to change number or for a new code.
func (h *authenticatingHandler) TakesCredential(_ *domain.SessionContext, text string) bool {
	if digitsOnly(text) == "" {
		return false
	}
	return !containsAny(text, changeNumberPhrases...) && !containsAny(text, resendPhrases...)
}

func (h *authenticatingHandler) Handle(ctx context.Context, sc *domain.SessionContext, in domain.Intent) Outcome {
	switch in.Action {
	case domain.ActionVerify:
		raw := in.Arg(domain.ArgCredential)
		if raw == "" {
			raw = in.Text
		}
		return h.verify(ctx, sc, digitsOnly(raw))

	case domain.ActionResendCode:
		return h.issue(ctx, sc)

	case domain.ActionChangeNumber:
		return transition(domain.Transition{
			Action: domain.ActionChangeNumber,
			Next:   domain.RoleGreeting,
			Patch: domain.ContextPatch{
				ClearMobile:   true,
				ResetAttempts: !h.policy.KeepAttemptsOnNumberChange,
			},
			Reply: msgChangeNumber,
		})
	}

	if digitsOnly(in.Text) != "" {
		return h.verify(ctx, sc, digitsOnly(in.Text))
	}
	return replyErr(msgMissingCode, &domain.ValidationError{Field: "credential", Reason: "no digits"})
}

func (h *authenticatingHandler) verify(ctx context.Context, sc *domain.SessionContext, credential string) Outcome {
	if credential == "" {
		return replyErr(msgMissingCode, &domain.ValidationError{Field: "credential", Reason: "no digits"})
	}

	res, err := h.tools.verify(ctx, sc, sc.UserMobile, credential)
	if err != nil {
		return h.fail(sc, domain.ActionVerify, "", err)
	}

	switch res.Status {
	case domain.VerifySuccess:
		if res.UserID == "" {
			return h.fail(sc, domain.ActionVerify, "store reported success without a user id", nil)
		}
		patch := domain.ContextPatch{
			UserID:          domain.Ptr(res.UserID),
			UserName:        domain.Ptr(res.Name),
			IsAuthenticated: domain.Ptr(true),
			AuthAttempts:    domain.Ptr(0),
			CodeIssued:      domain.Ptr(false),
		}
		if res.Mobile != "" {
			patch.UserMobile = domain.Ptr(res.Mobile)
		}
		return transition(domain.Transition{
			Action: domain.ActionVerify,
			Next:   domain.RoleMain,
			Patch:  patch,
			Silent: true,
		})

	case domain.VerifyPending:
		// A code was submitted, so pending is not an answer.
		return h.fail(sc, domain.ActionVerify, "store still pending after a code was submitted", nil)

	default:
		return h.fail(sc, domain.ActionVerify, res.Reason, nil)
	}
}

// issue asks the store for a fresh code.
func (h *authenticatingHandler) issue(ctx context.Context, sc *domain.SessionContext) Outcome {
	res, err := h.tools.verify(ctx, sc, sc.UserMobile, "")
	if err != nil {
		return h.fail(sc, domain.ActionResendCode, "", err)
	}
	if res.Status != domain.VerifyPending {
		return h.fail(sc, domain.ActionResendCode, "code could not be issued", nil)
	}
	return transition(domain.Transition{
		Action: domain.ActionResendCode,
		Next:   domain.RoleAuthenticating,
		Patch:  domain.ContextPatch{CodeIssued: domain.Ptr(true)},
		Reply:  msgCodeSent,
	})
}

// fail counts one failed store call and either re-prompts or locks the session.
func (h *authenticatingHandler) fail(sc *domain.SessionContext, action domain.Action, reason string, cause error) Outcome {
	attempts := sc.AuthAttempts + 1
	failure := &domain.VerificationFailure{Attempt: attempts, Reason: reason, Err: cause}

	if attempts >= domain.MaxAuthAttempts {
		return Outcome{
			Transition: &domain.Transition{
				Action: action,
				Next:   domain.RoleLocked,
				Patch:  domain.ContextPatch{AuthAttempts: domain.Ptr(domain.MaxAuthAttempts)},
				Reply:  lockoutNotice(h.policy, domain.MaxAuthAttempts),
			},
			Err: failure,
		}
	}

	msg := retryPrompt(attempts)
	var xe *domain.ExternalServiceError
	if errors.As(cause, &xe) {
		msg = msgVerifyUnavailable
	}
	return Outcome{
		Transition: &domain.Transition{
			Action: action,
			Next:   domain.RoleAuthenticating,
			Patch:  domain.ContextPatch{AuthAttempts: domain.Ptr(attempts)},
			Reply:  msg,
		},
		Err: failure,
	}
}
