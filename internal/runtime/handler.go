package runtime

import (
	"context"

	"github.com/aretw0/gocare/pkg/domain"
)

// RoleHandler is the behaviour of one conversational role.
// Handlers are stateless: everything they know about the caller is in the
// SessionContext they are handed, which they must not modify.
type RoleHandler interface {
	Role() domain.Role

	// Enter returns the line spoken when the role becomes active. May be empty.
	Enter(sc *domain.SessionContext) string

	// Actions lists what the role can do in its current context.
	Actions(sc *domain.SessionContext) []domain.ActionSpec

	// Handle reacts to one intent.
	Handle(ctx context.Context, sc *domain.SessionContext, in domain.Intent) Outcome
}

// credentialTaker is implemented by roles whose user text may be a verification
// credential. Such text is passed as a tool argument and bypasses the keyword filter.
type credentialTaker interface {
	TakesCredential(sc *domain.SessionContext, text string) bool
}

// Outcome is what a handler returns for one turn.
// Exactly one of Reply or Transition is normally set.
type Outcome struct {
	Reply      string
	Transition *domain.Transition

	// Err classifies the turn: one of the domain taxonomy errors for recovered
	// conditions, anything else for an internal failure.
	Err error
}

func reply(text string) Outcome {
	return Outcome{Reply: text}
}

func replyErr(text string, err error) Outcome {
	return Outcome{Reply: text, Err: err}
}

func transition(t domain.Transition) Outcome {
	return Outcome{Transition: &t}
}

// hasAction reports whether specs offers a.
func hasAction(specs []domain.ActionSpec, a domain.Action) bool {
	for _, s := range specs {
		if s.Action == a {
			return true
		}
	}
	return false
}
