package ports

import (
	"context"

	"github.com/aretw0/gocare/pkg/domain"
)

// IntentDetector reads an utterance and names the action it asks for.
// actions is the set the active role exposes; detectors must not return others.
type IntentDetector interface {
	Detect(ctx context.Context, role domain.Role, actions []domain.ActionSpec, text string) (domain.Intent, error)
}

// Responder produces free-form reply text for utterances that carry no action.
type Responder interface {
	Respond(ctx context.Context, sc *domain.SessionContext, text string) (string, error)
}

// ReplySink is the transport's outbound channel.
type ReplySink interface {
	SendReply(ctx context.Context, text string) error
}

// ReplySinkFunc adapts a function to ReplySink.
type ReplySinkFunc func(ctx context.Context, text string) error

func (f ReplySinkFunc) SendReply(ctx context.Context, text string) error {
	return f(ctx, text)
}
