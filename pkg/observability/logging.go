package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/gocare/pkg/domain"
)

// LoggingHooks logs transitions, external calls and refusals at debug/info level.
// Tool inputs are never logged; they may carry credentials.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "transition",
				"session_id", e.SessionID,
				"from", e.From,
				"to", e.To,
				"action", e.Action,
				"silent", e.Silent,
			)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			logger.DebugContext(ctx, "external call",
				"session_id", e.SessionID,
				"role", e.Role,
				"tool", e.ToolName,
				"is_error", e.IsError,
				"duration", e.Duration,
			)
		},
		OnSecurityViolation: func(ctx context.Context, e *domain.SecurityEvent) {
			logger.WarnContext(ctx, "utterance refused",
				"session_id", e.SessionID,
				"role", e.Role,
			)
		},
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			logger.DebugContext(ctx, "turn",
				"session_id", e.SessionID,
				"role", e.Role,
				"action", e.Action,
				"outcome", e.Outcome,
				"duration", e.Duration,
			)
		},
	}
}
