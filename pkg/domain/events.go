package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRoleEnter         EventType = "role_enter"
	EventRoleLeave         EventType = "role_leave"
	EventTransition        EventType = "transition"
	EventToolCall          EventType = "tool_call"
	EventToolReturn        EventType = "tool_return"
	EventSecurityViolation EventType = "security_violation"
	EventTurn              EventType = "turn"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// RoleEvent represents entry into or exit from a role.
type RoleEvent struct {
	EventBase
	Role Role `json:"role"`
}

// TransitionEvent is emitted after a transition has been committed.
type TransitionEvent struct {
	EventBase
	From   Role   `json:"from"`
	To     Role   `json:"to"`
	Action Action `json:"action"`
	Silent bool   `json:"silent,omitempty"`
}

// ToolEvent represents an external call (identity or data store).
type ToolEvent struct {
	EventBase
	Role     Role          `json:"role"`
	ToolName string        `json:"tool_name"`
	Input    any           `json:"input,omitempty"`
	Output   any           `json:"output,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// SecurityEvent is emitted when the security filter intercepts an utterance.
type SecurityEvent struct {
	EventBase
	Role   Role   `json:"role"`
	UserID string `json:"user_id,omitempty"`
}

// TurnEvent is emitted once per processed turn.
type TurnEvent struct {
	EventBase
	Role     Role          `json:"role"`
	Action   Action        `json:"action"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
type LifecycleHooks struct {
	OnRoleEnter         func(context.Context, *RoleEvent)
	OnRoleLeave         func(context.Context, *RoleEvent)
	OnTransition        func(context.Context, *TransitionEvent)
	OnToolCall          func(context.Context, *ToolEvent)
	OnToolReturn        func(context.Context, *ToolEvent)
	OnSecurityViolation func(context.Context, *SecurityEvent)
	OnTurn              func(context.Context, *TurnEvent)
}

// MergeHooks combines several hook sets; each callback fans out in order.
func MergeHooks(all ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range all {
		out.OnRoleEnter = chain(out.OnRoleEnter, h.OnRoleEnter)
		out.OnRoleLeave = chain(out.OnRoleLeave, h.OnRoleLeave)
		out.OnTransition = chain(out.OnTransition, h.OnTransition)
		out.OnToolCall = chain(out.OnToolCall, h.OnToolCall)
		out.OnToolReturn = chain(out.OnToolReturn, h.OnToolReturn)
		out.OnSecurityViolation = chain(out.OnSecurityViolation, h.OnSecurityViolation)
		out.OnTurn = chain(out.OnTurn, h.OnTurn)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
