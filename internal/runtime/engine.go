package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/gocare/internal/logging"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/intent"
	"github.com/aretw0/gocare/pkg/ports"
	"github.com/aretw0/gocare/pkg/security"
)

// Engine holds what every session shares: the role handlers, the transition
// table, the external stores and the policy. It creates one Orchestrator per
// conversation.
type Engine struct {
	handlers  map[domain.Role]RoleHandler
	table     Table
	filter    *security.Filter
	sanitizer security.Sanitizer
	detector  ports.IntentDetector
	responder ports.Responder
	audit     ports.AuditSink
	tools     *toolbox
	policy    domain.Policy
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	now       func() time.Time
	overrides map[domain.Role]RoleHandler
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = domain.MergeHooks(e.hooks, hooks)
	}
}

// WithPolicy sets the product policy. Zero fields take their defaults.
func WithPolicy(p domain.Policy) EngineOption {
	return func(e *Engine) {
		e.policy = p.WithDefaults()
	}
}

// WithDetector replaces the keyword-rule intent detector.
func WithDetector(d ports.IntentDetector) EngineOption {
	return func(e *Engine) {
		if d != nil {
			e.detector = d
		}
	}
}

// WithResponder sets the free-form responder used by Main and Helpline.
func WithResponder(r ports.Responder) EngineOption {
	return func(e *Engine) {
		e.responder = r
	}
}

// WithAuditSink routes security audit entries to sink.
func WithAuditSink(sink ports.AuditSink) EngineOption {
	return func(e *Engine) {
		e.audit = sink
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithHandler replaces the handler of one role.
func WithHandler(h RoleHandler) EngineOption {
	return func(e *Engine) {
		if e.overrides == nil {
			e.overrides = make(map[domain.Role]RoleHandler)
		}
		e.overrides[h.Role()] = h
	}
}

// NewEngine creates an engine over the given identity and data stores.
func NewEngine(identity ports.IdentityStore, data ports.DataStore, opts ...EngineOption) *Engine {
	e := &Engine{
		table:     DefaultTable(),
		sanitizer: security.NewSanitizer(),
		detector:  intent.NewRules(),
		policy:    domain.DefaultPolicy(),
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.filter = security.NewFilter(e.audit, e.logger)
	e.tools = &toolbox{
		identity: identity,
		data:     data,
		timeout:  e.policy.ExternalCallTimeout,
		hooks:    &e.hooks,
		logger:   e.logger,
		now:      e.now,
	}

	e.handlers = map[domain.Role]RoleHandler{
		domain.RoleGreeting:       &greetingHandler{},
		domain.RoleAuthenticating: &authenticatingHandler{tools: e.tools, policy: e.policy},
		domain.RoleMain:           &assistantHandler{tools: e.tools, policy: e.policy, responder: e.responder, logger: e.logger},
		domain.RoleHelpline:       &helplineHandler{policy: e.policy, responder: e.responder, logger: e.logger},
		domain.RoleLocked:         &lockedHandler{policy: e.policy},
	}
	for role, h := range e.overrides {
		e.handlers[role] = h
	}
	return e
}

// Policy returns the effective policy.
func (e *Engine) Policy() domain.Policy {
	return e.policy
}

// Table returns the transition table.
func (e *Engine) Table() Table {
	return e.table
}

// Handler returns the handler of a role.
func (e *Engine) Handler(r domain.Role) RoleHandler {
	return e.handlers[r]
}

var errNotConfigured = errors.New("store not configured")

// toolbox wraps the external stores with the call timeout and tool hooks.
type toolbox struct {
	identity ports.IdentityStore
	data     ports.DataStore
	timeout  time.Duration
	hooks    *domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
}

func (t *toolbox) verify(ctx context.Context, sc *domain.SessionContext, identifier, credential string) (domain.VerifyResult, error) {
	if t.identity == nil {
		return domain.VerifyResult{}, &domain.ExternalServiceError{Service: "identity", Op: "verify", Err: errNotConfigured}
	}
	// The credential is never put on events or logs.
	input := map[string]any{"identifier": identifier, "issue_code": credential == ""}

	var res domain.VerifyResult
	err := t.call(ctx, sc, "verify", input, func(ctx context.Context) (any, error) {
		var err error
		res, err = t.identity.Verify(ctx, identifier, credential)
		return res.Status, err
	})
	if err != nil {
		return domain.VerifyResult{}, &domain.ExternalServiceError{Service: "identity", Op: "verify", Err: err}
	}
	return res, nil
}

func (t *toolbox) fetch(ctx context.Context, sc *domain.SessionContext, kind domain.DataKind) (domain.Record, error) {
	if t.data == nil {
		return nil, &domain.ExternalServiceError{Service: "data", Op: string(kind), Err: errNotConfigured}
	}
	input := map[string]any{"kind": string(kind), "user_id": sc.UserID}

	var rec domain.Record
	err := t.call(ctx, sc, "fetch_"+string(kind), input, func(ctx context.Context) (any, error) {
		var err error
		rec, err = t.data.Fetch(ctx, kind, sc.UserID)
		return len(rec), err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.ExternalServiceError{Service: "data", Op: string(kind), Err: err}
	}
	return rec, nil
}

// call runs fn under the external call timeout and emits tool events.
func (t *toolbox) call(ctx context.Context, sc *domain.SessionContext, name string, input any, fn func(context.Context) (any, error)) error {
	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := t.now()
	if t.hooks.OnToolCall != nil {
		t.hooks.OnToolCall(ctx, &domain.ToolEvent{
			EventBase: domain.EventBase{Timestamp: start, Type: domain.EventToolCall, SessionID: sc.SessionID},
			Role:      sc.Role,
			ToolName:  name,
			Input:     input,
		})
	}

	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	var abandoned atomic.Bool
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("panic in %s: %v", name, p)}
			}
		}()
		out, err := fn(callCtx)
		if abandoned.Load() {
			t.logger.Warn("stray external call returned", "session_id", sc.SessionID, "tool", name,
				"elapsed", t.now().Sub(start), "err", err)
		}
		done <- result{out, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-callCtx.Done():
		// A store that ignores its context must not hold the turn past the deadline.
		abandoned.Store(true)
		t.logger.Warn("external call still running after cancel", "session_id", sc.SessionID, "tool", name,
			"err", callCtx.Err())
		r = result{err: callCtx.Err()}
	}

	if r.err != nil {
		t.logger.Warn("external call failed", "session_id", sc.SessionID, "tool", name, "err", r.err)
	}
	if t.hooks.OnToolReturn != nil {
		t.hooks.OnToolReturn(ctx, &domain.ToolEvent{
			EventBase: domain.EventBase{Timestamp: t.now(), Type: domain.EventToolReturn, SessionID: sc.SessionID},
			Role:      sc.Role,
			ToolName:  name,
			Output:    r.out,
			IsError:   r.err != nil,
			Duration:  t.now().Sub(start),
		})
	}
	return r.err
}
