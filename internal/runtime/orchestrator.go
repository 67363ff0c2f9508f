package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/gocare/pkg/domain"
)

// Orchestrator owns the SessionContext of one conversation. It runs one turn at a
// time: a turn that is waiting on an external call blocks the next one.
type Orchestrator struct {
	engine *Engine
	logger *slog.Logger

	turnMu sync.Mutex // serialises turns

	mu      sync.RWMutex // guards sc
	sc      *domain.SessionContext
	started bool
}

// NewOrchestrator creates the orchestrator of a new session in the Greeting role.
func (e *Engine) NewOrchestrator(sessionID string) *Orchestrator {
	return &Orchestrator{
		engine: e,
		logger: e.logger.With("session_id", sessionID),
		sc:     domain.NewSessionContext(sessionID),
	}
}

// Context returns a copy of the committed session context.
func (o *Orchestrator) Context() *domain.SessionContext {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sc.Clone()
}

// Role returns the active role.
func (o *Orchestrator) Role() domain.Role {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sc.Role
}

// Actions lists what the active role offers, operator actions included.
func (o *Orchestrator) Actions() []domain.ActionSpec {
	sc := o.Context()
	return o.engine.handlers[sc.Role].Actions(sc)
}

// Start records the handshake hints and returns the Greeting entry line.
// Calling Start again returns the active role's entry line without touching the context.
func (o *Orchestrator) Start(ctx context.Context, hs domain.Handshake) domain.TurnResult {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.mu.Lock()
	if !o.started {
		o.started = true
		o.sc.DisplayNameHint = strings.TrimSpace(hs.UserName)
		o.sc.IdentifierHint = normalizeIdentifier(hs.UserID)
	}
	sc := o.sc.Clone()
	o.mu.Unlock()

	o.fireRole(ctx, domain.EventRoleEnter, sc)

	var replies []string
	if entry := o.engine.handlers[sc.Role].Enter(sc); entry != "" {
		replies = append(replies, entry)
	}
	if len(replies) > 0 {
		o.mu.Lock()
		o.sc.LastAgentMessage = replies[0]
		o.mu.Unlock()
	}
	return domain.TurnResult{Replies: replies, Role: sc.Role}
}

// HandleUtterance processes one recognised user utterance.
// ctx is the session's lifetime, not a single request's: it returns an error
// only when ctx ends before the turn completes, and the turn is then abandoned
// with the context left as it was.
func (o *Orchestrator) HandleUtterance(ctx context.Context, text string) (domain.TurnResult, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	return o.turn(ctx, text, nil)
}

// Invoke runs an explicit action sent by the caller's transport. Only actions
// the active role offers to callers are accepted.
func (o *Orchestrator) Invoke(ctx context.Context, call domain.ToolCall) (domain.TurnResult, error) {
	return o.invoke(ctx, call, false)
}

// InvokeAsOperator runs an explicit action on behalf of an operator; operator
// actions such as restart_verification are accepted too.
func (o *Orchestrator) InvokeAsOperator(ctx context.Context, call domain.ToolCall) (domain.TurnResult, error) {
	return o.invoke(ctx, call, true)
}

func (o *Orchestrator) invoke(ctx context.Context, call domain.ToolCall, operator bool) (domain.TurnResult, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	sc := o.Context()
	h := o.engine.handlers[sc.Role]
	offered := h.Actions(sc)
	if !operator {
		offered = domain.UserFacing(offered)
	}
	if !hasAction(offered, call.Action) {
		o.logger.Warn("action not available", "role", sc.Role, "action", call.Action, "operator", operator)
		return domain.TurnResult{Replies: []string{msgActionUnavailable}, Role: sc.Role},
			fmt.Errorf("%w: %s in role %s", domain.ErrActionUnavailable, call.Action, sc.Role)
	}
	in := call.Intent()
	return o.turn(ctx, "", &in)
}

func (o *Orchestrator) turn(ctx context.Context, text string, forced *domain.Intent) (domain.TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TurnResult{}, fmt.Errorf("turn abandoned: %w", err)
	}

	start := o.engine.now()
	current := o.Context()
	h := o.engine.handlers[current.Role]

	var in domain.Intent
	switch {
	case forced != nil:
		in = *forced
	default:
		clean, err := o.engine.sanitizer.Clean(text)
		if err != nil {
			o.logger.Warn("utterance rejected", "role", current.Role, "err", err)
			out := replyErr(msgUnclearInput, err)
			return o.finish(ctx, current, "", domain.ActionNone, out, start)
		}
		text = clean

		if ct, ok := h.(credentialTaker); ok && ct.TakesCredential(current, text) {
			in = domain.Intent{Action: domain.ActionVerify, Args: map[string]any{domain.ArgCredential: text}, Text: text}
			break
		}
		if keyword, hit := o.engine.filter.Match(text); hit {
			return o.refuse(ctx, current, text, keyword, start)
		}
		in = o.detect(ctx, h, current, text)
	}

	out := o.dispatch(ctx, h, current, in)
	if err := ctx.Err(); err != nil {
		o.logger.Info("turn abandoned", "role", current.Role, "action", in.Action, "err", err)
		return domain.TurnResult{}, fmt.Errorf("turn abandoned: %w", err)
	}
	return o.finish(ctx, current, text, in.Action, out, start)
}

func (o *Orchestrator) refuse(ctx context.Context, current *domain.SessionContext, text, keyword string, start time.Time) (domain.TurnResult, error) {
	o.engine.filter.LogAttempt(ctx, current.UserID, text)
	if hook := o.engine.hooks.OnSecurityViolation; hook != nil {
		hook(ctx, &domain.SecurityEvent{
			EventBase: domain.EventBase{Timestamp: o.engine.now(), Type: domain.EventSecurityViolation, SessionID: current.SessionID},
			Role:      current.Role,
			UserID:    current.UserID,
		})
	}
	out := replyErr(o.engine.filter.RefusalMessage(), &domain.SecurityViolation{UserID: current.UserID, Keyword: keyword})
	return o.finish(ctx, current, text, domain.ActionNone, out, start)
}

func (o *Orchestrator) detect(ctx context.Context, h RoleHandler, sc *domain.SessionContext, text string) domain.Intent {
	specs := domain.UserFacing(h.Actions(sc))

	dctx := ctx
	if t := o.engine.policy.ExternalCallTimeout; t > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	in, err := o.engine.detector.Detect(dctx, sc.Role, specs, text)
	if err != nil {
		o.logger.Warn("intent detection failed", "role", sc.Role, "err", err)
		return domain.Intent{Text: text}
	}
	in.Text = text
	if in.Action != domain.ActionNone && !hasAction(specs, in.Action) {
		o.logger.Debug("detected action not offered by role", "role", sc.Role, "action", in.Action)
		return domain.Intent{Text: text}
	}
	return in
}

func (o *Orchestrator) dispatch(ctx context.Context, h RoleHandler, sc *domain.SessionContext, in domain.Intent) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("panic in %s handler: %v", h.Role(), r)}
		}
	}()
	return h.Handle(ctx, sc.Clone(), in)
}

// finish turns a handler outcome into the committed context and the spoken replies.
// Nothing is committed when the outcome or its transition is rejected, except the
// last-message diagnostics.
func (o *Orchestrator) finish(ctx context.Context, current *domain.SessionContext, text string, action domain.Action, out Outcome, start time.Time) (domain.TurnResult, error) {
	next := current.Clone()
	var replies []string
	var committed *domain.Transition
	label := "reply"

	switch {
	case out.Err != nil && !recovered(out.Err):
		o.logger.Error("turn failed", "role", current.Role, "action", action, "err", out.Err)
		replies = []string{msgFallback}
		label = "fallback"

	case out.Transition != nil:
		tr := *out.Transition
		candidate, err := o.apply(current, tr)
		if err != nil {
			o.logger.Error("transition rejected", "role", current.Role, "action", tr.Action, "next", tr.Next, "err", err)
			replies = []string{msgFallback}
			label = "fallback"
			break
		}
		next = candidate
		committed = &tr
		label = "transition"
		if out.Err != nil {
			label = outcomeLabel(out.Err)
		}
		if !tr.Silent && tr.Reply != "" {
			replies = append(replies, tr.Reply)
		}
		if next.Role != current.Role {
			if entry := o.engine.handlers[next.Role].Enter(next); entry != "" {
				replies = append(replies, entry)
			}
		}

	default:
		if out.Reply != "" {
			replies = append(replies, out.Reply)
		}
		if out.Err != nil {
			label = outcomeLabel(out.Err)
			o.logger.Debug("turn recovered", "role", current.Role, "action", action, "err", out.Err)
		}
	}

	if text != "" {
		next.LastUserMessage = text
	}
	if len(replies) > 0 {
		next.LastAgentMessage = strings.Join(replies, " ")
	}

	o.mu.Lock()
	o.sc = next
	o.mu.Unlock()

	if committed != nil {
		o.fireTransition(ctx, current, next, *committed)
	}

	res := domain.TurnResult{Replies: replies, Role: next.Role, Changes: domain.Diff(current, next)}
	if hook := o.engine.hooks.OnTurn; hook != nil {
		hook(ctx, &domain.TurnEvent{
			EventBase: domain.EventBase{Timestamp: o.engine.now(), Type: domain.EventTurn, SessionID: next.SessionID},
			Role:      current.Role,
			Action:    action,
			Outcome:   label,
			Duration:  o.engine.now().Sub(start),
		})
	}
	return res, nil
}

// apply validates tr against the table and the context invariants and returns the
// resulting context. current is not modified.
func (o *Orchestrator) apply(current *domain.SessionContext, tr domain.Transition) (*domain.SessionContext, error) {
	if err := o.engine.table.Check(current.Role, tr); err != nil {
		return nil, err
	}
	next := tr.Patch.Apply(current)
	next.Role = tr.Next
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

func (o *Orchestrator) fireTransition(ctx context.Context, from, to *domain.SessionContext, tr domain.Transition) {
	o.logger.Info("transition", "from", from.Role, "to", to.Role, "action", tr.Action, "silent", tr.Silent)

	hooks := o.engine.hooks
	if from.Role != to.Role {
		o.fireRole(ctx, domain.EventRoleLeave, from)
	}
	if hooks.OnTransition != nil {
		hooks.OnTransition(ctx, &domain.TransitionEvent{
			EventBase: domain.EventBase{Timestamp: o.engine.now(), Type: domain.EventTransition, SessionID: to.SessionID},
			From:      from.Role,
			To:        to.Role,
			Action:    tr.Action,
			Silent:    tr.Silent,
		})
	}
	if from.Role != to.Role {
		o.fireRole(ctx, domain.EventRoleEnter, to)
	}
}

func (o *Orchestrator) fireRole(ctx context.Context, typ domain.EventType, sc *domain.SessionContext) {
	hook := o.engine.hooks.OnRoleEnter
	if typ == domain.EventRoleLeave {
		hook = o.engine.hooks.OnRoleLeave
	}
	if hook == nil {
		return
	}
	hook(ctx, &domain.RoleEvent{
		EventBase: domain.EventBase{Timestamp: o.engine.now(), Type: typ, SessionID: sc.SessionID},
		Role:      sc.Role,
	})
}

// recovered reports whether err is one of the conditions handlers recover from locally.
func recovered(err error) bool {
	var (
		ve *domain.ValidationError
		vf *domain.VerificationFailure
		xe *domain.ExternalServiceError
		sv *domain.SecurityViolation
	)
	return errors.As(err, &ve) || errors.As(err, &vf) || errors.As(err, &xe) ||
		errors.As(err, &sv) || errors.Is(err, domain.ErrNotFound)
}

func outcomeLabel(err error) string {
	var (
		ve *domain.ValidationError
		vf *domain.VerificationFailure
		sv *domain.SecurityViolation
	)
	switch {
	case errors.As(err, &sv):
		return "refused"
	case errors.As(err, &vf):
		return "verification_failed"
	case errors.As(err, &ve):
		return "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "service_error"
}
