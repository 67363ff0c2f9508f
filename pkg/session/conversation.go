package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/gocare/internal/logging"
	"github.com/aretw0/gocare/internal/runtime"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
)

const inboxSize = 32

type requestKind int

const (
	kindStart requestKind = iota
	kindUtterance
	kindInvoke
	kindOperator
)

// Request states. The caller may withdraw a queued request; once the worker
// has taken it, the turn runs to completion and is committed.
const (
	stateQueued int32 = iota
	stateTaken
	stateWithdrawn
)

type request struct {
	state *atomic.Int32
	kind  requestKind
	text  string
	hs    domain.Handshake
	call  domain.ToolCall
	resp  chan response
}

type response struct {
	res domain.TurnResult
	err error
}

// TurnObserver is called on the session's worker after every committed turn.
type TurnObserver func(ctx context.Context, sc *domain.SessionContext)

// Conversation is the per-connection container: the orchestrator, the transcript
// and the outbound reply sink. Turns are processed one at a time, in arrival
// order, by a single worker goroutine.
type Conversation struct {
	id       string
	orch     *runtime.Orchestrator
	sink     ports.ReplySink
	observer TurnObserver
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan request
	done   chan struct{}
	once   sync.Once

	mu         sync.Mutex
	transcript []domain.TranscriptEntry
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithReplySink sets where replies are sent as they are produced.
func WithReplySink(sink ports.ReplySink) ConversationOption {
	return func(c *Conversation) {
		c.sink = sink
	}
}

// WithTurnObserver registers a callback run after every turn.
func WithTurnObserver(fn TurnObserver) ConversationOption {
	return func(c *Conversation) {
		c.observer = fn
	}
}

// WithConversationLogger sets the logger.
func WithConversationLogger(logger *slog.Logger) ConversationOption {
	return func(c *Conversation) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConversation wraps orch and starts its worker. Close must be called to stop it.
func NewConversation(orch *runtime.Orchestrator, opts ...ConversationOption) *Conversation {
	ctx, cancel := context.WithCancel(context.Background())
	sc := orch.Context()
	c := &Conversation{
		id:     sc.SessionID,
		orch:   orch,
		logger: logging.NewNop(),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		inbox:  make(chan request, inboxSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session_id", c.id)
	go c.run()
	return c
}

// ID returns the session id.
func (c *Conversation) ID() string { return c.id }

// Start delivers the participant handshake and speaks the greeting.
func (c *Conversation) Start(ctx context.Context, hs domain.Handshake) (domain.TurnResult, error) {
	return c.submit(ctx, request{kind: kindStart, hs: hs})
}

// HandleUtterance queues one recognised utterance and waits for its turn result.
func (c *Conversation) HandleUtterance(ctx context.Context, text string) (domain.TurnResult, error) {
	return c.submit(ctx, request{kind: kindUtterance, text: text})
}

// Invoke queues an explicit action and waits for its turn result.
func (c *Conversation) Invoke(ctx context.Context, call domain.ToolCall) (domain.TurnResult, error) {
	return c.submit(ctx, request{kind: kindInvoke, call: call})
}

// InvokeAsOperator queues an explicit action that may be an operator action.
// Transports facing the caller must use Invoke instead.
func (c *Conversation) InvokeAsOperator(ctx context.Context, call domain.ToolCall) (domain.TurnResult, error) {
	return c.submit(ctx, request{kind: kindOperator, call: call})
}

// Context returns a copy of the committed session context.
func (c *Conversation) Context() *domain.SessionContext {
	return c.orch.Context()
}

// Actions lists what the active role offers.
func (c *Conversation) Actions() []domain.ActionSpec {
	return c.orch.Actions()
}

// Transcript returns a copy of every line spoken so far.
func (c *Conversation) Transcript() []domain.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.TranscriptEntry(nil), c.transcript...)
}

// Done is closed once the worker has exited.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

// Close tears the session down: the in-flight turn (and its external call) is
// abandoned, queued turns fail with domain.ErrSessionClosed, and the worker exits.
// Close is idempotent and waits for the worker.
func (c *Conversation) Close() {
	c.once.Do(c.cancel)
	<-c.done
}

// submit queues req and waits for its result. ctx bounds only the wait in the
// queue: a turn the worker has started is finished and committed even when the
// caller has gone, so every external call it made is accounted for.
func (c *Conversation) submit(ctx context.Context, req request) (domain.TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TurnResult{}, err
	}
	req.state = new(atomic.Int32)
	req.resp = make(chan response, 1)

	select {
	case <-c.done:
		return domain.TurnResult{}, domain.ErrSessionClosed
	case <-c.ctx.Done():
		return domain.TurnResult{}, domain.ErrSessionClosed
	case <-ctx.Done():
		return domain.TurnResult{}, ctx.Err()
	case c.inbox <- req:
	}

	waiting := ctx.Done()
	for {
		select {
		case r := <-req.resp:
			return r.res, r.err
		case <-c.done:
			// The worker may have answered just before exiting.
			select {
			case r := <-req.resp:
				return r.res, r.err
			default:
				return domain.TurnResult{}, domain.ErrSessionClosed
			}
		case <-waiting:
			if req.state.CompareAndSwap(stateQueued, stateWithdrawn) {
				return domain.TurnResult{}, ctx.Err()
			}
			// Already running: wait for the committed result.
			waiting = nil
		}
	}
}

func (c *Conversation) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return
		case req := <-c.inbox:
			req.resp <- c.process(req)
		}
	}
}

func (c *Conversation) drain() {
	for {
		select {
		case req := <-c.inbox:
			req.resp <- response{err: domain.ErrSessionClosed}
		default:
			return
		}
	}
}

func (c *Conversation) process(req request) response {
	if !req.state.CompareAndSwap(stateQueued, stateTaken) {
		return response{err: context.Canceled}
	}

	// Only teardown abandons a started turn.
	ctx := c.ctx

	var (
		res domain.TurnResult
		err error
	)
	switch req.kind {
	case kindStart:
		res = c.orch.Start(ctx, req.hs)
	case kindUtterance:
		c.record(domain.SpeakerUser, c.orch.Role(), req.text)
		res, err = c.orch.HandleUtterance(ctx, req.text)
	case kindInvoke:
		res, err = c.orch.Invoke(ctx, req.call)
	case kindOperator:
		res, err = c.orch.InvokeAsOperator(ctx, req.call)
	default:
		err = fmt.Errorf("unknown request kind %d", req.kind)
	}
	if err != nil && c.ctx.Err() != nil {
		return response{err: domain.ErrSessionClosed}
	}

	for _, line := range res.Replies {
		c.record(domain.SpeakerAgent, res.Role, line)
		if c.sink != nil {
			if serr := c.sink.SendReply(ctx, line); serr != nil {
				c.logger.Warn("reply not delivered", "err", serr)
			}
		}
	}
	if c.observer != nil && err == nil {
		c.observer(ctx, c.orch.Context())
	}
	return response{res: res, err: err}
}

func (c *Conversation) record(speaker string, role domain.Role, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = append(c.transcript, domain.TranscriptEntry{
		Speaker: speaker,
		Role:    role,
		Text:    text,
		At:      c.now(),
	})
}
