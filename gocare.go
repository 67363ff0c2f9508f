package gocare

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/gocare/internal/logging"
	"github.com/aretw0/gocare/internal/runtime"
	"github.com/aretw0/gocare/pkg/adapters/memory"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
	"github.com/aretw0/gocare/pkg/session"
)

// Version is the release version, set with -ldflags "-X github.com/aretw0/gocare.Version=...".
var Version = "0.1.0-dev"

// SupportLine is the high-level entry point for the gocare library.
// It wraps the internal runtime and the session manager.
type SupportLine struct {
	engine  *runtime.Engine
	manager *session.Manager
	logger  *slog.Logger
}

type options struct {
	logger     *slog.Logger
	engineOpts []runtime.EngineOption
	mgrOpts    []session.Option
}

// Option defines a functional option for configuring the SupportLine.
type Option func(*options)

// WithLogger sets a custom structured logger for the engine and sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPolicy sets the product policy. Zero fields take their defaults.
func WithPolicy(p domain.Policy) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, runtime.WithPolicy(p))
	}
}

// WithLifecycleHooks registers observability hooks. May be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithDetector replaces the keyword intent detector.
func WithDetector(d ports.IntentDetector) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, runtime.WithDetector(d))
	}
}

// WithResponder sets the free-form responder used by Main and Helpline.
func WithResponder(r ports.Responder) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, runtime.WithResponder(r))
	}
}

// WithAuditSink routes security audit entries to sink.
func WithAuditSink(sink ports.AuditSink) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, runtime.WithAuditSink(sink))
	}
}

// WithStore snapshots every committed turn to store.
func WithStore(store ports.SnapshotStore) Option {
	return func(o *options) {
		o.mgrOpts = append(o.mgrOpts, session.WithStore(store))
	}
}

// WithLocker serialises turns of one session across replicas.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(o *options) {
		o.mgrOpts = append(o.mgrOpts, session.WithLocker(locker), session.WithLockTTL(ttl))
	}
}

// New creates a support line over dir. A nil dir uses the built-in demo users.
func New(dir ports.Directory, opts ...Option) *SupportLine {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if dir == nil {
		dir = memory.NewDirectory(memory.DemoUsers()...)
	}

	engine := runtime.NewEngine(dir, dir, append([]runtime.EngineOption{runtime.WithLogger(o.logger)}, o.engineOpts...)...)
	manager := session.NewManager(engine, append([]session.Option{session.WithLogger(o.logger)}, o.mgrOpts...)...)
	return &SupportLine{engine: engine, manager: manager, logger: o.logger}
}

// Manager returns the session registry.
func (l *SupportLine) Manager() *session.Manager {
	return l.manager
}

// Policy returns the effective policy.
func (l *SupportLine) Policy() domain.Policy {
	return l.engine.Policy()
}

// Open starts a call. An empty sessionID gets a generated one.
func (l *SupportLine) Open(ctx context.Context, sessionID string, hs domain.Handshake) (*session.Conversation, domain.TurnResult, error) {
	return l.manager.Open(ctx, sessionID, hs, nil)
}

// Transitions lists the permitted role changes as (from, action, to) triples.
func (l *SupportLine) Transitions() [][3]string {
	return l.engine.Table().Edges()
}

// Shutdown closes every live call.
func (l *SupportLine) Shutdown(ctx context.Context) {
	l.manager.Shutdown(ctx)
}
