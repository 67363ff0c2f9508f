package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/gocare/internal/logging"
	"github.com/aretw0/gocare/internal/runtime"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
	"github.com/google/uuid"
)

// ErrSessionExists is returned by Open for an id that is already live.
var ErrSessionExists = errors.New("session already exists")

// DefaultLockTTL bounds how long a distributed turn lock is held if never released.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager is the registry of live conversations. It serialises turns per session
// (locally, and across replicas when a DistributedLocker is configured) and keeps
// inspection snapshots in an optional SnapshotStore.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	engine *runtime.Engine
	store  ports.SnapshotStore

	mu       sync.Mutex            // Global lock for the maps
	locks    map[string]*lockEntry // Map of active locks
	sessions map[string]*Conversation

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
	newID   func() string
}

// Option configures the Manager.
type Option func(*Manager)

// WithStore keeps a snapshot of every session after each turn.
func WithStore(store ports.SnapshotStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIDGenerator overrides uuid session ids.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// NewManager creates a session registry over engine.
func NewManager(engine *runtime.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:   engine,
		locks:    make(map[string]*lockEntry),
		sessions: make(map[string]*Conversation),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(), // Default to no-op
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a session, delivers the handshake and returns the greeting turn.
// An empty sessionID gets a generated one. sink may be nil.
func (m *Manager) Open(ctx context.Context, sessionID string, hs domain.Handshake, sink ports.ReplySink) (*Conversation, domain.TurnResult, error) {
	if sessionID == "" {
		sessionID = m.newID()
	}

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return nil, domain.TurnResult{}, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	conv := NewConversation(m.engine.NewOrchestrator(sessionID),
		WithReplySink(sink),
		WithTurnObserver(m.snapshot),
		WithConversationLogger(m.logger),
	)
	m.sessions[sessionID] = conv
	m.mu.Unlock()

	res, err := conv.Start(ctx, hs)
	if err != nil {
		_ = m.Close(ctx, sessionID)
		return nil, domain.TurnResult{}, err
	}
	m.logger.Info("session opened", "session_id", sessionID)
	return conv, res, nil
}

// Get returns a live conversation.
func (m *Manager) Get(sessionID string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return conv, nil
}

// HandleUtterance runs one user turn on a live session.
func (m *Manager) HandleUtterance(ctx context.Context, sessionID, text string) (domain.TurnResult, error) {
	conv, err := m.Get(sessionID)
	if err != nil {
		return domain.TurnResult{}, err
	}
	var res domain.TurnResult
	err = m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		res, err = conv.HandleUtterance(ctx, text)
		return err
	})
	return res, err
}

// Invoke runs an explicit action sent by the caller on a live session.
func (m *Manager) Invoke(ctx context.Context, sessionID string, call domain.ToolCall) (domain.TurnResult, error) {
	return m.invoke(ctx, sessionID, call, (*Conversation).Invoke)
}

// InvokeAsOperator runs an explicit action, operator actions included.
func (m *Manager) InvokeAsOperator(ctx context.Context, sessionID string, call domain.ToolCall) (domain.TurnResult, error) {
	return m.invoke(ctx, sessionID, call, (*Conversation).InvokeAsOperator)
}

func (m *Manager) invoke(ctx context.Context, sessionID string, call domain.ToolCall,
	run func(*Conversation, context.Context, domain.ToolCall) (domain.TurnResult, error)) (domain.TurnResult, error) {
	conv, err := m.Get(sessionID)
	if err != nil {
		return domain.TurnResult{}, err
	}
	var res domain.TurnResult
	err = m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		res, err = run(conv, ctx, call)
		return err
	})
	return res, err
}

// Inspect returns the session context: the stored snapshot when a store is
// configured, the live context otherwise.
func (m *Manager) Inspect(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	if m.store != nil {
		return m.store.Load(ctx, sessionID)
	}
	conv, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return conv.Context(), nil
}

// Close tears a session down and removes its snapshot.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	conv, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		conv.Close()
	}
	if m.store != nil {
		if err := m.store.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
	}
	if !ok {
		return domain.ErrSessionNotFound
	}
	m.logger.Info("session closed", "session_id", sessionID)
	return nil
}

// List returns the ids of live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListSnapshots delegates to the store.
func (m *Manager) ListSnapshots(ctx context.Context) ([]string, error) {
	if m.store == nil {
		return m.List(), nil
	}
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store, or nil.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// Shutdown closes every live session.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, id := range m.List() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			m.logger.Warn("session close failed", "session_id", id, "err", err)
		}
	}
}

func (m *Manager) snapshot(ctx context.Context, sc *domain.SessionContext) {
	if m.store == nil {
		return
	}
	// The turn's context may already be done; the snapshot still belongs to it.
	if err := m.store.Save(context.WithoutCancel(ctx), sc.SessionID, sc); err != nil {
		m.logger.Warn("snapshot not saved", "session_id", sc.SessionID, "err", err)
	}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "turn:"+sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
