package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/gocare/internal/runtime"
	"github.com/aretw0/gocare/pkg/adapters/memory"
	"github.com/aretw0/gocare/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LockLifecycle(t *testing.T) {
	dir := memory.NewDirectory(memory.DemoUsers()...)
	mgr := NewManager(runtime.NewEngine(dir, dir))
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_ = mgr.WithLock(ctx, sid, func(context.Context) error { return nil })
	}

	lockCount := len(mgr.locks)
	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after WithLock", lockCount)
	}
}

func TestManager_WithLockSerialises(t *testing.T) {
	dir := memory.NewDirectory(memory.DemoUsers()...)
	mgr := NewManager(runtime.NewEngine(dir, dir))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.WithLock(ctx, "same", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, mgr.locks)
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
	ttls []time.Duration
	open int
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	l.open++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.open--
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	dir := memory.NewDirectory(memory.DemoUsers()...)
	locker := &recordingLocker{}
	mgr := NewManager(runtime.NewEngine(dir, dir), WithLocker(locker), WithLockTTL(5*time.Second))

	err := mgr.WithLock(context.Background(), "s-1", func(context.Context) error {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		assert.Equal(t, 1, locker.open)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"turn:s-1"}, locker.keys)
	assert.Equal(t, []time.Duration{5 * time.Second}, locker.ttls)
	assert.Zero(t, locker.open)
}
