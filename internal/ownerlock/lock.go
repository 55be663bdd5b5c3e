package ownerlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/equiplytics/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// writerWeight is the full semaphore capacity; readers take one unit each.
const writerWeight = 1 << 30

// Manager hands out per-owner read/write locks. Writers additionally take a
// redis lock when one is configured so that several instances agree.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry

	remote  *RedisLocker
	ttl     time.Duration
	wait    time.Duration
	metrics *metrics.Pipeline
	log     *zap.Logger
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

type Options struct {
	Remote  *RedisLocker
	TTL     time.Duration
	Wait    time.Duration
	Metrics *metrics.Pipeline
	Log     *zap.Logger
}

func NewManager(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	wait := opts.Wait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &Manager{
		locks:   map[string]*entry{},
		remote:  opts.Remote,
		ttl:     ttl,
		wait:    wait,
		metrics: opts.Metrics,
		log:     log.Named("ownerlock"),
	}
}

// Lock takes the exclusive lock for owner. The returned func releases it and
// must be called exactly once.
func (m *Manager) Lock(ctx context.Context, owner string) (func(), error) {
	start := time.Now()
	e := m.acquire(owner)
	if err := m.acquireLocal(ctx, e, writerWeight); err != nil {
		m.release(owner, e)
		return nil, err
	}

	var token string
	if m.remote != nil {
		waitCtx, cancel := context.WithTimeout(ctx, m.wait)
		t, err := m.remote.Acquire(waitCtx, owner, m.ttl)
		cancel()
		if err != nil {
			e.sem.Release(writerWeight)
			m.release(owner, e)
			return nil, fmt.Errorf("owner lock: %w", err)
		}
		token = t
	}
	m.metrics.ObserveOwnerLockWait(time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() {
			if token != "" {
				// the request context may already be cancelled
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				if err := m.remote.Release(releaseCtx, owner, token); err != nil {
					m.log.Warn("release remote lock", zap.String("owner_id", owner), zap.Error(err))
				}
				cancel()
			}
			e.sem.Release(writerWeight)
			m.release(owner, e)
		})
	}, nil
}

// RLock takes the shared lock for owner on this instance. A waiting writer
// blocks new readers.
func (m *Manager) RLock(ctx context.Context, owner string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	e := m.acquire(owner)
	if err := m.acquireLocal(ctx, e, 1); err != nil {
		m.release(owner, e)
		return nil, err
	}
	m.metrics.ObserveOwnerLockWait(time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.release(owner, e)
		})
	}, nil
}

// acquireLocal blocks until n units are free, ctx is done or the configured wait
// elapses. Running out of wait time yields ErrLockNotAcquired.
func (m *Manager) acquireLocal(ctx context.Context, e *entry, n int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, m.wait)
	defer cancel()
	if err := e.sem.Acquire(waitCtx, n); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrLockNotAcquired, err)
	}
	return nil
}

func (m *Manager) acquire(owner string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[owner]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(writerWeight)}
		m.locks[owner] = e
	}
	e.refs++
	return e
}

func (m *Manager) release(owner string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, owner)
	}
}

func (m *Manager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
