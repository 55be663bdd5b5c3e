package ownerlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockIsExclusivePerOwner(t *testing.T) {
	m := NewManager(Options{})
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "alice")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, m.size())
}

func TestDifferentOwnersDoNotContend(t *testing.T) {
	m := NewManager(Options{})
	ctx := context.Background()

	unlockAlice, err := m.Lock(ctx, "alice")
	require.NoError(t, err)
	defer unlockAlice()

	done := make(chan struct{})
	go func() {
		unlock, err := m.Lock(ctx, "bob")
		if err == nil {
			unlock()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("bob blocked on alice's lock")
	}
}

func TestReadersShareButExcludeWriter(t *testing.T) {
	m := NewManager(Options{})
	ctx := context.Background()

	r1, err := m.RLock(ctx, "alice")
	require.NoError(t, err)
	r2, err := m.RLock(ctx, "alice")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlock, err := m.Lock(ctx, "alice")
		if err == nil {
			close(acquired)
			unlock()
		}
	}()

	select {
	case <-acquired:
		t.Fatalf("writer acquired while readers held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	r1()
	r2()
	r2() // releasing twice is harmless

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatalf("writer never acquired the lock")
	}
}

func TestRLockHonoursCancelledContext(t *testing.T) {
	m := NewManager(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.RLock(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.size())
}

func TestLockWaitIsCancellable(t *testing.T) {
	m := NewManager(Options{Wait: time.Minute})

	unlock, err := m.Lock(context.Background(), "alice")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() {
		_, err := m.Lock(ctx, "alice")
		errs <- err
	}()
	go func() {
		_, err := m.RLock(ctx, "alice")
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatalf("waiter ignored cancellation")
		}
	}
}

func TestLockWaitTimesOut(t *testing.T) {
	m := NewManager(Options{Wait: 20 * time.Millisecond})

	unlock, err := m.Lock(context.Background(), "alice")
	require.NoError(t, err)

	_, err = m.Lock(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	_, err = m.RLock(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	unlock()
	assert.Zero(t, m.size())

	unlock, err = m.Lock(context.Background(), "alice")
	require.NoError(t, err)
	unlock()
}
