package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizhall/go/internal/kvstore"
)

func testConfig() Config {
	return Config{LockTTL: 2 * time.Second, PollInterval: time.Millisecond}
}

func newPair() (*Executor, *Executor, *kvstore.Memory) {
	clock := clockwork.NewRealClock()
	kv := kvstore.NewMemory(clock)
	locker := NewStoreLocker(kv)
	return New(locker, clock, testConfig()), New(locker, clock, testConfig()), kv
}

func TestSubmitIsExclusiveAcrossProcesses(t *testing.T) {
	a, b, _ := newPair()
	ctx := context.Background()

	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		version  int64
		seen     sync.Map
		wg       sync.WaitGroup
	)
	const n = 40
	for i := 0; i < n; i++ {
		ex := a
		if i%2 == 1 {
			ex = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ex.Submit(ctx, "s1", func(context.Context) error {
				cur := inFlight.Add(1)
				defer inFlight.Add(-1)
				if cur > maxSeen.Load() {
					maxSeen.Store(cur)
				}
				v := version
				if _, dup := seen.LoadOrStore(v, true); dup {
					return errors.New("version observed twice")
				}
				time.Sleep(200 * time.Microsecond)
				version = v + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, int64(n), version)
}

func TestSubmitRunsInArrivalOrder(t *testing.T) {
	ex, _, _ := newPair()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = ex.Submit(ctx, "s1", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ex.Submit(ctx, "s1", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		require.Eventually(t, func() bool { return ex.Pending("s1") == i }, time.Second, time.Millisecond)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestFailingCallbackDoesNotBlockQueue(t *testing.T) {
	ex, _, kv := newPair()
	ctx := context.Background()
	boom := errors.New("store unavailable")

	err := ex.Submit(ctx, "s1", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	ran := false
	require.NoError(t, ex.Submit(ctx, "s1", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	_, err = kv.Get(ctx, LockKey("s1"))
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestPanicIsReturnedAndLockReleased(t *testing.T) {
	ex, other, kv := newPair()
	ctx := context.Background()

	err := ex.Submit(ctx, "s1", func(context.Context) error { panic("bad payload") })
	require.ErrorIs(t, err, ErrCallbackPanic)

	_, err = kv.Get(ctx, LockKey("s1"))
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
	assert.NoError(t, other.Submit(ctx, "s1", func(context.Context) error { return nil }))
}

func TestCallbackContextOutlivesSubmitter(t *testing.T) {
	ex, _, _ := newPair()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var cbErr error
	require.NoError(t, ex.Submit(ctx, "s1", func(ctx context.Context) error {
		cbErr = ctx.Err()
		return nil
	}))
	assert.NoError(t, cbErr)
}

func TestExpiredLockIsTakenOver(t *testing.T) {
	ex, _, kv := newPair()
	ctx := context.Background()

	// a crashed holder
	ok, err := kv.SetNX(ctx, LockKey("s1"), []byte("dead-process"), 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	require.NoError(t, ex.Submit(ctx, "s1", func(context.Context) error { return nil }))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

type countingLocker struct {
	acquires atomic.Int32
}

func (l *countingLocker) Acquire(context.Context, string, string, time.Duration) (bool, error) {
	l.acquires.Add(1)
	return true, nil
}

func (l *countingLocker) Release(context.Context, string, string) error { return nil }

func TestNoAffinityBypassesLock(t *testing.T) {
	locker := &countingLocker{}
	ex := New(locker, clockwork.NewRealClock(), testConfig())

	require.NoError(t, ex.Submit(context.Background(), "", func(context.Context) error { return nil }))
	assert.Zero(t, locker.acquires.Load())

	require.NoError(t, ex.Submit(context.Background(), "s1", func(context.Context) error { return nil }))
	assert.Equal(t, int32(1), locker.acquires.Load())
}

func TestReleaseIgnoresForeignToken(t *testing.T) {
	kv := kvstore.NewMemory(clockwork.NewRealClock())
	locker := NewStoreLocker(kv)
	ctx := context.Background()

	ok, err := locker.Acquire(ctx, LockKey("s1"), "mine", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.Acquire(ctx, LockKey("s1"), "theirs", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, LockKey("s1"), "theirs"))
	held, err := kv.Get(ctx, LockKey("s1"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(held))
}
