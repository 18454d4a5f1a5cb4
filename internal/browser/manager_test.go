package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingLauncher struct {
	launches atomic.Int32
	delay    time.Duration
	fail     atomic.Bool
	cancels  atomic.Int32
}

func (l *countingLauncher) launch(context.Context) (context.Context, context.CancelFunc, error) {
	time.Sleep(l.delay)
	if l.fail.Load() {
		return nil, nil, errors.New("chrome not found")
	}
	l.launches.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	return ctx, func() {
		l.cancels.Add(1)
		cancel()
	}, nil
}

func TestAcquireLaunchesOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	launcher := &countingLauncher{delay: 50 * time.Millisecond}
	mgr := NewManagerWithLauncher(launcher.launch, nil)

	const callers = 32
	results := make([]context.Context, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, err := mgr.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			results[i] = ctx
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), launcher.launches.Load())
	for _, ctx := range results {
		require.Equal(t, results[0], ctx)
	}
}

func TestCloseThenAcquireRelaunches(t *testing.T) {
	t.Parallel()

	launcher := &countingLauncher{}
	mgr := NewManagerWithLauncher(launcher.launch, nil)

	first, err := mgr.Acquire(context.Background())
	require.NoError(t, err)

	mgr.Close()
	require.Error(t, first.Err())
	require.Equal(t, int32(1), launcher.cancels.Load())

	second, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Err())
	require.Equal(t, int32(2), launcher.launches.Load())

	mgr.Close()
	mgr.Close()
	require.Equal(t, int32(2), launcher.cancels.Load())
}

func TestAcquireRelaunchesAfterCrash(t *testing.T) {
	t.Parallel()

	var cancels []context.CancelFunc
	var launches int
	mgr := NewManagerWithLauncher(func(context.Context) (context.Context, context.CancelFunc, error) {
		launches++
		ctx, cancel := context.WithCancel(context.Background())
		cancels = append(cancels, cancel)
		return ctx, cancel, nil
	}, nil)

	_, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	cancels[0]()

	ctx, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, ctx.Err())
	require.Equal(t, 2, launches)
}

func TestAcquireLaunchFailureIsRetried(t *testing.T) {
	t.Parallel()

	launcher := &countingLauncher{}
	launcher.fail.Store(true)
	mgr := NewManagerWithLauncher(launcher.launch, nil)

	_, err := mgr.Acquire(context.Background())
	require.ErrorContains(t, err, "chrome not found")

	launcher.fail.Store(false)
	_, err = mgr.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), launcher.launches.Load())
}

func TestAcquireHonorsCallerCancellation(t *testing.T) {
	t.Parallel()

	launcher := &countingLauncher{delay: 200 * time.Millisecond}
	mgr := NewManagerWithLauncher(launcher.launch, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := mgr.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The detached launch still completes for later callers.
	browserCtx, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, browserCtx)
	require.Equal(t, int32(1), launcher.launches.Load())
}

func TestShutdownRefusesLaunch(t *testing.T) {
	t.Parallel()

	launcher := &countingLauncher{}
	mgr := NewManagerWithLauncher(launcher.launch, nil)
	_, err := mgr.Acquire(context.Background())
	require.NoError(t, err)

	mgr.Shutdown()
	_, err = mgr.Acquire(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, int32(1), launcher.cancels.Load())
}
