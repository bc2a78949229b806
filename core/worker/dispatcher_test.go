package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJobAndWaitReturnsResult(t *testing.T) {
	d := NewDispatcher(2)

	ran := atomic.Bool{}
	task, err := d.Submit(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, task.Wait(context.Background()))
	assert.True(t, ran.Load())
}

func TestWaitPropagatesJobError(t *testing.T) {
	d := NewDispatcher(1)

	jobErr := errors.New("pipeline exploded")
	task, err := d.Submit(context.Background(), func(ctx context.Context) error {
		return jobErr
	})
	require.NoError(t, err)

	assert.ErrorIs(t, task.Wait(context.Background()), jobErr)
}

func TestCapacityBoundsConcurrency(t *testing.T) {
	d := NewDispatcher(2)

	var running, peak, done atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 5; i++ {
		go func() {
			task, err := d.Submit(context.Background(), func(ctx context.Context) error {
				now := running.Add(1)
				for {
					old := peak.Load()
					if now <= old || peak.CompareAndSwap(old, now) {
						break
					}
				}
				<-release
				running.Add(-1)
				return nil
			})
			if err == nil {
				_ = task.Wait(context.Background())
			}
			done.Add(1)
		}()
	}

	// Give the first two jobs time to occupy both slots.
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	close(release)
	require.Eventually(t, func() bool { return done.Load() == 5 }, 5*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestSubmitHonorsContextWhileWaitingForSlot(t *testing.T) {
	d := NewDispatcher(1)

	release := make(chan struct{})
	_, err := d.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = d.Submit(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	d.Drain()
}

func TestPanicInJobBecomesError(t *testing.T) {
	d := NewDispatcher(1)

	task, err := d.Submit(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)

	waitErr := task.Wait(context.Background())
	require.Error(t, waitErr)
	assert.Contains(t, waitErr.Error(), "worker panic")

	// The slot must be released after a panic.
	task, err = d.Submit(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, task.Wait(context.Background()))
}
