package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingWarmer struct {
	calls atomic.Int32
	err   error
}

func (c *countingWarmer) Warm(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCacheWarmerRejectsBadSchedule(t *testing.T) {
	_, err := NewCacheWarmer(&countingWarmer{}, "every five minutes", quiet())
	require.ErrorContains(t, err, "invalid cache warm schedule")
}

func TestRunOnceCountsFailures(t *testing.T) {
	wm := &countingWarmer{err: errors.New("backend unavailable")}
	w, err := NewCacheWarmer(wm, "", quiet())
	require.NoError(t, err)

	w.RunOnce(context.Background())
	require.Equal(t, int32(1), wm.calls.Load())
	require.Equal(t, int64(1), w.Runs())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.RunOnce(ctx)
	require.Equal(t, int32(1), wm.calls.Load())
}

func TestStartWarmsOnceWithoutSchedule(t *testing.T) {
	wm := &countingWarmer{}
	w, err := NewCacheWarmer(wm, "", quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return wm.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
	require.Equal(t, int32(1), wm.calls.Load())
}

func TestStartRunsOnSchedule(t *testing.T) {
	wm := &countingWarmer{}
	w, err := NewCacheWarmer(wm, "@every 1s", quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return wm.calls.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("warmer did not stop")
	}
}
