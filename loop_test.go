package aio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sanerun/aio/internal/request"
)

func TestEventLoopFiresPeriodicTimerThenExits(t *testing.T) {
	loop, err := Create(Options{})
	require.NoError(t, err)
	defer loop.Close()

	var fired atomic.Int32
	req := request.NewTimeout(time.Millisecond, func(r *request.Request, _ request.TimeoutCompletion) {
		n := fired.Add(1)
		r.Reactivate(n < 3)
	})
	require.NoError(t, loop.SubmitRequests(req))
	require.NoError(t, loop.Run())
	require.Equal(t, int32(3), fired.Load())
}

func TestEventLoopDeliversExternalWakeUp(t *testing.T) {
	loop, err := Create(Options{})
	require.NoError(t, err)
	defer loop.Close()

	var woke atomic.Bool
	req := request.NewWakeUp(func(r *request.Request, _ request.WakeUpCompletion) {
		woke.Store(true)
		r.Reactivate(false)
	})
	require.NoError(t, loop.SubmitRequests(req))

	go func() {
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, loop.WakeUpFromExternalThread(req))
	}()

	require.NoError(t, loop.Run())
	require.True(t, woke.Load())
}

func TestEventLoopRunsWorkOnThreadPool(t *testing.T) {
	loop, err := Create(Options{ThreadPoolWorkers: 2})
	require.NoError(t, err)
	defer loop.Close()

	var ranOffLoop atomic.Bool
	done := make(chan struct{})
	req := request.NewWork(func() error {
		ranOffLoop.Store(true)
		return nil
	}, func(r *request.Request, c request.WorkCompletion) {
		require.NoError(t, c.Err)
		close(done)
	})
	require.NoError(t, loop.SubmitRequests(req))
	require.NoError(t, loop.Run())

	select {
	case <-done:
	default:
		t.Fatal("work completion callback never ran")
	}
	require.True(t, ranOffLoop.Load())
}

func TestCancelRequestFromSetupDropsWithoutBackendRoundTrip(t *testing.T) {
	loop, err := Create(Options{})
	require.NoError(t, err)
	defer loop.Close()

	fired := false
	req := request.NewTimeout(time.Hour, func(r *request.Request, _ request.TimeoutCompletion) {
		fired = true
	})
	require.NoError(t, loop.SubmitRequests(req))
	require.NoError(t, loop.CancelRequest(req))
	require.NoError(t, loop.Run())
	require.False(t, fired)
	require.Equal(t, request.StateFree, req.State)
}

func TestSubmitRequestsRejectsAlreadyOwned(t *testing.T) {
	loop, err := Create(Options{})
	require.NoError(t, err)
	defer loop.Close()

	req := request.NewTimeout(time.Hour, func(*request.Request, request.TimeoutCompletion) {})
	require.NoError(t, loop.SubmitRequests(req))
	require.Error(t, loop.SubmitRequests(req))
	require.NoError(t, loop.CancelRequest(req))
	require.NoError(t, loop.RunNoWait())
}
