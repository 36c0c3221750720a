package threadpool

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsQueuedTask(t *testing.T) {
	p := New(2, nil)
	defer p.Close()

	var ran atomic.Bool
	task := &Task{Fn: func() error { ran.Store(true); return nil }}
	require.NoError(t, p.Queue(task))
	p.WaitForTask(task)

	require.True(t, ran.Load())
	require.True(t, task.Done())
	require.NoError(t, task.Err())
}

func TestPoolPropagatesTaskError(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	wantErr := errors.New("boom")
	task := &Task{Fn: func() error { return wantErr }}
	require.NoError(t, p.Queue(task))
	p.WaitForTask(task)

	require.Equal(t, wantErr, task.Err())
}

func TestPoolRejectsDoubleQueue(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	block := make(chan struct{})
	task := &Task{Fn: func() error { <-block; return nil }}
	require.NoError(t, p.Queue(task))
	require.ErrorIs(t, p.Queue(task), ErrAlreadyQueued)
	close(block)
	p.WaitForTask(task)
}

func TestPoolOnDoneFiresOffLoopThread(t *testing.T) {
	done := make(chan *Task, 1)
	p := New(1, func(task *Task) { done <- task })
	defer p.Close()

	task := &Task{Fn: func() error { return nil }}
	require.NoError(t, p.Queue(task))

	select {
	case got := <-done:
		require.Same(t, task, got)
	case <-time.After(time.Second):
		t.Fatal("onDone never fired")
	}
}

func TestWaitForAllTasksDrainsQueue(t *testing.T) {
	p := New(2, nil)
	defer p.Close()

	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		task := &Task{Fn: func() error { completed.Add(1); return nil }}
		require.NoError(t, p.Queue(task))
	}
	p.WaitForAllTasks()
	require.Equal(t, int32(10), completed.Load())
}

func TestCloseDropsUnstartedTasks(t *testing.T) {
	p := New(1, nil)

	block := make(chan struct{})
	first := &Task{Fn: func() error { <-block; return nil }}
	require.NoError(t, p.Queue(first))

	var neverRan atomic.Bool
	dropped := &Task{Fn: func() error { neverRan.Store(true); return nil }}
	require.NoError(t, p.Queue(dropped))

	close(block)
	p.Close()

	require.False(t, neverRan.Load())
	require.True(t, dropped.Done())
}

func TestQueueAfterCloseFails(t *testing.T) {
	p := New(1, nil)
	p.Close()

	task := &Task{Fn: func() error { return nil }}
	require.ErrorIs(t, p.Queue(task), ErrClosed)
}
