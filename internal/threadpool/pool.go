// Package threadpool runs AsyncTaskSequence work and AsyncLoopWork
// requests off the loop thread. Workers never touch EventLoop state
// directly: they run a Task's function, record its result, and call
// the pool's onDone hook; handing the result back to the loop thread
// is left to that hook or to a WaitForTask caller.
package threadpool

import (
	"errors"
	"sync"
)

var (
	// ErrAlreadyQueued is returned by Queue when the task is already
	// owned by this or another pool.
	ErrAlreadyQueued = errors.New("threadpool: task already queued")
	// ErrClosed is returned by Queue after Close has been called.
	ErrClosed = errors.New("threadpool: pool is closed")
)

// Task is one unit of work. Fn runs on a worker goroutine; Err holds
// its result once Done reports true. A Task must not be queued on
// more than one Pool at a time.
type Task struct {
	Fn func() error

	mu     sync.Mutex
	queued bool
	done   bool
	err    error
}

// Done reports whether the task has finished running.
func (t *Task) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Err returns the task's result. Only valid once Done reports true.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) markQueued() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queued {
		return false
	}
	t.queued = true
	t.done = false
	return true
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	t.done = true
	t.err = err
	t.queued = false
	t.mu.Unlock()
}

// Pool is a fixed-size FIFO worker pool, grounded on the classic
// mutex+condition-variable producer/consumer shape: each worker
// blocks on the available-condition until a task is queued or stop
// is requested.
type Pool struct {
	mu        sync.Mutex
	available *sync.Cond
	completed *sync.Cond

	queue   []*Task
	onDone  func(*Task)
	workers int
	running int
	stop    bool
	closed  bool
}

// New starts workerCount workers. onDone, if non-nil, is invoked from
// the worker goroutine immediately after a task finishes — callers
// that need loop-thread delivery should have onDone push the task
// onto their own completion queue and trigger a kernel wake-up rather
// than acting on loop state directly.
func New(workerCount int, onDone func(*Task)) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{workers: workerCount, onDone: onDone}
	p.available = sync.NewCond(&p.mu)
	p.completed = sync.NewCond(&p.mu)
	for i := 0; i < workerCount; i++ {
		p.running++
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stop {
			p.available.Wait()
		}
		if p.stop && len(p.queue) == 0 {
			p.running--
			p.completed.Broadcast()
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		err := task.Fn()
		task.finish(err)

		p.mu.Lock()
		p.completed.Broadcast()
		p.mu.Unlock()

		if p.onDone != nil {
			p.onDone(task)
		}
	}
}

// Queue appends task to the FIFO. It fails if the pool is closed or
// the task is already owned by a pool.
func (p *Pool) Queue(task *Task) error {
	if !task.markQueued() {
		return ErrAlreadyQueued
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		task.finish(nil)
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.available.Signal()
	return nil
}

// WaitForTask blocks until task has finished running.
func (p *Pool) WaitForTask(task *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !task.Done() {
		p.completed.Wait()
	}
}

// WaitForAllTasks blocks until the FIFO is empty and every worker has
// returned to idle.
func (p *Pool) WaitForAllTasks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) > 0 {
		p.completed.Wait()
	}
}

// Close stops every worker once its in-flight task returns. Pending
// tasks that were never picked up by a worker are dropped without
// running; in-flight tasks are waited for. This matches the
// documented "destroy with pending tasks" behavior: callers that need
// every queued task to run must call WaitForAllTasks before Close.
func (p *Pool) Close() {
	p.mu.Lock()
	p.stop = true
	p.closed = true
	dropped := p.queue
	p.queue = nil
	p.mu.Unlock()
	p.available.Broadcast()

	for _, t := range dropped {
		t.finish(nil)
	}

	p.mu.Lock()
	for p.running > 0 {
		p.completed.Wait()
	}
	p.mu.Unlock()
}
