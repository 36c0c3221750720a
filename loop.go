// Package aio is a single-threaded, cooperative async I/O runtime: one
// EventLoop multiplexes timers, cross-thread wake-ups, thread-pool work
// and file/socket I/O over whichever kernel backend internal/kernel
// selects for the host OS. Grounded on the teacher's device/queue
// driver loop (backend.go), generalized from a fixed ublk queue depth
// to the request family's open-ended per-type active lists.
package aio

import (
	"sync"
	"time"

	"github.com/sanerun/aio/internal/kernel"
	"github.com/sanerun/aio/internal/request"
	"github.com/sanerun/aio/internal/threadpool"
)

// Options configures a new EventLoop.
type Options struct {
	// ThreadPoolWorkers sizes the pool backing AsyncWork, AsyncFileSystemOp
	// and buffered file I/O on readiness-based backends. Zero means 4.
	ThreadPoolWorkers int
	// Observer receives completion/poll/active-handle telemetry; nil
	// means NoOpObserver.
	Observer Observer
}

// EventLoop drives one cooperative run loop. Not safe for concurrent
// use except WakeUpFromExternalThread and the methods it documents as
// cross-thread safe.
type EventLoop struct {
	backend  kernel.Backend
	pool     *threadpool.Pool
	Metrics  *Metrics
	observer Observer

	staging request.List
	active  [request.NumTypes]request.List

	// manual holds SocketClose/FileClose requests awaiting delivery on
	// the next step; only ever touched from the loop thread.
	manual request.List

	poolMu    sync.Mutex
	poolQueue []func()

	numActiveHandles     int
	numManualCompletions int
	numExternals         int

	stopped  bool
	loopTime time.Time

	eventBuf []kernel.Event
}

// Create acquires the kernel backend handle and thread pool, mirroring
// the teacher's backend.Setup/ctrl-device acquisition in Create.
func Create(opts Options) (*EventLoop, error) {
	backend, err := kernel.Select()
	if err != nil {
		return nil, WrapError("Create", err)
	}
	workers := opts.ThreadPoolWorkers
	if workers <= 0 {
		workers = 4
	}
	l := &EventLoop{
		backend:  backend,
		Metrics:  NewMetrics(),
		observer: opts.Observer,
		loopTime: time.Now(),
	}
	if l.observer == nil {
		l.observer = NoOpObserver{}
	}
	l.pool = threadpool.New(workers, func(t *threadpool.Task) {})
	return l, nil
}

// Close releases the backend's kernel handle and stops the thread pool.
// The loop must not be running.
func (l *EventLoop) Close() error {
	l.pool.Close()
	l.Metrics.Stop()
	return l.backend.Close()
}

// SetListeners installs the loop's observer, replacing any previous one.
func (l *EventLoop) SetListeners(observer Observer) {
	if observer == nil {
		observer = NoOpObserver{}
	}
	l.observer = observer
}

// SubmitRequests enqueues one or more fresh (State==Free) requests into
// staging. Returns the first validation error and submits none of the
// batch if any request fails validation.
func (l *EventLoop) SubmitRequests(reqs ...*request.Request) error {
	for _, r := range reqs {
		if r.State != request.StateFree {
			return NewError("SubmitRequests", ErrCodeInvalidState, "request is not in Free state")
		}
		if r.Owned() {
			return NewError("SubmitRequests", ErrCodeAlreadyOwned, "request already owned by a loop")
		}
	}
	for _, r := range reqs {
		r.SetOwner(l)
		r.SetError(nil)
		r.State = request.StateSetup
		l.staging.PushBack(r)
	}
	return nil
}

// Submit enqueues a single fresh request, satisfying reqstream.Submitter
// for the stream adapters that only ever submit requests they just
// built themselves and so never expect SubmitRequests to reject them.
func (l *EventLoop) Submit(req *request.Request) { _ = l.SubmitRequests(req) }

// CancelRequest transitions r toward cancellation. Valid from every
// state except Free, Cancelling and Teardown: Setup and Submitting
// drop out of staging with no kernel round-trip; Active is dispatched
// through the backend's cancel on the next step.
func (l *EventLoop) CancelRequest(r *request.Request) error {
	if !r.CanCancel() {
		return NewError("CancelRequest", ErrCodeInvalidState, "request cannot be cancelled from its current state")
	}
	switch r.State {
	case request.StateSetup, request.StateSubmitting, request.StateReactivate:
		l.staging.Remove(r)
		l.teardown(r)
	case request.StateActive:
		l.active[r.Type].Remove(r)
		if r.Flags&request.FlagExcludedFromActiveCount == 0 {
			l.numActiveHandles--
		}
		r.State = request.StateCancelling
		l.staging.PushBack(r)
	default:
		return NewError("CancelRequest", ErrCodeInvalidState, "request cannot be cancelled from its current state")
	}
	return nil
}

// ExcludeFromActiveCount marks r (already submitted) as not counting
// toward numActiveHandles, the daemon-handle pattern used by a
// background WakeUp listener.
func ExcludeFromActiveCount(r *request.Request) { r.Flags |= request.FlagExcludedFromActiveCount }

// IncludeInActiveCount reverses ExcludeFromActiveCount.
func IncludeInActiveCount(r *request.Request) { r.Flags &^= request.FlagExcludedFromActiveCount }

// AssociateExternallyCreatedSocket registers a socket fd (e.g. from
// net.Listener's SyscallConn) with the backend before requests against
// it are submitted.
func (l *EventLoop) AssociateExternallyCreatedSocket(fd int) error {
	l.numExternals++
	return l.backend.AssociateFD(fd)
}

// AssociateExternallyCreatedFileDescriptor registers a file fd with
// the backend (IOCP needs this; readiness/io_uring backends accept it
// as a no-op via the same call).
func (l *EventLoop) AssociateExternallyCreatedFileDescriptor(fd int) error {
	l.numExternals++
	return l.backend.AssociateFD(fd)
}

// WakeUpFromExternalThread is safe to call from any goroutine. It
// compare-exchanges req's pending bit; only the caller that flips
// false->true posts the kernel wake-up, coalescing concurrent callers
// into one round-trip.
func (l *EventLoop) WakeUpFromExternalThread(req *request.Request) error {
	data, ok := req.Data.(*request.WakeUpData)
	if !ok {
		return NewError("WakeUpFromExternalThread", ErrCodeInvalidState, "request is not a WakeUp request")
	}
	if !data.Pending.CompareAndSwap(false, true) {
		l.Metrics.RecordWakeUpCoalesced()
		return nil
	}
	return l.backend.WakeUp()
}

// Run drives the loop until numActiveHandles and numManualCompletions
// are zero and the staging and manual lists are empty, or Stop is
// called. numExternals (raised by the Associate* calls) is not
// consulted and does not keep Run going.
func (l *EventLoop) Run() error {
	l.stopped = false
	for !l.stopped && !l.idle() {
		if err := l.RunOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Stop requests Run return after the in-flight step completes.
func (l *EventLoop) Stop() { l.stopped = true }

func (l *EventLoop) idle() bool {
	return l.numActiveHandles == 0 && l.numManualCompletions == 0 &&
		l.staging.Empty() && l.manual.Empty()
}

// RunOnce executes exactly one step: drain staging, block for
// forward progress, dispatch completions, fire timers/wake-ups/manual
// completions.
func (l *EventLoop) RunOnce() error {
	return l.step(kernel.ForcedForwardProgress)
}

// RunNoWait executes one step without blocking in the kernel, useful
// for draining ready work from inside another event source's callback.
func (l *EventLoop) RunNoWait() error {
	return l.step(kernel.NoWait)
}

func (l *EventLoop) step(mode kernel.WaitMode) error {
	l.drainStaging()

	var deadline time.Time
	if l.numActiveHandles > 0 {
		deadline = l.earliestTimerDeadline()
	}

	start := time.Now()
	events, err := l.backend.SyncWithKernel(mode, deadline, l.eventBuf[:0])
	waited := mode == kernel.ForcedForwardProgress
	l.Metrics.RecordBlockingPoll(waited)
	l.observer.ObserveBlockingPoll(waited, uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		return WrapError("SyncWithKernel", err)
	}
	l.eventBuf = events

	l.loopTime = time.Now()
	l.dispatchCompletions(events)
	l.fireExpiredTimers()
	l.fireWakeUps()
	l.drainPoolCompletions()
	l.drainManualCompletions()

	l.observer.ObserveActiveHandles(l.numActiveHandles)
	l.Metrics.RecordActiveHandles(l.numActiveHandles)
	return nil
}

// drainStaging processes every request currently in staging exactly
// once; requests that get re-queued during this pass (e.g. a
// Submitting request rearmed as Active) are left for the next step,
// matching spec.md's per-step algorithm.
func (l *EventLoop) drainStaging() {
	var batch []*request.Request
	for {
		r := l.staging.PopFront()
		if r == nil {
			break
		}
		batch = append(batch, r)
	}
	for _, r := range batch {
		switch r.State {
		case request.StateSetup:
			l.setupRequest(r)
		case request.StateSubmitting, request.StateReactivate:
			l.submitRequest(r)
		case request.StateCancelling:
			l.cancelPending(r)
		default:
			l.failRequest(r, NewError("drainStaging", ErrCodeInvalidState, "request in staging with state "+r.State.String()))
		}
	}
}

func (l *EventLoop) setupRequest(r *request.Request) {
	switch r.Type {
	case request.TypeTimeout:
		l.armTimeout(r)
	case request.TypeWakeUp:
		l.makeActive(r)
	case request.TypeWork:
		l.armWork(r)
	case request.TypeFileSystemOp:
		l.armFileSystemOp(r)
	case request.TypeProcessExit:
		l.armProcessExit(r)
	case request.TypeSocketClose, request.TypeFileClose:
		l.armManualClose(r)
	default:
		l.armBackendRequest(r)
	}
}

func (l *EventLoop) submitRequest(r *request.Request) {
	switch r.Type {
	case request.TypeTimeout:
		l.armTimeout(r)
	case request.TypeWakeUp, request.TypeWork, request.TypeFileSystemOp, request.TypeProcessExit:
		l.makeActive(r)
	case request.TypeSocketClose, request.TypeFileClose:
		l.makeActive(r)
	default:
		if l.backend.NeedsSubmissionWhenReactivating(r.Type) {
			if err := l.backend.Activate(r); err != nil {
				l.failRequest(r, WrapError("Activate", err))
				return
			}
		}
		l.makeActive(r)
	}
}

func (l *EventLoop) cancelPending(r *request.Request) {
	if err := l.backend.Cancel(r); err != nil {
		r.SetError(err)
	}
	l.teardown(r)
}

func (l *EventLoop) armBackendRequest(r *request.Request) {
	if (r.Type == request.TypeFileRead || r.Type == request.TypeFileWrite) && kernel.RunBlockingFileIO(l.backend) {
		l.armBufferedFileIO(r)
		return
	}
	if err := l.backend.Setup(r); err != nil {
		l.failRequest(r, WrapError("Setup", err))
		return
	}
	r.State = request.StateSubmitting
	if err := l.backend.Activate(r); err != nil {
		l.failRequest(r, WrapError("Activate", err))
		return
	}
	l.makeActive(r)
}

// makeActive links r into its per-type active list and, unless
// excluded, increments numActiveHandles.
func (l *EventLoop) makeActive(r *request.Request) {
	r.State = request.StateActive
	l.active[r.Type].PushBack(r)
	if r.Flags&request.FlagExcludedFromActiveCount == 0 {
		l.numActiveHandles++
	}
}

// unlinkActive removes r from its per-type active list, if linked, and
// corrects numActiveHandles. It does not change r.State: callers move
// on to either Free (teardown) or back to staging (requeue/reactivate).
func (l *EventLoop) unlinkActive(r *request.Request) {
	if !r.Linked() {
		return
	}
	l.active[r.Type].Remove(r)
	if r.Flags&request.FlagExcludedFromActiveCount == 0 {
		l.numActiveHandles--
	}
}

// teardown unlinks r from whichever active list holds it, releases any
// backend-side resource, and returns it to Free.
func (l *EventLoop) teardown(r *request.Request) {
	l.unlinkActive(r)
	if l.requiresBackendTeardown(r.Type) {
		_ = l.backend.Teardown(r)
	}
	r.State = request.StateFree
	r.SetOwner(nil)
}

func (l *EventLoop) requiresBackendTeardown(t request.Type) bool {
	switch t {
	case request.TypeTimeout, request.TypeWakeUp, request.TypeWork, request.TypeFileSystemOp,
		request.TypeProcessExit, request.TypeSocketClose, request.TypeFileClose:
		return false
	default:
		return true
	}
}

func (l *EventLoop) failRequest(r *request.Request, err error) {
	r.SetError(err)
	deliverFailure(r, err)
	l.teardown(r)
}

// deliverFailure invokes r's user callback with err, for requests that
// never reach the backend's normal completion path (e.g. Setup failed).
func deliverFailure(r *request.Request, err error) {
	switch d := r.Data.(type) {
	case *request.TimeoutData:
		d.Callback(r, request.TimeoutCompletion{Err: err})
	case *request.WakeUpData:
		d.Callback(r, request.WakeUpCompletion{})
	case *request.WorkData:
		d.Callback(r, request.WorkCompletion{Err: err})
	case *request.ProcessExitData:
		d.Callback(r, request.ProcessExitCompletion{Err: err})
	case *request.SocketAcceptData:
		d.Callback(r, request.SocketAcceptCompletion{Err: err})
	case *request.SocketConnectData:
		d.Callback(r, request.SocketConnectCompletion{Err: err})
	case *request.SocketSendData:
		d.Callback(r, request.SocketSendCompletion{Err: err})
	case *request.SocketReceiveData:
		d.Callback(r, request.SocketReceiveCompletion{Err: err})
	case *request.SocketCloseData:
		d.Callback(r, request.SocketCloseCompletion{Err: err})
	case *request.FileReadData:
		d.Callback(r, request.FileReadCompletion{Err: err})
	case *request.FileWriteData:
		d.Callback(r, request.FileWriteCompletion{Err: err})
	case *request.FileCloseData:
		d.Callback(r, request.FileCloseCompletion{Err: err})
	case *request.FilePollData:
		d.Callback(r, request.FilePollCompletion{Err: err})
	case *request.FileSystemOpData:
		d.Callback(r, request.FileSystemOpCompletion{Err: err})
	}
}

// requeue consults WantsReactivation (only valid for callers that have
// not already consumed it, e.g. via backend.CompleteAsync) to decide
// whether r goes back to staging as Reactivate or is torn down.
func (l *EventLoop) requeue(r *request.Request) {
	if r.WantsReactivation() {
		l.unlinkActive(r)
		r.State = request.StateReactivate
		l.staging.PushBack(r)
		return
	}
	l.teardown(r)
}

// armTimeout computes (or recomputes, on periodic reactivation) the
// absolute deadline and links the timer into its active list; expired
// timers are found and fired by fireExpiredTimers.
func (l *EventLoop) armTimeout(r *request.Request) {
	d := r.Data.(*request.TimeoutData)
	d.Deadline = l.loopTime.Add(d.Delay)
	l.makeActive(r)
}

// earliestTimerDeadline linearly scans the active timer list, per
// spec.md §4.3 step 2.
func (l *EventLoop) earliestTimerDeadline() time.Time {
	var earliest time.Time
	l.active[request.TypeTimeout].Each(func(r *request.Request) {
		d := r.Data.(*request.TimeoutData)
		if earliest.IsZero() || d.Deadline.Before(earliest) {
			earliest = d.Deadline
		}
	})
	return earliest
}

// fireExpiredTimers invokes every timer whose deadline has passed,
// ties broken in list (insertion) order.
func (l *EventLoop) fireExpiredTimers() {
	var expired []*request.Request
	l.active[request.TypeTimeout].Each(func(r *request.Request) {
		d := r.Data.(*request.TimeoutData)
		if !d.Deadline.After(l.loopTime) {
			expired = append(expired, r)
		}
	})
	for _, r := range expired {
		d := r.Data.(*request.TimeoutData)
		d.Callback(r, request.TimeoutCompletion{})
		l.requeue(r)
	}
}

// fireWakeUps delivers the kernel wake-up notification to every active
// WakeUp request whose Pending flag is set (CompareAndSwap true->false
// pairs each delivery with the CompareAndSwap false->true in
// WakeUpFromExternalThread). Reactivation is preset to true before the
// callback runs, so a daemon listener stays Active across repeated
// wake-ups without resubmission unless its callback calls
// Reactivate(false).
func (l *EventLoop) fireWakeUps() {
	var fired []*request.Request
	l.active[request.TypeWakeUp].Each(func(r *request.Request) {
		d := r.Data.(*request.WakeUpData)
		if d.Pending.CompareAndSwap(true, false) {
			fired = append(fired, r)
		}
	})
	for _, r := range fired {
		d := r.Data.(*request.WakeUpData)
		r.Reactivate(true)
		d.Callback(r, request.WakeUpCompletion{})
		l.requeue(r)
	}
}

// armWork submits r's function to the thread pool; its completion is
// delivered back on the loop thread via poolQueue.
func (l *EventLoop) armWork(r *request.Request) {
	d := r.Data.(*request.WorkData)
	l.makeActive(r)
	task := &threadpool.Task{Fn: d.Func}
	if err := l.pool.Queue(task); err != nil {
		l.enqueuePoolCompletion(func() {
			d.Callback(r, request.WorkCompletion{Err: err})
			l.teardown(r)
		})
		return
	}
	go func() {
		l.pool.WaitForTask(task)
		l.enqueuePoolCompletion(func() {
			d.Callback(r, request.WorkCompletion{Err: task.Err()})
			l.requeue(r)
		})
	}()
}

// armFileSystemOp is armWork's sibling for filesystem operations
// (copy/rename/mkdir/remove), always routed to the thread pool.
func (l *EventLoop) armFileSystemOp(r *request.Request) {
	d := r.Data.(*request.FileSystemOpData)
	l.makeActive(r)
	task := &threadpool.Task{Fn: d.Op}
	if err := l.pool.Queue(task); err != nil {
		l.enqueuePoolCompletion(func() {
			d.Callback(r, request.FileSystemOpCompletion{Err: err})
			l.teardown(r)
		})
		return
	}
	go func() {
		l.pool.WaitForTask(task)
		l.enqueuePoolCompletion(func() {
			d.Callback(r, request.FileSystemOpCompletion{Err: task.Err()})
			l.requeue(r)
		})
	}()
}

// armProcessExit blocks a thread-pool worker on the child's exit.
func (l *EventLoop) armProcessExit(r *request.Request) {
	d := r.Data.(*request.ProcessExitData)
	l.makeActive(r)
	task := &threadpool.Task{Fn: func() error {
		code, signaled, sig, err := waitForProcessExit(d.Pid)
		l.enqueuePoolCompletion(func() {
			d.Callback(r, request.ProcessExitCompletion{ExitCode: code, Signaled: signaled, Signal: sig, Err: err})
			l.requeue(r)
		})
		return err
	}}
	if err := l.pool.Queue(task); err != nil {
		l.enqueuePoolCompletion(func() {
			d.Callback(r, request.ProcessExitCompletion{Err: err})
			l.teardown(r)
		})
	}
}

// armManualClose performs the close syscall inline (it never blocks
// meaningfully) and defers the user callback to the manual-completion
// list so it still fires from the loop thread on the next step's
// drain, per spec.md §4.3 step 4.
func (l *EventLoop) armManualClose(r *request.Request) {
	switch d := r.Data.(type) {
	case *request.SocketCloseData:
		r.SetError(closeFD(d.FD))
	case *request.FileCloseData:
		r.SetError(closeFD(d.FD))
	}
	r.State = request.StateActive
	l.numManualCompletions++
	l.manual.PushBack(r)
}

// armBufferedFileIO routes a FileRead/FileWrite through the thread
// pool, the path readiness-based backends (epoll/kqueue) require since
// they cannot perform non-blocking regular-file I/O.
func (l *EventLoop) armBufferedFileIO(r *request.Request) {
	l.makeActive(r)
	switch d := r.Data.(type) {
	case *request.FileReadData:
		task := &threadpool.Task{Fn: func() error {
			n, eof, err := readFileSync(d.FD, d.Buffer, d.Offset)
			l.enqueuePoolCompletion(func() {
				l.Metrics.RecordCompletion(request.TypeFileRead, uint64(n), 0, err == nil)
				d.Callback(r, request.FileReadCompletion{BytesRead: n, EOF: eof, Err: err})
				l.requeue(r)
			})
			return err
		}}
		_ = l.pool.Queue(task)
	case *request.FileWriteData:
		task := &threadpool.Task{Fn: func() error {
			n, err := writeFileSync(d.FD, d.Buffer, d.Offset)
			l.enqueuePoolCompletion(func() {
				l.Metrics.RecordCompletion(request.TypeFileWrite, uint64(n), 0, err == nil)
				d.Callback(r, request.FileWriteCompletion{BytesWritten: n, Err: err})
				l.requeue(r)
			})
			return err
		}}
		_ = l.pool.Queue(task)
	}
}

func (l *EventLoop) enqueuePoolCompletion(fn func()) {
	l.poolMu.Lock()
	l.poolQueue = append(l.poolQueue, fn)
	l.poolMu.Unlock()
	_ = l.backend.WakeUp()
}

func (l *EventLoop) drainPoolCompletions() {
	l.poolMu.Lock()
	batch := l.poolQueue
	l.poolQueue = nil
	l.poolMu.Unlock()
	for _, fn := range batch {
		fn()
	}
}

func (l *EventLoop) drainManualCompletions() {
	var batch []*request.Request
	for {
		r := l.manual.PopFront()
		if r == nil {
			break
		}
		batch = append(batch, r)
	}
	for _, r := range batch {
		switch d := r.Data.(type) {
		case *request.SocketCloseData:
			d.Callback(r, request.SocketCloseCompletion{Err: r.LastError()})
		case *request.FileCloseData:
			d.Callback(r, request.FileCloseCompletion{Err: r.LastError()})
		}
		l.numManualCompletions--
		r.State = request.StateFree
		r.SetOwner(nil)
	}
}

// dispatchCompletions processes one step's backend-reported events in
// order, per spec.md §4.3 step 3.
func (l *EventLoop) dispatchCompletions(events []kernel.Event) {
	for _, ev := range events {
		if ev.Req == nil {
			continue // bare wake-up notification with no associated request
		}
		if ev.Req.State != request.StateActive {
			continue
		}
		start := time.Now()
		reactivate := l.backend.CompleteAsync(ev.Req, ev)
		l.Metrics.RecordCompletion(ev.Req.Type, 0, uint64(time.Since(start).Nanoseconds()), ev.Err == nil)
		l.observer.ObserveCompletion(ev.Req.Type, 0, uint64(time.Since(start).Nanoseconds()), ev.Err == nil)
		if reactivate {
			l.unlinkActive(ev.Req)
			ev.Req.State = request.StateReactivate
			l.staging.PushBack(ev.Req)
			continue
		}
		l.teardown(ev.Req)
	}
}
