package stream

import (
	"fmt"

	"github.com/sanerun/aio/internal/buffer"
)

// ReadableState is one of the thirteen states that distinguish
// synchronous from asynchronous producers, and separate "reading, no
// data yet" from "reading, data arrived inside the asyncRead call".
type ReadableState int32

const (
	ReadableStopped ReadableState = iota
	ReadableCanRead
	ReadableReading
	ReadableSyncPushing
	ReadableSyncReadMore
	ReadableAsyncReading
	ReadableAsyncPushing
	ReadablePausing
	ReadablePaused
	ReadableEnded
	ReadableDestroying
	ReadableDestroyed
	ReadableErrored
)

func (s ReadableState) String() string {
	switch s {
	case ReadableStopped:
		return "Stopped"
	case ReadableCanRead:
		return "CanRead"
	case ReadableReading:
		return "Reading"
	case ReadableSyncPushing:
		return "SyncPushing"
	case ReadableSyncReadMore:
		return "SyncReadMore"
	case ReadableAsyncReading:
		return "AsyncReading"
	case ReadableAsyncPushing:
		return "AsyncPushing"
	case ReadablePausing:
		return "Pausing"
	case ReadablePaused:
		return "Paused"
	case ReadableEnded:
		return "Ended"
	case ReadableDestroying:
		return "Destroying"
	case ReadableDestroyed:
		return "Destroyed"
	case ReadableErrored:
		return "Errored"
	default:
		return fmt.Sprintf("ReadableState(%d)", int32(s))
	}
}

// AsyncReadFunc starts one read. A synchronous producer calls Push
// and Reactivate before returning; an asynchronous producer returns
// immediately (having queued e.g. a FileRead request) and calls Push
// / Reactivate later, from a completion callback.
type AsyncReadFunc func(r *Readable, minBytes int) error

// Readable is the producer half of the stream pipeline: back-pressured
// against pool buffer availability, driving a caller-supplied
// AsyncReadFunc.
type Readable struct {
	emitter

	pool     *buffer.Pool
	asyncRead AsyncReadFunc
	minBytes int

	queue   []int // pending buffer IDs awaiting delivery to listeners
	state   ReadableState
	lastErr error

	pushedInCall  bool
	reactivateSet bool
	reactivateVal bool
	wantResume    bool
}

// NewReadable wires a Readable to pool and the producer function.
func NewReadable(pool *buffer.Pool, minBytes int, read AsyncReadFunc) *Readable {
	return &Readable{pool: pool, asyncRead: read, minBytes: minBytes, state: ReadableStopped}
}

func (r *Readable) State() ReadableState { return r.state }

// OnData registers a data listener.
func (r *Readable) OnData(fn DataListener) { r.onData(fn) }

// OnEnd, OnClose, OnError register the remaining stream events.
func (r *Readable) OnEnd(fn SimpleListener)   { r.on(EventEnd, fn) }
func (r *Readable) OnClose(fn SimpleListener) { r.on(EventClose, fn) }
func (r *Readable) OnError(fn ErrorListener)  { r.onError(fn) }

// Start begins reading. Must be called from Stopped or CanRead.
func (r *Readable) Start() error {
	switch r.state {
	case ReadableStopped, ReadableCanRead:
	default:
		return fmt.Errorf("stream: Start called in state %s", r.state)
	}
	r.state = ReadableCanRead
	return r.invokeRead()
}

// invokeRead runs the CanRead -> Reading -> (SyncReadMore loop | AsyncReading) transition.
// The real allocate-or-pause decision belongs to the producer's own
// GetBufferOrPause call inside asyncRead; invokeRead must not probe the
// pool itself, or it leaks one slot per iteration.
func (r *Readable) invokeRead() error {
	for {
		if r.state != ReadableCanRead {
			return nil
		}

		r.state = ReadableReading
		r.pushedInCall = false
		r.reactivateSet = false

		err := r.asyncRead(r, r.minBytes)
		if err != nil {
			r.emitErrorAndLatch(err)
			return err
		}

		// asyncRead may have already latched a terminal or paused state
		// (PushEnd, emitErrorAndLatch, GetBufferOrPause finding no free
		// slot) synchronously inside the call; don't clobber it below.
		if r.state != ReadableReading {
			return nil
		}

		switch {
		case r.pushedInCall && r.reactivateSet && r.reactivateVal:
			r.state = ReadableCanRead
			continue
		case !r.pushedInCall:
			r.state = ReadableAsyncReading
			return nil
		case r.pushedInCall && r.reactivateSet && !r.reactivateVal:
			r.state = ReadablePaused
			return nil
		default:
			err := fmt.Errorf("stream: asyncRead pushed data synchronously but never called Reactivate")
			r.emitErrorAndLatch(err)
			return err
		}
	}
}

// Push trims bufferID to size and delivers it to listeners, consuming
// an extra reference the caller is expected to have already taken.
func (r *Readable) Push(bufferID, size int) error {
	_ = r.pool.SetNewBufferSize(bufferID, size)
	switch r.state {
	case ReadableReading:
		r.state = ReadableSyncPushing
		r.deliver(bufferID, size)
		r.pushedInCall = true
		r.state = ReadableReading
	case ReadableAsyncReading:
		r.state = ReadableAsyncPushing
		r.deliver(bufferID, size)
	case ReadablePausing, ReadablePaused:
		r.queue = append(r.queue, bufferID)
	default:
		return fmt.Errorf("stream: Push called in state %s", r.state)
	}
	return nil
}

func (r *Readable) deliver(bufferID, size int) {
	r.emitData(bufferID, size)
	_ = r.pool.UnrefBuffer(bufferID)
}

// Reactivate tells the stream, from inside or after asyncRead,
// whether another read should be issued.
func (r *Readable) Reactivate(again bool) {
	r.reactivateSet = true
	r.reactivateVal = again

	switch r.state {
	case ReadableReading:
		// inside the synchronous call; invokeRead reads these flags on return.
	case ReadableAsyncPushing, ReadableAsyncReading:
		if again {
			r.state = ReadableCanRead
			_ = r.invokeRead()
		} else {
			r.state = ReadablePaused
		}
	}
}

// PushEnd emits end then close and latches the Ended state.
func (r *Readable) PushEnd() {
	switch r.state {
	case ReadableEnded, ReadableDestroyed, ReadableDestroying:
		return
	}
	r.state = ReadableEnded
	r.emit(EventEnd)
	r.emit(EventClose)
}

// Pause stops issuing further reads once the in-flight one finishes.
func (r *Readable) Pause() {
	switch r.state {
	case ReadableCanRead:
		r.state = ReadablePaused
	case ReadableReading, ReadableAsyncReading, ReadableSyncPushing, ReadableAsyncPushing:
		r.wantResume = false
		r.reactivateSet = true
		r.reactivateVal = false
	}
}

// Resume restarts reading after Pause or back-pressure.
func (r *Readable) Resume() error {
	switch r.state {
	case ReadablePaused, ReadablePausing:
		r.state = ReadableCanRead
		r.flushQueued()
		return r.invokeRead()
	}
	return nil
}

func (r *Readable) flushQueued() {
	if len(r.queue) == 0 {
		return
	}
	pending := r.queue
	r.queue = nil
	for _, id := range pending {
		r.deliver(id, 0)
	}
}

// GetBufferOrPause is the back-pressure hook producers call before
// requesting kernel I/O into a pool buffer.
func (r *Readable) GetBufferOrPause(minBytes int) (int, []byte, bool) {
	id, span, err := r.pool.RequestNewBuffer(minBytes)
	if err != nil {
		r.state = ReadablePausing
		return 0, nil, false
	}
	return id, span, true
}

// EmitError reports a non-fatal error without tearing the stream down.
func (r *Readable) EmitError(err error) {
	r.lastErr = err
	r.emitError(err)
}

func (r *Readable) emitErrorAndLatch(err error) {
	r.lastErr = err
	r.state = ReadableErrored
	r.emitError(err)
}

// Destroy tears the stream down, emitting close exactly once.
func (r *Readable) Destroy() {
	switch r.state {
	case ReadableDestroyed, ReadableDestroying:
		return
	}
	r.state = ReadableDestroying
	r.state = ReadableDestroyed
	r.emit(EventClose)
}

// LastError returns the most recently emitted error, if any.
func (r *Readable) LastError() error { return r.lastErr }
