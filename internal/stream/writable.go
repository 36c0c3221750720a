package stream

import (
	"fmt"

	"github.com/sanerun/aio/internal/buffer"
)

// WritableState is one of the four consumer states.
type WritableState int32

const (
	WritableStopped WritableState = iota
	WritableWriting
	WritableEnding
	WritableEnded
)

func (s WritableState) String() string {
	switch s {
	case WritableStopped:
		return "Stopped"
	case WritableWriting:
		return "Writing"
	case WritableEnding:
		return "Ending"
	case WritableEnded:
		return "Ended"
	default:
		return fmt.Sprintf("WritableState(%d)", int32(s))
	}
}

// AsyncWriteFunc issues one write of bufferID's contents; the
// implementation calls w.FinishedWriting once the write completes,
// synchronously or from a request completion callback.
type AsyncWriteFunc func(w *Writable, bufferID int)

type pendingWrite struct {
	bufferID int
	cb       func(error)
}

// Writable is the consumer half of the stream pipeline.
type Writable struct {
	emitter

	pool       *buffer.Pool
	asyncWrite AsyncWriteFunc
	canEnd     func() bool // optional; nil means "always allowed to end"

	queue     []pendingWrite
	state     WritableState
	pendingCB func(error)

	lastErr error
}

// NewWritable wires a Writable to pool and the consumer function.
// canEnd, if non-nil, is consulted before transitioning Ending->Ended.
func NewWritable(pool *buffer.Pool, write AsyncWriteFunc, canEnd func() bool) *Writable {
	return &Writable{pool: pool, asyncWrite: write, canEnd: canEnd, state: WritableStopped}
}

func (w *Writable) State() WritableState { return w.state }

// Pool returns the buffer pool backing this writable, so adapters
// outside the stream package (reqstream) can resolve buffer IDs.
func (w *Writable) Pool() *buffer.Pool { return w.pool }

func (w *Writable) OnDrain(fn SimpleListener)  { w.on(EventDrain, fn) }
func (w *Writable) OnFinish(fn SimpleListener) { w.on(EventFinish, fn) }
func (w *Writable) OnError(fn ErrorListener)   { w.onError(fn) }

// Write enqueues bufferID (taking one reference) and, if the stream
// is idle, immediately launches the write.
func (w *Writable) Write(bufferID int, cb func(error)) error {
	if w.state == WritableEnding || w.state == WritableEnded {
		return fmt.Errorf("stream: Write called in state %s", w.state)
	}
	if err := w.pool.RefBuffer(bufferID); err != nil {
		return err
	}
	w.queue = append(w.queue, pendingWrite{bufferID: bufferID, cb: cb})
	if w.state == WritableStopped {
		w.launchNext()
	}
	return nil
}

// WriteBytes copies data into a freshly issued pool buffer and writes it.
func (w *Writable) WriteBytes(data []byte, cb func(error)) error {
	id, span, err := w.pool.RequestNewBuffer(len(data))
	if err != nil {
		return err
	}
	copy(span, data)
	// RequestNewBuffer already grants refcount 1, which Write's own
	// RefBuffer would double; release the extra reference Write takes.
	if err := w.Write(id, cb); err != nil {
		return err
	}
	return w.pool.UnrefBuffer(id)
}

// Unshift re-inserts bufferID at the front of the pending queue,
// taking a fresh reference. Used by external callers handing the
// writable a buffer it doesn't already hold a reference for.
func (w *Writable) Unshift(bufferID int, cb func(error)) error {
	if err := w.pool.RefBuffer(bufferID); err != nil {
		return err
	}
	w.requeueFront(bufferID, cb)
	return nil
}

// requeueFront re-inserts bufferID at the front of the queue without
// taking a new reference, for callers (Transform) that already hold
// the reference they're handing back.
func (w *Writable) requeueFront(bufferID int, cb func(error)) {
	w.queue = append([]pendingWrite{{bufferID: bufferID, cb: cb}}, w.queue...)
	if w.state == WritableStopped {
		w.launchNext()
	}
}

func (w *Writable) launchNext() {
	if len(w.queue) == 0 {
		return
	}
	next := w.queue[0]
	w.queue = w.queue[1:]
	w.state = WritableWriting
	w.pendingCB = next.cb
	w.asyncWrite(w, next.bufferID)
}

// FinishedWriting is called by the consumer once bufferID's write
// completes. It pops the next pending write, or transitions to Ended
// (firing finish) or Stopped (firing drain).
func (w *Writable) FinishedWriting(bufferID int, result error) {
	_ = w.pool.UnrefBuffer(bufferID)
	if w.pendingCB != nil {
		cb := w.pendingCB
		w.pendingCB = nil
		cb(result)
	}
	if result != nil {
		w.lastErr = result
		w.emitError(result)
	}

	if len(w.queue) > 0 {
		w.launchNext()
		return
	}
	if w.state == WritableEnding && (w.canEnd == nil || w.canEnd()) {
		w.state = WritableEnded
		w.emit(EventFinish)
		return
	}
	w.state = WritableStopped
	w.emit(EventDrain)
}

// End requests the stream finish once any in-flight write drains.
func (w *Writable) End() {
	switch w.state {
	case WritableEnded, WritableEnding:
		return
	case WritableWriting:
		w.state = WritableEnding
	default:
		if w.canEnd == nil || w.canEnd() {
			w.state = WritableEnded
			w.emit(EventFinish)
		} else {
			w.state = WritableEnding
		}
	}
}

// ResumeWriting re-launches the queue after external back-pressure
// (e.g. a downstream sink draining) without changing state semantics.
func (w *Writable) ResumeWriting() {
	if w.state == WritableStopped {
		w.launchNext()
	}
}

// EmitError reports a write error without aborting the queue; the
// next pending write, if any, is still attempted.
func (w *Writable) EmitError(err error) {
	w.lastErr = err
	w.emitError(err)
}

// LastError returns the most recently emitted error, if any.
func (w *Writable) LastError() error { return w.lastErr }
