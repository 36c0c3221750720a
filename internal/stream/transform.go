package stream

import (
	"fmt"

	"github.com/sanerun/aio/internal/buffer"
)

// TransformState tracks the processing state machine wrapped around
// ProcessFunc/FinalizeFunc.
type TransformState int32

const (
	TransformNone TransformState = iota
	TransformPaused
	TransformProcessing
	TransformFinalizing
	TransformFinalized
)

func (s TransformState) String() string {
	switch s {
	case TransformNone:
		return "None"
	case TransformPaused:
		return "Paused"
	case TransformProcessing:
		return "Processing"
	case TransformFinalizing:
		return "Finalizing"
	case TransformFinalized:
		return "Finalized"
	default:
		return fmt.Sprintf("TransformState(%d)", int32(s))
	}
}

// ProcessFunc consumes some prefix of input and produces some prefix
// of output, returning how many bytes of each it used.
type ProcessFunc func(input, output []byte) (consumedInput, producedOutput int)

// FinalizeFunc flushes any buffered state into output once the
// upstream has ended. ended reports whether the transform has
// nothing further to flush.
type FinalizeFunc func(output []byte) (producedOutput int, ended bool)

// Transform is a Duplex whose write side feeds a ProcessFunc and
// whose read side is fed the processed output.
type Transform struct {
	*Duplex

	process    ProcessFunc
	finalize   FinalizeFunc
	outputSize int

	state TransformState
}

// NewTransform builds a transform stream over pool with outputSize-byte
// output buffers.
func NewTransform(pool *buffer.Pool, outputSize int, process ProcessFunc, finalize FinalizeFunc) *Transform {
	t := &Transform{process: process, finalize: finalize, outputSize: outputSize, state: TransformNone}
	t.Duplex = NewDuplex(pool, outputSize, nil, t.handleWrite, nil)
	return t
}

// handleWrite is bound as the Writable's AsyncWriteFunc: it runs one
// processing step, re-feeding unconsumed input via requeueFront and
// pausing on back-pressure exactly as §4.7 describes.
func (t *Transform) handleWrite(w *Writable, inputID int) {
	input, err := t.Pool.GetReadableData(inputID)
	if err != nil {
		w.FinishedWriting(inputID, err)
		return
	}
	if len(input) == 0 {
		w.FinishedWriting(inputID, nil)
		return
	}

	outID, outSpan, err := t.Pool.RequestNewBuffer(t.outputSize)
	if err != nil {
		t.state = TransformPaused
		w.requeueFront(inputID, nil)
		return
	}

	t.state = TransformProcessing
	consumed, produced := t.process(input, outSpan)

	if produced > 0 {
		t.Readable.deliver(outID, produced)
	} else {
		_ = t.Pool.UnrefBuffer(outID)
	}

	if consumed >= len(input) {
		t.state = TransformNone
		w.FinishedWriting(inputID, nil)
		return
	}

	// re-feed the unconsumed remainder: the child view owns its own
	// reference into the parent, so it is requeued without taking a
	// second one, and releasing inputID below drops only the queue's
	// original reference.
	childID, err := t.Pool.CreateChildView(inputID, consumed, len(input)-consumed)
	if err != nil {
		w.FinishedWriting(inputID, err)
		return
	}
	w.requeueFront(childID, nil)
	w.FinishedWriting(inputID, nil)
}

// End finalizes the transform: flush output until FinalizeFunc
// reports ended, then end the readable half.
func (t *Transform) End() {
	t.state = TransformFinalizing
	for {
		outID, outSpan, err := t.Pool.RequestNewBuffer(t.outputSize)
		if err != nil {
			return // stays Finalizing; ResumeWriting re-invokes End
		}
		produced, ended := t.finalize(outSpan)
		if produced > 0 {
			t.Readable.deliver(outID, produced)
		} else {
			_ = t.Pool.UnrefBuffer(outID)
		}
		if ended {
			t.state = TransformFinalized
			t.Writable.End()
			t.Readable.PushEnd()
			return
		}
	}
}

// State returns the transform's processing state.
func (t *Transform) State() TransformState { return t.state }

// ResumeWriting retries a processing step paused on output
// back-pressure (or a finalize flush that ran out of output buffers),
// then falls through to the writable's own queue. Pipelines call this
// (and Resume on the source) from their afterWrite back-pressure
// propagation.
func (t *Transform) ResumeWriting() {
	if t.state == TransformFinalizing {
		t.End()
		return
	}
	if t.state == TransformPaused && len(t.Writable.queue) > 0 {
		next := t.Writable.queue[0]
		t.Writable.queue = t.Writable.queue[1:]
		t.handleWrite(t.Writable, next.bufferID)
		return
	}
	t.Writable.ResumeWriting()
}

// ResumeReading resumes the output side after a downstream consumer drains.
func (t *Transform) ResumeReading() error {
	return t.Readable.Resume()
}
