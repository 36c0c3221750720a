// Package stream implements the back-pressured Readable/Writable
// producer-consumer state machines, their Duplex/Transform
// composition, and the Pipeline wiring on top of a shared
// buffer.Pool. Grounded on the teacher's per-tag state-machine
// dispatch style (internal/queue/runner.go): a small integer state
// enum, one method per external event, and exhaustive switches
// instead of virtual dispatch.
package stream

import "fmt"

// Event names the fixed set of notifications a stream can emit.
type Event int

const (
	EventData Event = iota
	EventEnd
	EventClose
	EventError
	EventDrain
	EventFinish
	numEvents
)

func (e Event) String() string {
	switch e {
	case EventData:
		return "data"
	case EventEnd:
		return "end"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventDrain:
		return "drain"
	case EventFinish:
		return "finish"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// maxListeners bounds the fixed-size per-event listener array, matching
// the "small fixed-size listener array" backing described for streams.
const maxListeners = 8

// DataListener receives one buffer ID pushed by a Readable.
type DataListener func(bufferID int, size int)

// ErrorListener receives a stream's terminal or transient error.
type ErrorListener func(err error)

// SimpleListener backs end/close/drain/finish, which carry no payload.
type SimpleListener func()

// emitter is embedded by Readable and Writable to provide the fixed
// listener arrays and emit helpers both need.
type emitter struct {
	dataListeners  [maxListeners]DataListener
	numData        int
	errorListeners [maxListeners]ErrorListener
	numError       int
	simple         [numEvents][maxListeners]SimpleListener
	numSimple      [numEvents]int
}

func (e *emitter) onData(fn DataListener) {
	if e.numData >= maxListeners {
		panic("stream: too many data listeners")
	}
	e.dataListeners[e.numData] = fn
	e.numData++
}

func (e *emitter) onError(fn ErrorListener) {
	if e.numError >= maxListeners {
		panic("stream: too many error listeners")
	}
	e.errorListeners[e.numError] = fn
	e.numError++
}

func (e *emitter) on(ev Event, fn SimpleListener) {
	n := e.numSimple[ev]
	if n >= maxListeners {
		panic("stream: too many listeners for " + ev.String())
	}
	e.simple[ev][n] = fn
	e.numSimple[ev] = n + 1
}

func (e *emitter) emitData(id, size int) {
	for i := 0; i < e.numData; i++ {
		e.dataListeners[i](id, size)
	}
}

func (e *emitter) emitError(err error) {
	for i := 0; i < e.numError; i++ {
		e.errorListeners[i](err)
	}
}

func (e *emitter) emit(ev Event) {
	n := e.numSimple[ev]
	for i := 0; i < n; i++ {
		e.simple[ev][i]()
	}
}
