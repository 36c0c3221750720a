// Package request defines the event loop's request lifecycle: the
// state machine every async operation moves through and the intrusive
// list discipline used to track it without per-request allocation.
package request

import "fmt"

// State is a Request's position in the lifecycle state machine.
type State int32

const (
	StateFree State = iota
	StateSetup
	StateSubmitting
	StateActive
	StateReactivate
	StateCancelling
	StateTeardown
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "Free"
	case StateSetup:
		return "Setup"
	case StateSubmitting:
		return "Submitting"
	case StateActive:
		return "Active"
	case StateReactivate:
		return "Reactivate"
	case StateCancelling:
		return "Cancelling"
	case StateTeardown:
		return "Teardown"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Type identifies which typed variant a Request carries in Data.
type Type int32

const (
	TypeTimeout Type = iota
	TypeWakeUp
	TypeWork
	TypeProcessExit
	TypeSocketAccept
	TypeSocketConnect
	TypeSocketSend
	TypeSocketReceive
	TypeSocketClose
	TypeFileRead
	TypeFileWrite
	TypeFileClose
	TypeFilePoll
	TypeFileSystemOp
	numTypes
)

// NumTypes is the number of per-type active lists the loop keeps.
const NumTypes = int(numTypes)

func (t Type) String() string {
	names := [...]string{
		"Timeout", "WakeUp", "Work", "ProcessExit",
		"SocketAccept", "SocketConnect", "SocketSend", "SocketReceive", "SocketClose",
		"FileRead", "FileWrite", "FileClose", "FilePoll", "FileSystemOp",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return fmt.Sprintf("Type(%d)", int32(t))
	}
	return names[t]
}

// Flags is a bit word of per-request behavioural switches.
type Flags uint16

const (
	// FlagManualCompletion marks a request whose completion is produced
	// by the loop itself rather than the kernel (e.g. a synchronous
	// SocketClose), delivered through the manual-completion queue.
	FlagManualCompletion Flags = 1 << 0
	// FlagExcludedFromActiveCount lets a daemon-style request (typically
	// a WakeUp) stay active without keeping Run alive.
	FlagExcludedFromActiveCount Flags = 1 << 1
)

// Request is the base of every typed async operation. The caller owns
// the memory; the loop never copies or relocates it. Typed variants
// embed Request and stash their input/completion payload in Data.
type Request struct {
	Type  Type
	State State
	Flags Flags

	// owner is non-nil iff the request is tracked by an EventLoop; it
	// is an opaque value (set by the loop package) so this package has
	// no dependency on the loop's concrete type.
	owner any

	// Data is the typed payload + completion record for this variant,
	// e.g. *TimeoutData, *SocketReceiveData. Backends type-switch on
	// Data's dynamic type to interpret it.
	Data any

	// PoolTask is carried on the request but not read by the event
	// loop: setting it does not move the operation to the thread pool.
	// Buffered file I/O on readiness-based backends goes to the thread
	// pool whether or not PoolTask is set (see kernel.RunBlockingFileIO).
	PoolTask ThreadPoolTask

	// reactivate is set by the variant's completion handling to tell
	// the loop whether to requeue the request as Submitting instead of
	// tearing it down.
	reactivate bool

	// lastErr carries the outcome of the most recent completion for
	// diagnostics; cleared on the next successful start.
	lastErr error

	// intrusive list linkage - exactly one list may reference a given
	// Request at a time.
	prev, next *Request
	inList     *List
}

// ThreadPoolTask is the minimal shape the loop needs from a queued
// thread-pool task; internal/threadpool.Task satisfies it.
type ThreadPoolTask interface {
	Done() bool
}

// Owned reports whether the request is currently tracked by a loop.
func (r *Request) Owned() bool { return r.owner != nil }

// Owner returns the opaque owner set by SetOwner, or nil.
func (r *Request) Owner() any { return r.owner }

// SetOwner is called exclusively by the owning EventLoop.
func (r *Request) SetOwner(owner any) { r.owner = owner }

// Reactivate records whether the request should be resubmitted after
// its current completion is processed, implementing periodic timers
// and other self-re-arming operations.
func (r *Request) Reactivate(again bool) { r.reactivate = again }

// WantsReactivation reports and clears the reactivate flag.
func (r *Request) WantsReactivation() bool {
	v := r.reactivate
	r.reactivate = false
	return v
}

// SetError stashes the last completion error for diagnostics.
func (r *Request) SetError(err error) { r.lastErr = err }

// LastError returns the most recent completion error, if any.
func (r *Request) LastError() error { return r.lastErr }

// Linked reports whether r currently belongs to a list (staging,
// an active-by-type list, or manual-completion).
func (r *Request) Linked() bool { return r.inList != nil }

// CanCancel reports whether Cancel is valid from the current state,
// per the spec: invalid from Free, Cancelling and Teardown.
func (r *Request) CanCancel() bool {
	switch r.State {
	case StateFree, StateCancelling, StateTeardown:
		return false
	default:
		return true
	}
}
