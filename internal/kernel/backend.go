// Package kernel implements the per-OS KernelBackend contract: a thin
// abstraction over completion-based (IOCP, io_uring) and
// readiness-based (kqueue, epoll) submission APIs, uniform enough that
// the event loop driver never branches on OS.
package kernel

import (
	"errors"
	"time"

	"github.com/sanerun/aio/internal/request"
)

// ErrNotSupported is returned by Setup/Activate when a backend cannot
// perform the requested operation at all (e.g. socket operations on
// IOCP, or FilePoll on IOCP and io_uring).
var ErrNotSupported = errors.New("kernel: operation not supported by this backend")

// WaitMode controls how long SyncWithKernel may block.
type WaitMode int

const (
	// ForcedForwardProgress blocks until at least one event is ready.
	ForcedForwardProgress WaitMode = iota
	// NoWait returns immediately with whatever is already ready.
	NoWait
)

// Event is one backend-reported completion or readiness notification,
// carrying the originating Request back to the loop.
type Event struct {
	Req    *request.Request
	Result int32 // 0 or positive on success, negative errno-equivalent on failure
	Err    error
}

// Backend is the uniform contract implemented per OS. All methods run
// exclusively on the loop thread.
type Backend interface {
	// Name identifies the backend for logging/diagnostics.
	Name() string

	// Setup performs one-time association of req with the kernel (e.g.
	// duplicating a fd into an IOCP). Called once, on first activation.
	Setup(req *request.Request) error

	// Activate issues the operation (completion-based) or registers
	// interest (readiness-based).
	Activate(req *request.Request) error

	// Cancel makes a best-effort attempt to abort an in-flight
	// operation. The loop tears the request down right after Cancel
	// returns and does not invoke its completion callback.
	Cancel(req *request.Request) error

	// Teardown releases any kernel-side resources Setup acquired.
	Teardown(req *request.Request) error

	// CompleteAsync converts a backend Event into the request's
	// CompletionData and invokes the user callback, returning whether
	// the request asked to be reactivated.
	CompleteAsync(req *request.Request, ev Event) (reactivate bool)

	// NeedsSubmissionWhenReactivating hints whether Activate must run
	// again after a reactivation, or whether the kernel operation is
	// already re-armed implicitly.
	NeedsSubmissionWhenReactivating(t request.Type) bool

	// SyncWithKernel blocks (per mode) and returns ready events. The
	// nextTimer deadline, if non-zero, bounds a ForcedForwardProgress
	// wait so expiring timers are not missed.
	SyncWithKernel(mode WaitMode, nextTimer time.Time, out []Event) ([]Event, error)

	// WakeUp posts a cross-thread wake-up notification; safe to call
	// from any goroutine, coalesced with concurrent callers.
	WakeUp() error

	// AssociateFD registers a caller-owned descriptor with the
	// backend (e.g. binds it to the IOCP completion port).
	AssociateFD(fd int) error

	// Close releases the backend's own kernel handle (epoll fd, kqueue
	// fd, IOCP handle, io_uring fd).
	Close() error
}

// RunBlockingFileIO reports whether this backend requires buffered
// file I/O to be routed through the thread pool rather than issued
// inline, per spec: true for readiness-based backends (kqueue/epoll),
// false for completion-based ones (IOCP, io_uring).
func RunBlockingFileIO(b Backend) bool {
	switch b.Name() {
	case "iocp", "io_uring":
		return false
	default:
		return true
	}
}
