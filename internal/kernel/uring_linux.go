//go:build linux && io_uring

// Package kernel's io_uring backend is an optional acceleration path,
// compiled only with this build tag. Select() does not return it:
// callers construct it with NewUring, and there is no runtime probe
// or automatic fallback to Epoll. Grounded on the teacher's own
// io_uring usage (internal/uring) generalized from ublk's
// URING_CMD-only ring to the READ/WRITE/ACCEPT/CONNECT/SEND/RECV
// opcodes; timers and FilePoll are not issued to the ring.
package kernel

import (
	"fmt"
	"time"

	"github.com/pawelgaczynski/giouring"

	"github.com/sanerun/aio/internal/request"
)

// Uring is the completion-based Linux backend.
type Uring struct {
	ring *giouring.Ring

	pending map[uint64]*request.Request
	nextID  uint64
}

// NewUring creates an io_uring instance with enough submission queue
// entries for the loop's expected concurrency.
func NewUring(entries uint32) (*Uring, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("io_uring_setup: %w", err)
	}
	return &Uring{ring: ring, pending: make(map[uint64]*request.Request)}, nil
}

func (u *Uring) Name() string { return "io_uring" }

func (u *Uring) id(req *request.Request) uint64 {
	u.nextID++
	u.pending[u.nextID] = req
	return u.nextID
}

func (u *Uring) Setup(req *request.Request) error { return nil }

func (u *Uring) Activate(req *request.Request) error {
	sqe := u.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("io_uring: submission queue full")
	}
	userData := u.id(req)
	switch d := req.Data.(type) {
	case *request.SocketAcceptData:
		sqe.PrepareAccept(int32(d.ListenFD), 0, 0, 0)
	case *request.SocketConnectData:
		sqe.PrepareConnect(int32(d.FD), uintptr(0))
	case *request.SocketSendData:
		sqe.PrepareSend(int32(d.FD), d.Buffer, 0)
	case *request.SocketReceiveData:
		sqe.PrepareRecv(int32(d.FD), d.Buffer, 0)
	case *request.FileReadData:
		off := uint64(d.Offset)
		if d.Offset < 0 {
			off = ^uint64(0) // io_uring "use current file position" sentinel
		}
		sqe.PrepareRead(int32(d.FD), d.Buffer, off)
	case *request.FileWriteData:
		off := uint64(d.Offset)
		if d.Offset < 0 {
			off = ^uint64(0)
		}
		sqe.PrepareWrite(int32(d.FD), d.Buffer, off)
	default:
		delete(u.pending, userData)
		return ErrNotSupported
	}
	sqe.UserData = userData
	_, err := u.ring.Submit()
	return err
}

func (u *Uring) Cancel(req *request.Request) error {
	return nil // no-op: the loop tears the request down, so a later CQE for it is not delivered
}

func (u *Uring) Teardown(req *request.Request) error { return nil }

func (u *Uring) CompleteAsync(req *request.Request, ev Event) bool {
	return completeCompletion(req, ev)
}

func (u *Uring) NeedsSubmissionWhenReactivating(t request.Type) bool { return true }

func (u *Uring) SyncWithKernel(mode WaitMode, nextTimer time.Time, out []Event) ([]Event, error) {
	out = out[:0]
	var cqe *giouring.CompletionQueueEvent
	var err error
	if mode == NoWait {
		cqe, err = u.ring.PeekCQE()
	} else {
		cqe, err = u.ring.WaitCQE()
	}
	if err != nil {
		return out, nil
	}
	defer u.ring.SeenCQE(cqe)

	if cqe.UserData == wakeUserData {
		out = append(out, Event{Req: nil})
		return out, nil
	}
	req, ok := u.pending[cqe.UserData]
	if !ok {
		return out, nil
	}
	delete(u.pending, cqe.UserData)
	var evErr error
	if cqe.Res < 0 {
		evErr = fmt.Errorf("io_uring: errno %d", -cqe.Res)
	}
	out = append(out, Event{Req: req, Result: cqe.Res, Err: evErr})
	return out, nil
}

const wakeUserData = ^uint64(0)

func (u *Uring) WakeUp() error {
	sqe := u.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("io_uring: submission queue full on wake-up")
	}
	sqe.PrepareNop()
	sqe.UserData = wakeUserData
	_, err := u.ring.Submit()
	return err
}

func (u *Uring) AssociateFD(fd int) error { return nil }

func (u *Uring) Close() error {
	u.ring.QueueExit()
	return nil
}
