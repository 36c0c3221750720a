//go:build darwin || freebsd || netbsd || openbsd

package kernel

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sanerun/aio/internal/request"
)

// Kqueue is the macOS/BSD readiness-based backend, grounded on the
// panlibin/gnet and SeleniaProject-Orizon kqueue poller shape: one
// kqueue fd, registrations per socket/fd, and an EVFILT_USER wake-up
// identifier so external threads can interrupt the blocking wait.
type Kqueue struct {
	kq   int
	regs map[int]*request.Request
}

const wakeIdent = 1

func NewKqueue() (*Kqueue, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	_, err = unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("kevent(EVFILT_USER add): %w", err)
	}
	return &Kqueue{kq: kq, regs: make(map[int]*request.Request)}, nil
}

func (k *Kqueue) Name() string { return "kqueue" }

func filterOf(req *request.Request) (int, int16, bool) {
	switch d := req.Data.(type) {
	case *request.SocketAcceptData:
		return d.ListenFD, unix.EVFILT_READ, true
	case *request.SocketConnectData:
		return d.FD, unix.EVFILT_WRITE, true
	case *request.SocketSendData:
		return d.FD, unix.EVFILT_WRITE, true
	case *request.SocketReceiveData:
		return d.FD, unix.EVFILT_READ, true
	case *request.FilePollData:
		return d.FD, unix.EVFILT_READ, true
	default:
		return -1, 0, false
	}
}

func (k *Kqueue) Setup(req *request.Request) error {
	fd, filter, ok := filterOf(req)
	if !ok {
		return nil
	}
	change := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_ADD | unix.EV_CLEAR}
	if _, err := unix.Kevent(k.kq, []unix.Kevent_t{change}, nil, nil); err != nil {
		return fmt.Errorf("kevent(add fd=%d): %w", fd, err)
	}
	k.regs[fd] = req
	return nil
}

func (k *Kqueue) Activate(req *request.Request) error { return nil }

func (k *Kqueue) Cancel(req *request.Request) error { return k.Teardown(req) }

func (k *Kqueue) Teardown(req *request.Request) error {
	fd, filter, ok := filterOf(req)
	if !ok {
		return nil
	}
	change := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_DELETE}
	_, _ = unix.Kevent(k.kq, []unix.Kevent_t{change}, nil, nil)
	delete(k.regs, fd)
	return nil
}

func (k *Kqueue) CompleteAsync(req *request.Request, ev Event) bool {
	readable := ev.Result == int32(unix.EVFILT_READ)
	writable := ev.Result == int32(unix.EVFILT_WRITE)
	return completeReadiness(req, readable, writable)
}

func (k *Kqueue) NeedsSubmissionWhenReactivating(t request.Type) bool { return false }

func (k *Kqueue) SyncWithKernel(mode WaitMode, nextTimer time.Time, out []Event) ([]Event, error) {
	var ts *unix.Timespec
	switch {
	case mode == NoWait:
		ts = &unix.Timespec{}
	case !nextTimer.IsZero():
		if d := time.Until(nextTimer); d > 0 {
			s := unix.NsecToTimespec(d.Nanoseconds())
			ts = &s
		} else {
			ts = &unix.Timespec{}
		}
	}

	events := make([]unix.Kevent_t, 64)
	n, err := unix.Kevent(k.kq, nil, events, ts)
	if err != nil {
		if err == unix.EINTR {
			return out[:0], nil
		}
		return nil, fmt.Errorf("kevent(wait): %w", err)
	}

	out = out[:0]
	for i := 0; i < n; i++ {
		if events[i].Ident == wakeIdent && events[i].Filter == unix.EVFILT_USER {
			out = append(out, Event{Req: nil})
			continue
		}
		fd := int(events[i].Ident)
		req, ok := k.regs[fd]
		if !ok {
			continue
		}
		out = append(out, Event{Req: req, Result: int32(events[i].Filter)})
	}
	return out, nil
}

func (k *Kqueue) WakeUp() error {
	_, err := unix.Kevent(k.kq, []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return err
}

func (k *Kqueue) AssociateFD(fd int) error { return nil }

func (k *Kqueue) Close() error { return unix.Close(k.kq) }

func defaultBackend() (Backend, error) {
	return NewKqueue()
}
