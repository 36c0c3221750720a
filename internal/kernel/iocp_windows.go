//go:build windows

package kernel

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"

	"github.com/sanerun/aio/internal/request"
)

// IOCP is the Windows backend: completion-based, built on
// CreateIoCompletionPort/GetQueuedCompletionStatus/
// PostQueuedCompletionStatus, matching the teacher's "fully overlapped"
// note for file I/O. Socket overlapped operations need AcceptEx/
// ConnectEx/WSASend/WSARecv resolved at runtime via WSAIoctl
// (SIO_GET_EXTENSION_FUNCTION_POINTER) per the external-syscall-wrapper
// boundary spec.md draws around "socket create" - out of scope here.
// Only file read/write go through the port; every other request type
// fails in Activate with ErrNotSupported (file close is handled by the
// loop itself and never reaches the backend).
type IOCP struct {
	port windows.Handle

	overlapped map[*request.Request]*windows.Overlapped
}

func NewIOCP() (*IOCP, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateIoCompletionPort: %w", err)
	}
	return &IOCP{port: port, overlapped: make(map[*request.Request]*windows.Overlapped)}, nil
}

func (p *IOCP) Name() string { return "iocp" }

func (p *IOCP) Setup(req *request.Request) error {
	var handle windows.Handle
	switch d := req.Data.(type) {
	case *request.FileReadData:
		handle = windows.Handle(d.FD)
	case *request.FileWriteData:
		handle = windows.Handle(d.FD)
	default:
		return nil
	}
	if _, err := windows.CreateIoCompletionPort(handle, p.port, 0, 0); err != nil {
		return fmt.Errorf("CreateIoCompletionPort(assoc): %w", err)
	}
	return nil
}

// Activate issues the overlapped operation. File I/O is truly
// asynchronous via ReadFile/WriteFile + OVERLAPPED; socket operations
// and FilePoll return ErrNotSupported.
func (p *IOCP) Activate(req *request.Request) error {
	switch d := req.Data.(type) {
	case *request.FileReadData:
		ov := &windows.Overlapped{}
		if d.Offset >= 0 {
			ov.OffsetHigh = uint32(d.Offset >> 32)
			ov.Offset = uint32(d.Offset)
		}
		p.overlapped[req] = ov
		var done uint32
		err := windows.ReadFile(windows.Handle(d.FD), d.Buffer, &done, ov)
		if err != nil && err != windows.ERROR_IO_PENDING {
			return err
		}
		return nil
	case *request.FileWriteData:
		ov := &windows.Overlapped{}
		if d.Offset >= 0 {
			ov.OffsetHigh = uint32(d.Offset >> 32)
			ov.Offset = uint32(d.Offset)
		}
		p.overlapped[req] = ov
		var done uint32
		err := windows.WriteFile(windows.Handle(d.FD), d.Buffer, &done, ov)
		if err != nil && err != windows.ERROR_IO_PENDING {
			return err
		}
		return nil
	default:
		return ErrNotSupported
	}
}

func (p *IOCP) Cancel(req *request.Request) error {
	if ov, ok := p.overlapped[req]; ok {
		switch d := req.Data.(type) {
		case *request.FileReadData:
			_ = windows.CancelIoEx(windows.Handle(d.FD), ov)
		case *request.FileWriteData:
			_ = windows.CancelIoEx(windows.Handle(d.FD), ov)
		}
	}
	return nil
}

func (p *IOCP) Teardown(req *request.Request) error {
	delete(p.overlapped, req)
	return nil
}

func (p *IOCP) CompleteAsync(req *request.Request, ev Event) bool {
	return completeCompletion(req, ev)
}

func (p *IOCP) NeedsSubmissionWhenReactivating(t request.Type) bool { return true }

func (p *IOCP) SyncWithKernel(mode WaitMode, nextTimer time.Time, out []Event) ([]Event, error) {
	timeoutMs := uint32(windows.INFINITE)
	if mode == NoWait {
		timeoutMs = 0
	} else if !nextTimer.IsZero() {
		if d := time.Until(nextTimer); d > 0 {
			timeoutMs = uint32(d / time.Millisecond)
		} else {
			timeoutMs = 0
		}
	}

	var bytes uint32
	var key uintptr
	var ov *windows.Overlapped
	err := windows.GetQueuedCompletionStatus(p.port, &bytes, &key, &ov, timeoutMs)
	out = out[:0]
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return out, nil
		}
		if ov == nil {
			return out, nil
		}
	}
	if key == 0 && ov == nil {
		return out, nil
	}
	if key == wakeKey {
		out = append(out, Event{Req: nil})
		return out, nil
	}
	req := requestFromOverlapped(p.overlapped, ov)
	if req == nil {
		return out, nil
	}
	var evErr error
	if err != nil {
		evErr = err
	}
	out = append(out, Event{Req: req, Result: int32(bytes), Err: evErr})
	return out, nil
}

const wakeKey = ^uintptr(0)

func requestFromOverlapped(m map[*request.Request]*windows.Overlapped, ov *windows.Overlapped) *request.Request {
	for req, o := range m {
		if o == ov {
			return req
		}
	}
	return nil
}

func (p *IOCP) WakeUp() error {
	return windows.PostQueuedCompletionStatus(p.port, 0, wakeKey, nil)
}

func (p *IOCP) AssociateFD(fd int) error {
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), p.port, 0, 0)
	return err
}

func (p *IOCP) Close() error {
	return windows.CloseHandle(p.port)
}

func defaultBackend() (Backend, error) {
	return NewIOCP()
}
