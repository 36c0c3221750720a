package request

import (
	"sync/atomic"
	"time"
)

// TimeoutData backs TypeTimeout: fires once after Delay, or
// periodically when the callback calls Reactivate(true).
type TimeoutData struct {
	Delay    time.Duration
	Deadline time.Time // computed by the loop on (re)activation
	Callback func(*Request, TimeoutCompletion)
}

type TimeoutCompletion struct {
	Err error
}

// NewTimeout builds a ready-to-start Timeout request.
func NewTimeout(delay time.Duration, cb func(*Request, TimeoutCompletion)) *Request {
	return &Request{Type: TypeTimeout, Data: &TimeoutData{Delay: delay, Callback: cb}}
}

// WakeUpData backs TypeWakeUp: an AsyncLoopWakeUp. Pending coalesces
// concurrent external WakeUp() calls into a single kernel round-trip.
type WakeUpData struct {
	Pending  atomic.Bool
	Callback func(*Request, WakeUpCompletion)
}

type WakeUpCompletion struct{}

func NewWakeUp(cb func(*Request, WakeUpCompletion)) *Request {
	return &Request{Type: TypeWakeUp, Data: &WakeUpData{Callback: cb}}
}

// WorkData backs TypeWork: a unit of work dispatched to the thread
// pool; Func runs off the loop thread, Callback runs back on it.
type WorkData struct {
	Func     func() error
	Callback func(*Request, WorkCompletion)
}

type WorkCompletion struct {
	Err error
}

func NewWork(fn func() error, cb func(*Request, WorkCompletion)) *Request {
	return &Request{Type: TypeWork, Data: &WorkData{Func: fn, Callback: cb}}
}

// ProcessExitData backs TypeProcessExit.
type ProcessExitData struct {
	Pid      int
	Callback func(*Request, ProcessExitCompletion)
}

type ProcessExitCompletion struct {
	ExitCode int
	Signaled bool
	Signal   int
	Err      error
}

func NewProcessExit(pid int, cb func(*Request, ProcessExitCompletion)) *Request {
	return &Request{Type: TypeProcessExit, Data: &ProcessExitData{Pid: pid, Callback: cb}}
}

// SocketAcceptData backs TypeSocketAccept.
type SocketAcceptData struct {
	ListenFD int
	Callback func(*Request, SocketAcceptCompletion)
}

type SocketAcceptCompletion struct {
	AcceptedFD int
	Err        error
}

func NewSocketAccept(listenFD int, cb func(*Request, SocketAcceptCompletion)) *Request {
	return &Request{Type: TypeSocketAccept, Data: &SocketAcceptData{ListenFD: listenFD, Callback: cb}}
}

// SocketConnectData backs TypeSocketConnect.
type SocketConnectData struct {
	FD       int
	Addr     []byte // raw sockaddr bytes, backend-specific encoding
	Callback func(*Request, SocketConnectCompletion)
}

type SocketConnectCompletion struct {
	Err error
}

func NewSocketConnect(fd int, addr []byte, cb func(*Request, SocketConnectCompletion)) *Request {
	return &Request{Type: TypeSocketConnect, Data: &SocketConnectData{FD: fd, Addr: addr, Callback: cb}}
}

// SocketSendData backs TypeSocketSend.
type SocketSendData struct {
	FD       int
	Buffer   []byte
	Callback func(*Request, SocketSendCompletion)
}

type SocketSendCompletion struct {
	BytesSent int
	Err       error
}

func NewSocketSend(fd int, buf []byte, cb func(*Request, SocketSendCompletion)) *Request {
	return &Request{Type: TypeSocketSend, Data: &SocketSendData{FD: fd, Buffer: buf, Callback: cb}}
}

// SocketReceiveData backs TypeSocketReceive.
type SocketReceiveData struct {
	FD       int
	Buffer   []byte
	Callback func(*Request, SocketReceiveCompletion)
}

type SocketReceiveCompletion struct {
	BytesRead    int
	Disconnected bool
	Err          error
}

func NewSocketReceive(fd int, buf []byte, cb func(*Request, SocketReceiveCompletion)) *Request {
	return &Request{Type: TypeSocketReceive, Data: &SocketReceiveData{FD: fd, Buffer: buf, Callback: cb}}
}

// SocketCloseData backs TypeSocketClose. Socket close is synchronous
// on every backend and is delivered via the manual-completion queue.
type SocketCloseData struct {
	FD       int
	Callback func(*Request, SocketCloseCompletion)
}

type SocketCloseCompletion struct {
	Err error
}

func NewSocketClose(fd int, cb func(*Request, SocketCloseCompletion)) *Request {
	r := &Request{Type: TypeSocketClose, Data: &SocketCloseData{FD: fd, Callback: cb}}
	r.Flags |= FlagManualCompletion
	return r
}

// FileReadData backs TypeFileRead.
type FileReadData struct {
	FD       int
	Buffer   []byte
	Offset   int64 // -1 means "advance the backend's stored cursor"
	Callback func(*Request, FileReadCompletion)
	Cursor   int64
}

type FileReadCompletion struct {
	BytesRead int
	EOF       bool
	Err       error
}

func NewFileRead(fd int, buf []byte, offset int64, cb func(*Request, FileReadCompletion)) *Request {
	return &Request{Type: TypeFileRead, Data: &FileReadData{FD: fd, Buffer: buf, Offset: offset, Callback: cb}}
}

// FileWriteData backs TypeFileWrite.
type FileWriteData struct {
	FD       int
	Buffer   []byte
	Offset   int64
	Callback func(*Request, FileWriteCompletion)
	Cursor   int64
}

type FileWriteCompletion struct {
	BytesWritten int
	Err          error
}

func NewFileWrite(fd int, buf []byte, offset int64, cb func(*Request, FileWriteCompletion)) *Request {
	return &Request{Type: TypeFileWrite, Data: &FileWriteData{FD: fd, Buffer: buf, Offset: offset, Callback: cb}}
}

// FileCloseData backs TypeFileClose, also manual-completion.
type FileCloseData struct {
	FD       int
	Callback func(*Request, FileCloseCompletion)
}

type FileCloseCompletion struct {
	Err error
}

func NewFileClose(fd int, cb func(*Request, FileCloseCompletion)) *Request {
	r := &Request{Type: TypeFileClose, Data: &FileCloseData{FD: fd, Callback: cb}}
	r.Flags |= FlagManualCompletion
	return r
}

// FilePollData backs TypeFilePoll: used to drive an overlapped handle
// (e.g. ReadDirectoryChangesW, inotify fd) onto the loop thread.
type FilePollData struct {
	FD       int
	Callback func(*Request, FilePollCompletion)
}

type FilePollCompletion struct {
	Readable bool
	Err      error
}

func NewFilePoll(fd int, cb func(*Request, FilePollCompletion)) *Request {
	return &Request{Type: TypeFilePoll, Data: &FilePollData{FD: fd, Callback: cb}}
}

// FileSystemOpData backs TypeFileSystemOp: copy/rename/mkdir/remove
// style operations that always run on the thread pool.
type FileSystemOpData struct {
	Op       func() error
	Callback func(*Request, FileSystemOpCompletion)
}

type FileSystemOpCompletion struct {
	Err error
}

func NewFileSystemOp(op func() error, cb func(*Request, FileSystemOpCompletion)) *Request {
	return &Request{Type: TypeFileSystemOp, Data: &FileSystemOpData{Op: op, Callback: cb}}
}
