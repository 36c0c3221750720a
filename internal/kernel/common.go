//go:build !windows

package kernel

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/sanerun/aio/internal/request"
)

// completeReadiness is used by readiness-based backends (epoll,
// kqueue): the kernel has only reported that fd is ready, so the
// syscall itself is performed here, on the loop thread.
func completeReadiness(req *request.Request, readable, writable bool) bool {
	switch d := req.Data.(type) {
	case *request.SocketAcceptData:
		fd, _, err := unix.Accept4(d.ListenFD, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		d.Callback(req, request.SocketAcceptCompletion{AcceptedFD: fd, Err: err})
	case *request.SocketConnectData:
		errno, _ := unix.GetsockoptInt(d.FD, unix.SOL_SOCKET, unix.SO_ERROR)
		var err error
		if errno != 0 {
			err = unix.Errno(errno)
		}
		d.Callback(req, request.SocketConnectCompletion{Err: err})
	case *request.SocketSendData:
		n, err := unix.Write(d.FD, d.Buffer)
		d.Callback(req, request.SocketSendCompletion{BytesSent: n, Err: err})
	case *request.SocketReceiveData:
		n, err := unix.Read(d.FD, d.Buffer)
		disconnected := err == nil && n == 0
		d.Callback(req, request.SocketReceiveCompletion{BytesRead: n, Disconnected: disconnected, Err: err})
	case *request.FilePollData:
		d.Callback(req, request.FilePollCompletion{Readable: readable, Err: nil})
	}
	return req.WantsReactivation()
}

// RunFileReadSync performs a blocking file read; used by the thread
// pool path on readiness-based backends.
func RunFileReadSync(fd int, buf []byte, offset int64) (int, bool, error) {
	var n int
	var err error
	if offset < 0 {
		n, err = unix.Read(fd, buf)
	} else {
		n, err = unix.Pread(fd, buf, offset)
	}
	eof := err == nil && n == 0 && len(buf) > 0
	if err == io.EOF {
		err = nil
		eof = true
	}
	return n, eof, err
}

// RunFileWriteSync performs a blocking file write.
func RunFileWriteSync(fd int, buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return unix.Write(fd, buf)
	}
	return unix.Pwrite(fd, buf, offset)
}
