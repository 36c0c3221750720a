//go:build windows

package aio

import "syscall"

func closeFD(fd int) error { return syscall.Close(syscall.Handle(fd)) }

// readFileSync/writeFileSync are never reached on Windows: the IOCP
// backend reports RunBlockingFileIO=false, so armBufferedFileIO is
// only ever armed on the readiness-based unix backends. Kept so the
// thread-pool path still type-checks on this platform.
func readFileSync(fd int, buf []byte, offset int64) (int, bool, error) {
	n, err := syscall.Read(syscall.Handle(fd), buf)
	eof := err == nil && n == 0 && len(buf) > 0
	return n, eof, err
}

func writeFileSync(fd int, buf []byte, offset int64) (int, error) {
	return syscall.Write(syscall.Handle(fd), buf)
}
