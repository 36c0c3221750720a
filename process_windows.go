//go:build windows

package aio

// waitForProcessExit is unimplemented on Windows: overlapped process
// wait (RegisterWaitForSingleObject against an IOCP) is out of scope
// until iocp_windows.go grows socket-overlapped support it can share.
func waitForProcessExit(pid int) (exitCode int, signaled bool, signal int, err error) {
	return 0, false, 0, NewError("ProcessExit", ErrCodeNotSupported, "process exit tracking not implemented on windows")
}
