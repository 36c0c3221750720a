package kernel

// Select opens the default backend for the running OS: Epoll on
// Linux, Kqueue on macOS/BSD, IOCP on Windows. It never returns an
// Uring, even in builds tagged io_uring: that backend is only used
// when constructed directly with NewUring, and nothing probes the
// kernel or falls back to Epoll on its behalf.
func Select() (Backend, error) {
	return defaultBackend()
}
