package aio

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/sanerun/aio/internal/kernel"
)

// Error is a structured runtime error carrying the failing operation
// and, where relevant, which kernel backend produced it. Grounded on
// the teacher's *ublk.Error shape, generalized from a device/queue
// context to a backend/request-type one.
type Error struct {
	Op      string // operation that failed (e.g. "FileRead", "EpollWait")
	Backend string // kernel backend name, empty if not applicable
	Code    ErrorCode
	Errno   syscall.Errno
	Msg     string
	Inner   error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("aio: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("aio: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode categorizes an Error independent of its message.
type ErrorCode string

const (
	ErrCodeNotSupported       ErrorCode = "operation not supported by this backend"
	ErrCodeInvalidState       ErrorCode = "request in wrong lifecycle state"
	ErrCodeAlreadyOwned       ErrorCode = "request already owned by a loop"
	ErrCodeKernelNotSupported ErrorCode = "kernel backend unavailable"
	ErrCodeIOError            ErrorCode = "I/O error"
	ErrCodeClosed             ErrorCode = "event loop closed"
	ErrCodeTimeout            ErrorCode = "operation timed out"
)

// NewError builds a structured error with no errno context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrorWithErrno builds a structured error from a kernel errno.
func NewErrorWithErrno(op string, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error()}
}

// WrapError wraps inner with operation context, mapping a bare
// syscall.Errno, or kernel.ErrNotSupported, to an ErrorCode when
// possible.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if errors.Is(inner, kernel.ErrNotSupported) {
		return &Error{Op: op, Code: ErrCodeNotSupported, Msg: inner.Error(), Inner: inner}
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, Backend: e.Backend, Code: e.Code, Errno: e.Errno, Msg: e.Msg, Inner: e.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidState
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeKernelNotSupported
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err is (or wraps) an *Error with code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
