//go:build windows

package plugin

import (
	"fmt"
	"syscall"
	"unsafe"
)

type libHandle syscall.Handle

func dlOpen(path string) (libHandle, error) {
	h, err := syscall.LoadLibrary(path)
	if err != nil {
		return 0, fmt.Errorf("plugin: LoadLibrary %s: %w", path, err)
	}
	return libHandle(h), nil
}

func dlClose(h libHandle) error {
	if err := syscall.FreeLibrary(syscall.Handle(h)); err != nil {
		return fmt.Errorf("plugin: FreeLibrary: %w", err)
	}
	return nil
}

func dlSym(h libHandle, name string) (unsafe.Pointer, error) {
	addr, err := syscall.GetProcAddress(syscall.Handle(h), name)
	if err != nil {
		return nil, fmt.Errorf("plugin: GetProcAddress %s: %w", name, err)
	}
	return unsafe.Pointer(addr), nil
}

// callInit, callClose and callQueryInterface invoke the resolved plugin
// entry points via syscall.SyscallN, since cgo trampolines aren't
// available on this build.
func callInit(fn unsafe.Pointer, out unsafe.Pointer) bool {
	ret, _, _ := syscall.SyscallN(uintptr(fn), uintptr(out))
	return ret != 0
}

func callClose(fn unsafe.Pointer) {
	syscall.SyscallN(uintptr(fn))
}

func callQueryInterface(fn unsafe.Pointer, hash uint32) unsafe.Pointer {
	ret, _, _ := syscall.SyscallN(uintptr(fn), uintptr(hash))
	return unsafe.Pointer(ret)
}
