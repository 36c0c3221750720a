//go:build !windows

package plugin

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

static int sc_plugin_call_init(void *fn, void *out) {
    typedef int (*init_fn)(void *);
    return ((init_fn)fn)(out);
}

static void sc_plugin_call_close(void *fn) {
    typedef void (*close_fn)(void);
    ((close_fn)fn)();
}

static void *sc_plugin_call_query(void *fn, unsigned int hash) {
    typedef void *(*query_fn)(unsigned int);
    return ((query_fn)fn)(hash);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type libHandle unsafe.Pointer

func dlOpen(path string) (libHandle, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	h := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if h == nil {
		return nil, fmt.Errorf("plugin: dlopen %s: %s", path, C.GoString(C.dlerror()))
	}
	return libHandle(h), nil
}

func dlClose(h libHandle) error {
	if C.dlclose(unsafe.Pointer(h)) != 0 {
		return fmt.Errorf("plugin: dlclose: %s", C.GoString(C.dlerror()))
	}
	return nil
}

func dlSym(h libHandle, name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	sym := C.dlsym(unsafe.Pointer(h), cname)
	if sym == nil {
		return nil, fmt.Errorf("plugin: dlsym %s: %s", name, C.GoString(C.dlerror()))
	}
	return sym, nil
}

func callInit(fn unsafe.Pointer, out unsafe.Pointer) bool {
	return C.sc_plugin_call_init(fn, out) != 0
}

func callClose(fn unsafe.Pointer) {
	C.sc_plugin_call_close(fn)
}

func callQueryInterface(fn unsafe.Pointer, hash uint32) unsafe.Pointer {
	return C.sc_plugin_call_query(fn, C.uint(hash))
}
