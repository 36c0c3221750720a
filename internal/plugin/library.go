package plugin

import (
	"fmt"
	"hash/fnv"
	"time"
	"unsafe"
)

// LoadMode distinguishes a plugin's first load from a hot reload, so
// Registry.Load can decide whether ReloadCount advances.
type LoadMode int

const (
	Fresh LoadMode = iota
	Reload
)

// DynamicLibrary is one loaded plugin shared library plus its resolved
// entry points. init/close/queryInterface are the three well-known
// symbols every plugin must export.
type DynamicLibrary struct {
	Definition PluginDefinition

	handle libHandle

	LoadedAt     time.Time
	ReloadCount  int
	LastErrorLog string

	initFn           unsafe.Pointer
	closeFn          unsafe.Pointer
	queryInterfaceFn unsafe.Pointer
}

const (
	symInit           = "init"
	symClose          = "close"
	symQueryInterface = "queryInterface"
)

// openLibrary dlopens libraryPath and resolves its three well-known
// symbols. The caller is responsible for calling its init function and,
// on failure, for unloading it again.
func openLibrary(def PluginDefinition, libraryPath string) (*DynamicLibrary, error) {
	h, err := dlOpen(libraryPath)
	if err != nil {
		return nil, err
	}
	initFn, err := dlSym(h, symInit)
	if err != nil {
		dlClose(h)
		return nil, err
	}
	closeFn, err := dlSym(h, symClose)
	if err != nil {
		dlClose(h)
		return nil, err
	}
	queryFn, err := dlSym(h, symQueryInterface)
	if err != nil {
		dlClose(h)
		return nil, err
	}
	return &DynamicLibrary{
		Definition:       def,
		handle:           h,
		initFn:           initFn,
		closeFn:          closeFn,
		queryInterfaceFn: queryFn,
	}, nil
}

// runInit calls the plugin's init() entry point, recording only the
// load time on success: the plugin is expected to keep its own state
// behind the opaque pointer it returns from queryInterface.
func (d *DynamicLibrary) runInit(out unsafe.Pointer) error {
	if !callInit(d.initFn, out) {
		return fmt.Errorf("plugin %s: init() returned failure", d.Definition.Identifier)
	}
	d.LoadedAt = time.Now()
	return nil
}

func (d *DynamicLibrary) runClose() {
	callClose(d.closeFn)
}

// QueryInterface looks up a named interface inside the plugin, hashing
// the name with the same FNV-1a scheme the plugin side is expected to
// use for its switch over requested interface IDs.
func (d *DynamicLibrary) QueryInterface(name string) unsafe.Pointer {
	return callQueryInterface(d.queryInterfaceFn, InterfaceHash(name))
}

func (d *DynamicLibrary) unload() error {
	return dlClose(d.handle)
}

// InterfaceHash is the stable FNV-1a hash of an interface name used to
// identify it across the dlopen boundary without marshaling strings.
func InterfaceHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}
