package plugin

import (
	"fmt"
	"sync"
	"unsafe"
)

// Registry owns every loaded DynamicLibrary, keyed by plugin
// identifier. Load preserves an atomic-replace invariant: either a
// freshly compiled and initialized library takes the identifier's
// slot, or the previous library (if any) is left exactly as it was and
// an error is returned.
type Registry struct {
	mu   sync.RWMutex
	libs map[string]*DynamicLibrary

	intermediatesDir string
}

// NewRegistry creates an empty Registry that builds plugins under
// intermediatesDir.
func NewRegistry(intermediatesDir string) *Registry {
	return &Registry{
		libs:             make(map[string]*DynamicLibrary),
		intermediatesDir: intermediatesDir,
	}
}

// Load compiles def with c/sr (on every call), dlopens the result, runs its
// init() with out, and swaps it into the registry under
// def.Identifier. On any failure the registry's previous entry for
// this identifier (if one exists) is left untouched.
func (r *Registry) Load(def PluginDefinition, c *Compiler, sr *Sysroot, out unsafe.Pointer, mode LoadMode) (*DynamicLibrary, error) {
	libraryPath, err := Compile(c, sr, def, r.intermediatesDir)
	if err != nil {
		return nil, err
	}

	lib, err := openLibrary(def, libraryPath)
	if err != nil {
		return nil, err
	}
	if err := lib.runInit(out); err != nil {
		lib.unload()
		return nil, err
	}

	r.mu.Lock()
	prev, hadPrev := r.libs[def.Identifier]
	if mode == Reload && hadPrev {
		lib.ReloadCount = prev.ReloadCount + 1
	}
	r.libs[def.Identifier] = lib
	r.mu.Unlock()

	if hadPrev {
		prev.runClose()
		prev.unload()
	}
	return lib, nil
}

// Unload removes identifier from the registry, calling its close() and
// dlclosing its handle. A no-op if the identifier isn't loaded.
func (r *Registry) Unload(identifier string) error {
	r.mu.Lock()
	lib, ok := r.libs[identifier]
	if ok {
		delete(r.libs, identifier)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	lib.runClose()
	return lib.unload()
}

// QueryInterface resolves a named interface from a loaded plugin.
func (r *Registry) QueryInterface(identifier, interfaceName string) (unsafe.Pointer, error) {
	r.mu.RLock()
	lib, ok := r.libs[identifier]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin: %s is not loaded", identifier)
	}
	ptr := lib.QueryInterface(interfaceName)
	if ptr == nil {
		return nil, fmt.Errorf("plugin: %s does not implement %s", identifier, interfaceName)
	}
	return ptr, nil
}

// Get returns the currently loaded library for identifier, if any.
func (r *Registry) Get(identifier string) (*DynamicLibrary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lib, ok := r.libs[identifier]
	return lib, ok
}

// GetPluginsToReloadBecauseOf reports every loaded plugin whose
// MainFile or SourceFiles include changedPath, so a fswatch callback
// can decide which identifiers to recompile and reload.
func (r *Registry) GetPluginsToReloadBecauseOf(changedPath string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, lib := range r.libs {
		for _, src := range lib.Definition.SourceFiles {
			if src == changedPath {
				out = append(out, id)
				break
			}
		}
	}
	return out
}
