// Package fswatch implements FileSystemWatcher, the fsnotify-backed
// directory watcher the plugin registry uses to detect source changes.
// Grounded on the teacher's per-OS kernel backend split: fsnotify's own
// goroutine plays the role of "the kernel", and RunnerMode chooses
// whether its notifications cross onto the loop thread (EventLoopRunner)
// or are delivered as-is (ThreadRunner), mirroring spec.md §4.9.
package fswatch

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/sanerun/aio/internal/request"
)

// RunnerMode selects how a FileSystemWatcher delivers events.
type RunnerMode int

const (
	// ThreadRunner invokes each FolderWatcher's callback directly from
	// fsnotify's own event-reading goroutine.
	ThreadRunner RunnerMode = iota
	// EventLoopRunner marshals every event onto the owning EventLoop's
	// thread via an AsyncLoopWakeUp, so callbacks run interleaved with
	// the loop's other completions instead of concurrently with them.
	EventLoopRunner
)

// Loop is the minimal EventLoop surface fswatch needs; *aio.EventLoop
// satisfies it structurally without an import cycle.
type Loop interface {
	SubmitRequests(reqs ...*request.Request) error
	WakeUpFromExternalThread(req *request.Request) error
}

// Event is one filesystem notification, relative to the FolderWatcher
// that registered the path.
type Event struct {
	BasePath string
	RelPath  string
	Name     string
	Op       fsnotify.Op
}

// Callback receives watcher events. In EventLoopRunner mode it runs on
// the loop thread; in ThreadRunner mode it runs on fsnotify's goroutine
// and must not touch loop-owned state without its own synchronization.
type Callback func(Event)

// FolderWatcher is one registered (path, callback) pair.
type FolderWatcher struct {
	owner    *FileSystemWatcher
	basePath string
	cb       Callback
	stopped  bool
}

// StopWatching removes the fsnotify watch for this folder. Idempotent.
func (f *FolderWatcher) StopWatching() error {
	f.owner.mu.Lock()
	defer f.owner.mu.Unlock()
	if f.stopped {
		return nil
	}
	f.stopped = true
	delete(f.owner.folders, f.basePath)
	return f.owner.fs.Remove(f.basePath)
}

// FileSystemWatcher owns one fsnotify.Watcher and every FolderWatcher
// registered against it.
type FileSystemWatcher struct {
	mode RunnerMode
	fs   *fsnotify.Watcher

	mu      sync.Mutex
	folders map[string]*FolderWatcher

	loop   Loop
	wakeup *request.Request

	pendingMu sync.Mutex
	pending   []pendingEvent

	done chan struct{}
}

// Init creates a FileSystemWatcher in the given mode. loop is required
// (and must be running) for EventLoopRunner, ignored for ThreadRunner.
func Init(mode RunnerMode, loop Loop) (*FileSystemWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &FileSystemWatcher{
		mode:    mode,
		fs:      fs,
		folders: make(map[string]*FolderWatcher),
		loop:    loop,
		done:    make(chan struct{}),
	}
	if mode == EventLoopRunner {
		if loop == nil {
			fs.Close()
			return nil, errNilLoop
		}
		w.wakeup = request.NewWakeUp(func(r *request.Request, _ request.WakeUpCompletion) {
			w.drainPending()
		})
		if err := loop.SubmitRequests(w.wakeup); err != nil {
			fs.Close()
			return nil, err
		}
	}
	go w.run()
	return w, nil
}

var errNilLoop = &initError{"fswatch: EventLoopRunner mode requires a non-nil loop"}

type initError struct{ msg string }

func (e *initError) Error() string { return e.msg }

// Watch registers path (recursively watched is the caller's
// responsibility — fsnotify itself only watches one directory level)
// and returns a FolderWatcher the caller can later StopWatching.
func (w *FileSystemWatcher) Watch(path string, cb Callback) (*FolderWatcher, error) {
	if err := w.fs.Add(path); err != nil {
		return nil, err
	}
	fw := &FolderWatcher{owner: w, basePath: path, cb: cb}
	w.mu.Lock()
	w.folders[path] = fw
	w.mu.Unlock()
	return fw, nil
}

// Close stops the underlying fsnotify watcher and its event-reading
// goroutine.
func (w *FileSystemWatcher) Close() error {
	close(w.done)
	return w.fs.Close()
}

func (w *FileSystemWatcher) run() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.deliver(ev)
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *FileSystemWatcher) deliver(ev fsnotify.Event) {
	base, fw := w.folderFor(ev.Name)
	if fw == nil {
		return
	}
	out := Event{BasePath: base, RelPath: relPath(base, ev.Name), Name: ev.Name, Op: ev.Op}
	if w.mode == ThreadRunner {
		fw.cb(out)
		return
	}
	w.pendingMu.Lock()
	w.pending = append(w.pending, pendingEvent{fw: fw, ev: out})
	w.pendingMu.Unlock()
	_ = w.loop.WakeUpFromExternalThread(w.wakeup)
}

type pendingEvent struct {
	fw *FolderWatcher
	ev Event
}

func (w *FileSystemWatcher) drainPending() {
	w.pendingMu.Lock()
	batch := w.pending
	w.pending = nil
	w.pendingMu.Unlock()
	for _, pe := range batch {
		pe.fw.cb(pe.ev)
	}
}

func (w *FileSystemWatcher) folderFor(name string) (string, *FolderWatcher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	best := ""
	var bestFw *FolderWatcher
	for base, fw := range w.folders {
		if len(base) > len(best) && hasPathPrefix(name, base) {
			best, bestFw = base, fw
		}
	}
	return best, bestFw
}
