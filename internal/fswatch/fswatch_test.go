package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThreadRunnerDeliversCreateEvent(t *testing.T) {
	dir := t.TempDir()
	w, err := Init(ThreadRunner, nil)
	require.NoError(t, err)
	defer w.Close()

	events := make(chan Event, 4)
	_, err = w.Watch(dir, func(ev Event) { events <- ev })
	require.NoError(t, err)

	f := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(f, []byte("hi"), 0o644))

	select {
	case ev := <-events:
		require.Equal(t, dir, ev.BasePath)
		require.Equal(t, f, ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fs event")
	}
}

func TestStopWatchingRemovesFolder(t *testing.T) {
	dir := t.TempDir()
	w, err := Init(ThreadRunner, nil)
	require.NoError(t, err)
	defer w.Close()

	fw, err := w.Watch(dir, func(Event) {})
	require.NoError(t, err)
	require.NoError(t, fw.StopWatching())
	require.NoError(t, fw.StopWatching()) // idempotent

	w.mu.Lock()
	_, stillThere := w.folders[dir]
	w.mu.Unlock()
	require.False(t, stillThere)
}
