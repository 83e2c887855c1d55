//go:build linux

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/inotify"
)

// newKernelWatcher skips when the environment cannot create inotify sessions
// (exhausted instance limits, locked-down sandboxes).
func newKernelWatcher(t *testing.T) *AutoWatcher {
	t.Helper()
	w, err := NewAuto(nil)
	if err != nil {
		t.Skipf("inotify unavailable: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// readUntil drains non-blocking reads until pred is satisfied or the
// deadline passes, returning everything read.
func readUntil(t *testing.T, w *AutoWatcher, pred func([]Event) bool) []Event {
	t.Helper()
	collected := make([]Event, 0)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, err := w.Read(false)
		require.NoError(t, err)
		collected = append(collected, events...)
		if pred(collected) {
			return collected
		}
		time.Sleep(10 * time.Millisecond)
	}
	return collected
}

func TestKernel_RecursiveAddThenModify(t *testing.T) {
	w := newKernelWatcher(t)

	root := t.TempDir()
	sub := filepath.Join(root, "x", "y")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	wds, err := drain(w.AddAll(root, inotify.AllEvents, nil))
	require.NoError(t, err)
	assert.Len(t, wds, 3)
	assert.Equal(t, 3, w.Count())

	target := filepath.Join(sub, "leaf.txt")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	events := readUntil(t, w, func(events []Event) bool {
		for _, event := range events {
			if event.FullPath == target && event.Mask&inotify.CloseWrite != 0 {
				return true
			}
		}
		return false
	})
	require.NotEmpty(t, events, "expected events for %s", target)
}

func TestKernel_AutoExtendPicksUpNewDirectory(t *testing.T) {
	w := newKernelWatcher(t)

	root := t.TempDir()
	_, err := w.Add(root, inotify.AllEvents)
	require.NoError(t, err)

	nested := filepath.Join(root, "fresh")
	require.NoError(t, os.Mkdir(nested, 0o755))

	readUntil(t, w, func([]Event) bool {
		_, _, ok := w.LookupPath(nested)
		return ok
	})

	_, mask, ok := w.LookupPath(nested)
	require.True(t, ok, "new directory must be auto-watched")
	assert.NotZero(t, mask&inotify.OnlyDir)

	// Events inside the new directory now flow through the same session.
	inner := filepath.Join(nested, "inner.txt")
	require.NoError(t, os.WriteFile(inner, nil, 0o644))
	events := readUntil(t, w, func(events []Event) bool {
		for _, event := range events {
			if event.FullPath == inner {
				return true
			}
		}
		return false
	})
	require.NotEmpty(t, events)
}

func TestKernel_RemovedDirectoryIsEvicted(t *testing.T) {
	w := newKernelWatcher(t)

	root := t.TempDir()
	doomed := filepath.Join(root, "doomed")
	require.NoError(t, os.Mkdir(doomed, 0o755))

	_, err := drain(w.AddAll(root, inotify.AllEvents, nil))
	require.NoError(t, err)
	require.NoError(t, os.Remove(doomed))

	readUntil(t, w, func([]Event) bool {
		_, _, ok := w.LookupPath(doomed)
		return !ok
	})

	_, _, ok := w.LookupPath(doomed)
	assert.False(t, ok, "deleted directory's watch must be evicted")
	assert.Equal(t, 1, w.Count())
}

func TestKernel_ThresholdSeesQueuedBytes(t *testing.T) {
	w := newKernelWatcher(t)

	root := t.TempDir()
	_, err := w.Add(root, inotify.AllEvents)
	require.NoError(t, err)

	threshold := NewThreshold(w, 1)
	ready, err := threshold.Ready()
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), nil, 0o644))

	ready, err = threshold.Ready()
	require.NoError(t, err)
	assert.True(t, ready)
}
