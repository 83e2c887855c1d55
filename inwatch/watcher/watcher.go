//go:build linux

// Package watcher maintains a self-consistent set of inotify watches: a
// bidirectional index between normalized paths and kernel watch descriptors
// that survives directories being created, deleted, moved and unmounted
// while events are in flight.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/armon/go-radix"
	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/inotify"
)

// Session is the raw watch capability a Watcher drives. *inotify.Session
// satisfies it; tests substitute scripted implementations.
type Session interface {
	AddWatch(path string, mask uint32) (int, error)
	RemoveWatch(wd int) error
	Read(block bool) ([]inotify.RawEvent, error)
	Queued() (int, error)
	Fd() int
	Close() error
}

var _ Session = (*inotify.Session)(nil)

// WatchEntry is one live watch: a normalized path, its kernel descriptor and
// the active event-interest mask.
type WatchEntry struct {
	Path string
	WD   int
	Mask uint32
}

// Watcher owns one session and the path↔descriptor index over it.
//
// A Watcher is owned by a single goroutine; it has no internal locking.
// Callers sharing one across goroutines must serialize every operation
// externally. The one sanctioned exception is Close during a blocking Read,
// which terminates the read with inotify.ErrClosed.
type Watcher struct {
	session Session
	byPath  *radix.Tree // normalized path -> *WatchEntry
	byWD    map[int]*WatchEntry
	closed  bool

	logger  *slog.Logger
	asserts *assert.AssertHandler
}

// New opens a fresh watch session and returns a watcher over it.
func New() (*Watcher, error) {
	session, err := inotify.Init()
	if err != nil {
		return nil, fmt.Errorf("watcher: cannot open session: %w", err)
	}
	return NewWithSession(session), nil
}

// NewWithSession wraps an already-open session. The watcher takes ownership:
// its Close closes the session.
func NewWithSession(session Session) *Watcher {
	id := uuid.NewString()[:8]
	return &Watcher{
		session: session,
		byPath:  radix.New(),
		byWD:    make(map[int]*WatchEntry),
		logger:  slog.Default().With("watcher", id),
		asserts: assert.NewAssertHandler(),
	}
}

// Add installs or modifies a watch on path and returns its descriptor.
// Re-adding a watched path updates its mask in place and returns the same
// descriptor. On failure the index is left untouched and the error carries
// the OS errno.
func (w *Watcher) Add(path string, mask uint32) (int, error) {
	if w.closed {
		return -1, inotify.ErrClosed
	}
	path = filepath.Clean(path)
	wd, err := w.session.AddWatch(path, mask)
	if err != nil {
		return -1, err
	}
	w.upsert(path, wd, mask)
	w.logger.Debug("watch added", "path", path, "wd", wd, "mask", inotify.DecodeMask(mask))
	return wd, nil
}

// Remove removes the watch for wd. The index entry is evicted even when the
// kernel considers the watch already gone; the primitive's error is still
// surfaced so callers can tell.
func (w *Watcher) Remove(wd int) error {
	if w.closed {
		return inotify.ErrClosed
	}
	err := w.session.RemoveWatch(wd)
	w.evict(wd)
	if err != nil {
		return fmt.Errorf("watcher: remove wd %d: %w", wd, err)
	}
	return nil
}

func (w *Watcher) upsert(path string, wd int, mask uint32) {
	if prev, ok := w.byWD[wd]; ok && prev.Path != path {
		// The kernel reuses descriptors; a stale binding would leave the
		// two indices disagreeing.
		w.byPath.Delete(prev.Path)
	}
	entry := &WatchEntry{Path: path, WD: wd, Mask: mask}
	w.byPath.Insert(path, entry)
	w.byWD[wd] = entry
	w.checkIndexes()
}

func (w *Watcher) evict(wd int) {
	entry, ok := w.byWD[wd]
	if !ok {
		return
	}
	delete(w.byWD, wd)
	w.byPath.Delete(entry.Path)
	w.checkIndexes()
}

// checkIndexes backs the central invariant: every live path maps to exactly
// one live descriptor and vice versa.
func (w *Watcher) checkIndexes() {
	w.asserts.Assert(context.Background(), w.byPath.Len() == len(w.byWD),
		"path and wd indices must stay the same size")
}

// LookupPath returns the descriptor and mask watching path.
func (w *Watcher) LookupPath(path string) (wd int, mask uint32, ok bool) {
	value, ok := w.byPath.Get(filepath.Clean(path))
	if !ok {
		return -1, 0, false
	}
	entry := value.(*WatchEntry)
	return entry.WD, entry.Mask, true
}

// LookupWD returns the path and mask watched by wd.
func (w *Watcher) LookupWD(wd int) (path string, mask uint32, ok bool) {
	entry, ok := w.byWD[wd]
	if !ok {
		return "", 0, false
	}
	return entry.Path, entry.Mask, true
}

// Read reads one batch of decorated events in kernel order. With block set
// it suspends until at least one event is queued; otherwise it returns
// immediately, possibly with an empty batch.
//
// A watch the kernel reports as permanently removed (Ignored) is evicted
// after its event is decorated, so the caller still learns the final path.
// An Unmount event evicts its watch and closes the whole session; every
// later operation fails with inotify.ErrClosed.
func (w *Watcher) Read(block bool) ([]Event, error) {
	if w.closed {
		return nil, inotify.ErrClosed
	}
	raws, err := w.session.Read(block)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		path, _, ok := w.LookupWD(raw.WD)
		if !ok {
			// Events can still be queued for a watch evicted earlier in
			// the batch; deliver them with what is known rather than
			// breaking kernel ordering.
			w.logger.Debug("event for unindexed wd", "wd", raw.WD, "name", raw.Name)
		}
		events = append(events, decorate(raw, path))
		switch {
		case raw.Mask&inotify.Ignored != 0:
			w.evict(raw.WD)
		case raw.Mask&inotify.Unmount != 0:
			w.evict(raw.WD)
			if err := w.Close(); err != nil {
				return events, err
			}
		}
	}
	return events, nil
}

// Close releases the session and clears both indices. It is idempotent; the
// session is closed exactly once, and operations on a closed watcher fail
// with inotify.ErrClosed instead of corrupting state.
func (w *Watcher) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.byPath = radix.New()
	w.byWD = make(map[int]*WatchEntry)
	if err := w.session.Close(); err != nil {
		return fmt.Errorf("watcher: close session: %w", err)
	}
	w.logger.Debug("watcher closed")
	return nil
}

// Count returns the number of live watch entries.
func (w *Watcher) Count() int {
	return len(w.byWD)
}

// Entries returns a snapshot of the current watch entries in path order.
// Mutating the watcher afterwards never affects a snapshot already taken.
func (w *Watcher) Entries() []WatchEntry {
	entries := make([]WatchEntry, 0, w.byPath.Len())
	w.byPath.Walk(func(path string, value interface{}) bool {
		entries = append(entries, *value.(*WatchEntry))
		return false
	})
	return entries
}

// EntriesUnder returns the snapshot restricted to watches at or below root.
func (w *Watcher) EntriesUnder(root string) []WatchEntry {
	root = filepath.Clean(root)
	entries := make([]WatchEntry, 0)
	w.byPath.WalkPrefix(root, func(path string, value interface{}) bool {
		if path == root || strings.HasPrefix(path, root+"/") {
			entries = append(entries, *value.(*WatchEntry))
		}
		return false
	})
	return entries
}

// Fd returns the session's descriptor for readiness multiplexing.
func (w *Watcher) Fd() int {
	return w.session.Fd()
}

// Queued returns the number of bytes waiting in the session queue without
// consuming them.
func (w *Watcher) Queued() (int, error) {
	if w.closed {
		return 0, inotify.ErrClosed
	}
	return w.session.Queued()
}
