//go:build linux

package watcher

import (
	"fmt"

	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/inotify"
)

// autoExtendMask marks events that introduce a new directory into a watched
// one: created in place, or moved in from elsewhere. A rename into the tree
// leaves an unwatched subtree by the same race as a create, so both extend.
const autoExtendMask = inotify.Create | inotify.MovedTo

// AutoWatcher extends a Watcher by transparently watching directories that
// appear under an already-watched one. It adds no state beyond an optional
// filter and mirrors the wrapped watcher's open/closed lifecycle.
type AutoWatcher struct {
	*Watcher
	filter Filter
}

// NewAuto opens a session and returns an auto-extending watcher over it.
// filter may be nil, in which case every new directory is watched.
func NewAuto(filter Filter) (*AutoWatcher, error) {
	w, err := New()
	if err != nil {
		return nil, err
	}
	return &AutoWatcher{Watcher: w, filter: filter}, nil
}

// NewAutoWithSession wraps an already-open session.
func NewAutoWithSession(session Session, filter Filter) *AutoWatcher {
	return &AutoWatcher{Watcher: NewWithSession(session), filter: filter}
}

// Read behaves like Watcher.Read and additionally installs a watch for every
// new directory the batch reports, inheriting the reporting watch's mask
// plus OnlyDir. Ignorable add failures are expected races (the directory
// vanished again before the watch landed) and are suppressed. Any other add
// failure is returned together with the events decoded so far; callers must
// process the events before inspecting the error.
func (w *AutoWatcher) Read(block bool) ([]Event, error) {
	events, err := w.Watcher.Read(block)
	if err != nil {
		return events, err
	}
	for _, event := range events {
		if !event.IsDir() || event.Mask&autoExtendMask == 0 {
			continue
		}
		if w.filter != nil && !w.filter(event) {
			continue
		}
		_, parentMask, ok := w.LookupWD(event.WD)
		if !ok {
			// Parent watch evicted within this same batch.
			continue
		}
		if _, err := w.Add(event.FullPath, parentMask|inotify.OnlyDir); err != nil {
			if Ignorable(err) {
				w.logger.Debug("new directory vanished before watch", "path", event.FullPath, "error", err)
				continue
			}
			return events, fmt.Errorf("watcher: auto-extend %s: %w", event.FullPath, err)
		}
		w.logger.Debug("auto-extended watch set", "path", event.FullPath)
	}
	return events, nil
}
