//go:build linux

package watcher

import (
	"strings"

	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/inotify"
)

// Event is a raw record decorated with the path that was being watched.
//
// Path is the watched path on which the event fired, Name the directory
// entry it refers to (empty when the event is about the watched path
// itself), and FullPath the complete path at which the event occurred.
// Cookie links the moved_from/moved_to halves of one rename; the watcher
// preserves it but leaves the correlation to the caller.
type Event struct {
	Path     string
	Name     string
	FullPath string
	WD       int
	Mask     uint32
	Cookie   uint32
}

// decorate copies every field of raw into a derived event and computes
// FullPath. Pure; no state is shared with the watcher afterwards.
func decorate(raw inotify.RawEvent, path string) Event {
	event := Event{
		Path:   path,
		Name:   raw.Name,
		WD:     raw.WD,
		Mask:   raw.Mask,
		Cookie: raw.Cookie,
	}
	switch {
	case raw.Name == "":
		event.FullPath = path
	case path == "":
		// wd no longer indexed; the bare name is all that is known.
		event.FullPath = raw.Name
	case strings.HasSuffix(path, "/"):
		event.FullPath = path + raw.Name
	default:
		event.FullPath = path + "/" + raw.Name
	}
	return event
}

// IsDir reports whether the event refers to a directory.
func (e Event) IsDir() bool {
	return e.Mask&inotify.IsDir != 0
}

func (e Event) String() string {
	return e.FullPath + " [" + strings.Join(inotify.DecodeMask(e.Mask), "|") + "]"
}
