//go:build linux

package inotify

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const procfsPath = "/proc/sys/fs/inotify"

func readProcValue(name string) (int, bool) {
	raw, err := os.ReadFile(filepath.Join(procfsPath, name))
	if err != nil {
		return 0, false
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false
	}
	return value, true
}

// MaxQueuedEvents returns the system-wide cap on queued events per session.
// ok is false when inotify is not enabled on this system.
func MaxQueuedEvents() (value int, ok bool) {
	return readProcValue("max_queued_events")
}

// MaxUserInstances returns the per-user cap on sessions.
func MaxUserInstances() (value int, ok bool) {
	return readProcValue("max_user_instances")
}

// MaxUserWatches returns the per-user cap on watches across all sessions.
func MaxUserWatches() (value int, ok bool) {
	return readProcValue("max_user_watches")
}
