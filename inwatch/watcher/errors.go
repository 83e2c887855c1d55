//go:build linux

package watcher

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ignoredErrnos are OS errors expected as benign races between the
// filesystem mutating and a watch being installed: the entry vanished, was
// replaced by a non-directory, or cannot be read. The walker and the auto
// watcher suppress these; the basic watcher never does.
var ignoredErrnos = []unix.Errno{
	unix.ENOENT,
	unix.EPERM,
	unix.EACCES,
	unix.ENOTDIR,
}

// Ignorable reports whether err belongs to the fixed set of benign-race
// errors.
func Ignorable(err error) bool {
	for _, errno := range ignoredErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// ErrorPolicy decides whether a recursive walk survives a non-ignorable
// error. Returning nil continues the walk; returning an error (usually the
// one passed in) aborts it.
type ErrorPolicy func(error) error

// Filter approves a freshly appeared directory for automatic watching.
type Filter func(Event) bool
