//go:build linux

package inotify

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Event mask bits, re-exported from the kernel ABI so callers never import
// unix directly.
const (
	Access       = unix.IN_ACCESS
	Modify       = unix.IN_MODIFY
	Attrib       = unix.IN_ATTRIB
	CloseWrite   = unix.IN_CLOSE_WRITE
	CloseNoWrite = unix.IN_CLOSE_NOWRITE
	Open         = unix.IN_OPEN
	MovedFrom    = unix.IN_MOVED_FROM
	MovedTo      = unix.IN_MOVED_TO
	Create       = unix.IN_CREATE
	Delete       = unix.IN_DELETE
	DeleteSelf   = unix.IN_DELETE_SELF
	MoveSelf     = unix.IN_MOVE_SELF
)

// Bits the kernel sets on delivered events regardless of the watch mask.
const (
	Unmount   = unix.IN_UNMOUNT
	QOverflow = unix.IN_Q_OVERFLOW
	Ignored   = unix.IN_IGNORED
	IsDir     = unix.IN_ISDIR
)

// Modifier flags accepted by AddWatch.
const (
	OnlyDir    = unix.IN_ONLYDIR
	DontFollow = unix.IN_DONT_FOLLOW
	MaskAdd    = unix.IN_MASK_ADD
	OneShot    = unix.IN_ONESHOT
)

// Composite masks.
const (
	Move      = unix.IN_MOVE
	CloseAll  = unix.IN_CLOSE
	AllEvents = unix.IN_ALL_EVENTS
)

var maskNames = []struct {
	bit  uint32
	name string
}{
	{Access, "access"},
	{Modify, "modify"},
	{Attrib, "attrib"},
	{CloseWrite, "close_write"},
	{CloseNoWrite, "close_nowrite"},
	{Open, "open"},
	{MovedFrom, "moved_from"},
	{MovedTo, "moved_to"},
	{Create, "create"},
	{Delete, "delete"},
	{DeleteSelf, "delete_self"},
	{MoveSelf, "move_self"},
	{Unmount, "unmount"},
	{QOverflow, "q_overflow"},
	{Ignored, "ignored"},
	{IsDir, "isdir"},
	{OnlyDir, "onlydir"},
	{DontFollow, "dont_follow"},
	{MaskAdd, "mask_add"},
	{OneShot, "oneshot"},
}

// DecodeMask returns the symbolic names of every bit set in mask, in a fixed
// order. It works on watch masks and event masks alike, which makes it handy
// for diagnostics.
func DecodeMask(mask uint32) []string {
	names := make([]string, 0, 4)
	for _, entry := range maskNames {
		if mask&entry.bit == entry.bit {
			names = append(names, entry.name)
		}
	}
	return names
}

// ParseMask is the inverse of DecodeMask: it folds symbolic names back into a
// mask. The composite names "all_events", "move" and "close" are accepted in
// addition to the single-bit names.
func ParseMask(names []string) (uint32, error) {
	var mask uint32
next:
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "all_events":
			mask |= AllEvents
			continue
		case "move":
			mask |= Move
			continue
		case "close":
			mask |= CloseAll
			continue
		}
		for _, entry := range maskNames {
			if entry.name == strings.ToLower(strings.TrimSpace(name)) {
				mask |= entry.bit
				continue next
			}
		}
		return 0, fmt.Errorf("inotify: unknown event name %q", name)
	}
	return mask, nil
}
