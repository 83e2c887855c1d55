//go:build linux

package watcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/inotify"
)

func TestAutoWatcher_ExtendsOnDirectoryCreate(t *testing.T) {
	session := newFakeSession()
	w := NewAutoWithSession(session, nil)

	rootMask := uint32(inotify.Create | inotify.Delete | inotify.Modify)
	rootWD, err := w.Add("/srv/root", rootMask)
	require.NoError(t, err)

	session.queue(inotify.RawEvent{WD: rootWD, Mask: inotify.Create | inotify.IsDir, Name: "new"})
	events, err := w.Read(false)
	require.NoError(t, err)
	require.Len(t, events, 1)

	wd, mask, ok := w.LookupPath("/srv/root/new")
	require.True(t, ok, "created directory must be watched")
	assert.NotEqual(t, rootWD, wd)
	assert.Equal(t, rootMask|inotify.OnlyDir, mask, "child inherits parent mask plus onlydir")
}

func TestAutoWatcher_ExtendsOnDirectoryMovedIn(t *testing.T) {
	session := newFakeSession()
	w := NewAutoWithSession(session, nil)

	rootWD, err := w.Add("/srv/root", inotify.AllEvents)
	require.NoError(t, err)

	session.queue(inotify.RawEvent{WD: rootWD, Mask: inotify.MovedTo | inotify.IsDir, Cookie: 11, Name: "imported"})
	_, err = w.Read(false)
	require.NoError(t, err)

	_, _, ok := w.LookupPath("/srv/root/imported")
	assert.True(t, ok, "directory renamed into the tree must be watched")
}

func TestAutoWatcher_IgnoresPlainFileCreate(t *testing.T) {
	session := newFakeSession()
	w := NewAutoWithSession(session, nil)

	rootWD, err := w.Add("/srv/root", inotify.AllEvents)
	require.NoError(t, err)

	session.queue(inotify.RawEvent{WD: rootWD, Mask: inotify.Create, Name: "file.txt"})
	_, err = w.Read(false)
	require.NoError(t, err)

	assert.Equal(t, 1, w.Count())
}

func TestAutoWatcher_FilterRejectsDirectory(t *testing.T) {
	session := newFakeSession()
	w := NewAutoWithSession(session, func(event Event) bool {
		return !strings.HasPrefix(event.Name, ".")
	})

	rootWD, err := w.Add("/srv/root", inotify.AllEvents)
	require.NoError(t, err)

	session.queue(
		inotify.RawEvent{WD: rootWD, Mask: inotify.Create | inotify.IsDir, Name: ".git"},
		inotify.RawEvent{WD: rootWD, Mask: inotify.Create | inotify.IsDir, Name: "src"},
	)
	events, err := w.Read(false)
	require.NoError(t, err)
	require.Len(t, events, 2)

	_, _, ok := w.LookupPath("/srv/root/.git")
	assert.False(t, ok)
	_, _, ok = w.LookupPath("/srv/root/src")
	assert.True(t, ok)
}

func TestAutoWatcher_SuppressesIgnorableExtensionFailure(t *testing.T) {
	session := newFakeSession()
	w := NewAutoWithSession(session, nil)

	rootWD, err := w.Add("/srv/root", inotify.AllEvents)
	require.NoError(t, err)

	// The directory vanished between creation and watch installation.
	session.addErrs["/srv/root/gone"] = pathError("/srv/root/gone", unix.ENOENT)
	session.queue(inotify.RawEvent{WD: rootWD, Mask: inotify.Create | inotify.IsDir, Name: "gone"})

	events, err := w.Read(false)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, w.Count())
}

func TestAutoWatcher_ReturnsEventsAlongsideFatalExtensionFailure(t *testing.T) {
	session := newFakeSession()
	w := NewAutoWithSession(session, nil)

	rootWD, err := w.Add("/srv/root", inotify.AllEvents)
	require.NoError(t, err)

	session.addErrs["/srv/root/new"] = pathError("/srv/root/new", unix.ENOSPC)
	session.queue(
		inotify.RawEvent{WD: rootWD, Mask: inotify.Create, Name: "before.txt"},
		inotify.RawEvent{WD: rootWD, Mask: inotify.Create | inotify.IsDir, Name: "new"},
	)

	events, err := w.Read(false)
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENOSPC)
	require.Len(t, events, 2, "decoded events must survive the failed extension")
	assert.Equal(t, "/srv/root/before.txt", events[0].FullPath)
}
