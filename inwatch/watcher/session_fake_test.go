//go:build linux

package watcher

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/inotify"
)

type addCall struct {
	path string
	mask uint32
}

// fakeSession is a scriptable Session for deterministic lifecycle tests. It
// hands out descriptors the way the kernel does: the same path gets the same
// descriptor back, a fresh path gets the next one.
type fakeSession struct {
	nextWD  int
	watches map[string]int
	masks   map[int]uint32
	batches [][]inotify.RawEvent
	queued  int
	closed  bool

	addErrs    map[string]error
	removeErrs map[int]error
	addCalls   []addCall
	removed    []int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		nextWD:     1,
		watches:    make(map[string]int),
		masks:      make(map[int]uint32),
		addErrs:    make(map[string]error),
		removeErrs: make(map[int]error),
	}
}

func (s *fakeSession) AddWatch(path string, mask uint32) (int, error) {
	if s.closed {
		return -1, inotify.ErrClosed
	}
	s.addCalls = append(s.addCalls, addCall{path: path, mask: mask})
	if err := s.addErrs[path]; err != nil {
		return -1, err
	}
	wd, ok := s.watches[path]
	if !ok {
		wd = s.nextWD
		s.nextWD++
		s.watches[path] = wd
	}
	s.masks[wd] = mask
	return wd, nil
}

func (s *fakeSession) RemoveWatch(wd int) error {
	if s.closed {
		return inotify.ErrClosed
	}
	s.removed = append(s.removed, wd)
	if err := s.removeErrs[wd]; err != nil {
		return err
	}
	for path, id := range s.watches {
		if id == wd {
			delete(s.watches, path)
		}
	}
	delete(s.masks, wd)
	return nil
}

func (s *fakeSession) Read(block bool) ([]inotify.RawEvent, error) {
	if s.closed {
		return nil, inotify.ErrClosed
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func (s *fakeSession) Queued() (int, error) {
	if s.closed {
		return 0, inotify.ErrClosed
	}
	return s.queued, nil
}

func (s *fakeSession) Fd() int { return -1 }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) queue(events ...inotify.RawEvent) {
	s.batches = append(s.batches, events)
}

// pathError builds the kind of error the real session surfaces for a failed
// add.
func pathError(path string, errno unix.Errno) error {
	return &os.PathError{Op: "inotify_add_watch", Path: path, Err: errno}
}
