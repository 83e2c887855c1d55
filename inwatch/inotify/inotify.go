//go:build linux

// Package inotify is the raw watch primitive: a thin session over the Linux
// inotify syscalls. It adds and removes per-inode watches and reads batches
// of raw event records in kernel order. The lifecycle bookkeeping that keeps
// paths and watch descriptors consistent lives a layer up, in the watcher
// package.
package inotify

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	// ErrClosed is returned by every operation on a closed session.
	ErrClosed = errors.New("inotify: session closed")

	// ErrInterrupted is returned when a blocking read is cut short by a
	// signal. Callers treating a signal as shutdown should exit their read
	// loop on it rather than retry.
	ErrInterrupted = errors.New("inotify: read interrupted")
)

// RawEvent is one record from the kernel event queue.
type RawEvent struct {
	WD     int
	Mask   uint32
	Cookie uint32
	Name   string
}

// Session owns one inotify file descriptor plus the epoll instance and
// wakeup pipe that make blocking reads cancellable. All methods fail with
// ErrClosed once the session is closed.
//
// A session is not safe for concurrent use, with one exception: Close may be
// called while another goroutine is blocked in Read. The wakeup pipe fails
// that read with ErrClosed.
type Session struct {
	fd     int
	epfd   int
	wakeR  int
	wakeW  int
	buf    []byte
	closed bool
}

// Init creates a new session. The inotify descriptor is nonblocking;
// blocking reads wait in epoll so that Close can wake them through the
// pipe. Creation fails when the per-user instance limit is exhausted
// (EMFILE) or kernel memory is unavailable (ENOMEM); see MaxUserInstances.
func Init() (*Session, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify: cannot create session: %w", err)
	}

	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify: cannot create wakeup pipe: %w", err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		unix.Close(pipeFds[0])
		unix.Close(pipeFds[1])
		return nil, fmt.Errorf("inotify: cannot create epoll instance: %w", err)
	}
	for _, watched := range []int{fd, pipeFds[0]} {
		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(watched)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, watched, &event); err != nil {
			unix.Close(fd)
			unix.Close(pipeFds[0])
			unix.Close(pipeFds[1])
			unix.Close(epfd)
			return nil, fmt.Errorf("inotify: cannot register with epoll: %w", err)
		}
	}

	slog.Debug("inotify session created", "fd", fd)
	return &Session{
		fd:    fd,
		epfd:  epfd,
		wakeR: pipeFds[0],
		wakeW: pipeFds[1],
		buf:   make([]byte, 4096*unix.SizeofInotifyEvent),
	}, nil
}

// AddWatch installs or modifies the watch on path and returns its watch
// descriptor. Adding a path that is already watched replaces its mask unless
// mask carries MaskAdd. Failures are *os.PathError values carrying the errno.
func (s *Session) AddWatch(path string, mask uint32) (int, error) {
	if s.closed {
		return -1, ErrClosed
	}
	wd, err := unix.InotifyAddWatch(s.fd, path, mask)
	if err != nil {
		return -1, &os.PathError{Op: "inotify_add_watch", Path: path, Err: err}
	}
	return wd, nil
}

// RemoveWatch removes the watch for wd. The kernel queues an Ignored event
// for the watch before it disappears.
func (s *Session) RemoveWatch(wd int) error {
	if s.closed {
		return ErrClosed
	}
	if _, err := unix.InotifyRmWatch(s.fd, uint32(wd)); err != nil {
		return fmt.Errorf("inotify: cannot remove watch %d: %w", wd, err)
	}
	return nil
}

// Read reads one batch of queued events, preserving kernel order. With block
// set it waits in epoll until at least one event is available or the session
// is closed, in which case it returns ErrClosed. Without it, an empty batch
// is returned when nothing is pending.
func (s *Session) Read(block bool) ([]RawEvent, error) {
	if s.closed {
		return nil, ErrClosed
	}
	for {
		n, err := unix.Read(s.fd, s.buf)
		if err == nil {
			return parseEvents(s.buf[:n]), nil
		}
		switch err {
		case unix.EAGAIN:
			if !block {
				return nil, nil
			}
			if err := s.wait(); err != nil {
				return nil, err
			}
		case unix.EINTR:
			return nil, ErrInterrupted
		case unix.EBADF:
			return nil, ErrClosed
		default:
			return nil, fmt.Errorf("inotify: read: %w", err)
		}
	}
}

// wait blocks until the inotify descriptor is readable or Close wakes the
// session through the pipe.
func (s *Session) wait() error {
	events := make([]unix.EpollEvent, 2)
	for {
		n, err := unix.EpollWait(s.epfd, events, -1)
		if err != nil {
			switch err {
			case unix.EINTR:
				return ErrInterrupted
			case unix.EBADF:
				return ErrClosed
			}
			return fmt.Errorf("inotify: epoll wait: %w", err)
		}
		for i := range n {
			switch int(events[i].Fd) {
			case s.wakeR:
				return ErrClosed
			case s.fd:
				return nil
			}
		}
	}
}

// parseEvents decodes a raw inotify buffer into records. Each record is a
// fixed unix.InotifyEvent header followed by Len bytes of NUL-padded name.
func parseEvents(buf []byte) []RawEvent {
	events := make([]RawEvent, 0, len(buf)/(unix.SizeofInotifyEvent+unix.NAME_MAX/8))
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		event := RawEvent{
			WD:     int(raw.Wd),
			Mask:   raw.Mask,
			Cookie: raw.Cookie,
		}
		if nameLen > 0 && offset+unix.SizeofInotifyEvent+nameLen <= len(buf) {
			name := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			event.Name = strings.TrimRight(string(name), "\x00")
		}
		events = append(events, event)
		offset += unix.SizeofInotifyEvent + nameLen
	}
	return events
}

// Queued returns the number of bytes waiting in the kernel queue without
// consuming them. TIOCINQ is Linux's spelling of the FIONREAD ioctl.
func (s *Session) Queued() (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	n, err := unix.IoctlGetInt(s.fd, unix.TIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("inotify: TIOCINQ: %w", err)
	}
	return n, nil
}

// Fd returns the session's file descriptor for use with select, poll or
// epoll. It is -1 once the session is closed.
func (s *Session) Fd() int {
	return s.fd
}

// Close releases the descriptors. A reader blocked in Read is woken through
// the pipe and returns ErrClosed. Close is idempotent: the descriptors are
// closed exactly once regardless of how many times it is called.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	// The wakeup byte must land before the descriptors go away; a blocked
	// reader is runnable by the time the write returns.
	if _, err := unix.Write(s.wakeW, []byte{0}); err != nil {
		slog.Debug("inotify wakeup write failed", "error", err)
	}

	fd := s.fd
	s.fd = -1
	var firstErr error
	for _, toClose := range []int{fd, s.epfd, s.wakeR, s.wakeW} {
		if err := unix.Close(toClose); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.epfd, s.wakeR, s.wakeW = -1, -1, -1
	if firstErr != nil {
		return fmt.Errorf("inotify: close: %w", firstErr)
	}
	slog.Debug("inotify session closed", "fd", fd)
	return nil
}
