//go:build linux

package watch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const readBufferSize = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)

// Watcher delivers IN_CLOSE_WRITE events for one directory
type Watcher struct {
	dir string
	fd  int
	wd  int
	buf []byte
}

// New starts watching dir
func New(dir string) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	wd, err := unix.InotifyAddWatch(fd, dir, unix.IN_CLOSE_WRITE)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir: dir,
		fd:  fd,
		wd:  wd,
		buf: make([]byte, readBufferSize),
	}, nil
}

// Poll waits up to timeout for events and returns whatever is queued.
// No events and a nil error means the wait timed out.
func (w *Watcher) Poll(timeout time.Duration) ([]Event, error) {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}

	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if errors.Is(err, unix.EINTR) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to poll inotify: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	var events []Event
	for {
		read, err := unix.Read(w.fd, w.buf)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("failed to read inotify events: %w", err)
		}
		if read <= 0 {
			return events, nil
		}
		events = append(events, decode(w.buf[:read])...)
	}
}

// decode splits a read buffer into events, skipping anything not for a named file
func decode(buf []byte) []Event {
	var events []Event
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		mask := binary.NativeEndian.Uint32(buf[offset+4:])
		nameLen := int(binary.NativeEndian.Uint32(buf[offset+12:]))

		start := offset + unix.SizeofInotifyEvent
		end := start + nameLen
		if end > len(buf) {
			break
		}

		name := string(bytes.TrimRight(buf[start:end], "\x00"))
		if name != "" && mask&unix.IN_Q_OVERFLOW == 0 {
			events = append(events, Event{Name: name, Mask: mask})
		}
		offset = end
	}
	return events
}

// Close stops watching and releases the inotify descriptor
func (w *Watcher) Close() error {
	unix.InotifyRmWatch(w.fd, uint32(w.wd))
	return unix.Close(w.fd)
}
