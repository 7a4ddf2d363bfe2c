// Package pidfile keeps a single daemon per drop directory.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process holds the lock
var ErrLocked = errors.New("pid file is locked by another process")

// PidFile is a held lock plus the pid file it guards
type PidFile struct {
	path string
	lock *os.File
}

// Acquire takes an exclusive non-blocking lock on path+".lock" and writes the
// current pid to path.
func Acquire(path string) (*PidFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pid directory: %w", err)
	}

	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid, readErr := ReadPID(path); readErr == nil {
				return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := atomic.WriteFile(path, strings.NewReader(pid)); err != nil {
		unix.Flock(int(lock.Fd()), unix.LOCK_UN)
		lock.Close()
		return nil, fmt.Errorf("failed to write pid file: %w", err)
	}

	return &PidFile{path: path, lock: lock}, nil
}

// Release removes the pid file and drops the lock
func (p *PidFile) Release() error {
	if p == nil || p.lock == nil {
		return nil
	}

	removeErr := os.Remove(p.path)
	if errors.Is(removeErr, os.ErrNotExist) {
		removeErr = nil
	}

	unix.Flock(int(p.lock.Fd()), unix.LOCK_UN)
	closeErr := p.lock.Close()
	p.lock = nil

	return errors.Join(removeErr, closeErr)
}

// ReadPID returns the pid recorded at path
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}
