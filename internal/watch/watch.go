// Package watch reports files closed after writing in a directory.
package watch

import "errors"

// ErrUnsupported is returned on platforms without inotify
var ErrUnsupported = errors.New("directory watching is not supported on this platform")

// Event is a single close-write notification
type Event struct {
	Name string
	Mask uint32
}

// CloseWrite is the inotify mask bit for a file closed after writing
const CloseWrite uint32 = 0x8
