//go:build !linux

package watch

import "time"

type Watcher struct{}

func New(dir string) (*Watcher, error) {
	return nil, ErrUnsupported
}

func (w *Watcher) Poll(timeout time.Duration) ([]Event, error) {
	return nil, ErrUnsupported
}

func (w *Watcher) Close() error {
	return nil
}
