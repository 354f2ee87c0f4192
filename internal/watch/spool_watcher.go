// Package watch wires an fsnotify watcher on the spool directory to give
// the replay worker an early wake-up signal on top of its regular ticker.
// It never substitutes for the ticker: a missed or coalesced event only
// delays the next tick, it never skips one.
package watch

import (
	"github.com/fsnotify/fsnotify"
)

// SpoolWatcher notifies on every write-like event observed under a
// watched directory.
type SpoolWatcher struct {
	watcher *fsnotify.Watcher
	Events  <-chan struct{}
}

// New starts watching dir, emitting on Events whenever a file under it is
// written or created. Call Close to release the underlying watcher.
func New(dir string) (*SpoolWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(out)
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &SpoolWatcher{watcher: w, Events: out}, nil
}

// Close stops the watcher.
func (s *SpoolWatcher) Close() error {
	return s.watcher.Close()
}
