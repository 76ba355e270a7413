package muxconfig

import (
	"github.com/fsnotify/fsnotify"
)

// Watch watches path for writes and invokes onReload with the freshly
// loaded Config each time, following the teacher's watchConfig (archived
// old-sidebar/sidebar/main.go and cmd/sidebar/main.go). A parse error on
// reload is swallowed: the previous configuration stays in effect until a
// subsequent write produces a valid file (spec §6 "Hot-reload replaces the
// configuration atomically at a quiescent point").
//
// The returned stop function closes the underlying watcher; callers should
// defer it.
func Watch(path string, onReload func(*Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					if cfg, err := Load(path); err == nil {
						onReload(cfg)
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
