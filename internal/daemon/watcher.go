package daemon

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ListWatcher calls onChange once the watched blocklist files have been
// quiet for delay after a write, create, rename or remove.
type ListWatcher struct {
	logger   zerolog.Logger
	delay    time.Duration
	onChange func()

	watcher *fsnotify.Watcher
	files   map[string]struct{}

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

func NewListWatcher(logger zerolog.Logger, files []string, delay time.Duration, onChange func()) (*ListWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &ListWatcher{
		logger:   logger.With().Str("component", "watcher").Logger(),
		delay:    delay,
		onChange: onChange,
		watcher:  watcher,
		files:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	// Watch parent directories so files replaced by rename are still seen.
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, err
		}
		w.logger.Debug().Str("dir", dir).Msg("watching blocklist directory")
	}

	return w, nil
}

func (w *ListWatcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *ListWatcher) Stop() {
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *ListWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, watched := w.files[abs]; !watched {
				continue
			}
			w.logger.Debug().Str("file", abs).Str("op", event.Op.String()).Msg("blocklist changed")
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("blocklist watcher error")
		}
	}
}

func (w *ListWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.logger.Info().Msg("blocklist files changed, reloading")
		w.onChange()
	})
}
