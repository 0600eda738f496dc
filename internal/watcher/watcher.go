// Package watcher notifies when a settings file changes on disk.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// Watcher calls onChange after its target file is written, created or
// replaced. The parent directory is watched because editors often save by
// renaming a temporary file over the target.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func()
	done     chan struct{}
	target   string
	dir      string
	debounce time.Duration
	mu       sync.Mutex
	started  bool
	closed   bool
}

// New creates a Watcher for targetPath.
func New(targetPath string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target := filepath.Clean(targetPath)
	return &Watcher{
		fsw:      fsw,
		onChange: onChange,
		done:     make(chan struct{}),
		target:   target,
		dir:      filepath.Dir(target),
		debounce: DefaultDebounce,
	}, nil
}

// Start begins watching. It fails when the target's directory does not exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.closed {
		return nil
	}
	if _, err := os.Stat(w.dir); err != nil {
		return err
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}
	w.started = true
	go w.loop()
	return nil
}

// Stop releases the underlying watcher. Calling it more than once is safe.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&changeOps == 0 || filepath.Clean(ev.Name) != w.target {
				continue
			}
			log.Debug().Str("path", w.target).Str("op", ev.Op.String()).Msg("Settings file changed")
			if timer == nil {
				timer = time.AfterFunc(w.debounce, w.fire)
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("dir", w.dir).Msg("Settings watcher error")
		}
	}
}

func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}
	// A rename away leaves nothing to reload.
	if _, err := os.Stat(w.target); err != nil {
		return
	}
	log.Info().Str("path", w.target).Msg("Reloading settings")
	if w.onChange != nil {
		w.onChange()
	}
}
