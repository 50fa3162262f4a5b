package project

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher refreshes a Manager's snapshot when files change out of band.
// Events are debounced; a burst of writes causes one rescan.
type Watcher struct {
	m        *Manager
	fs       *fsnotify.Watcher
	debounce time.Duration
	onChange func(revision uint64)

	mu       sync.Mutex
	timer    *time.Timer
	running  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Watch creates a stopped Watcher for m. A non-positive debounce defaults
// to 300ms.
func (m *Manager) Watch(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Watcher{
		m:        m,
		fs:       fsw,
		debounce: debounce,
		done:     make(chan struct{}),
	}, nil
}

// OnChange sets a callback run after a rescan that changed the snapshot.
func (w *Watcher) OnChange(fn func(revision uint64)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start adds the project directories and begins processing events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectories(w.m.root); err != nil {
		return err
	}
	go w.processEvents()
	return nil
}

// Stop ends event processing and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.done) })
	return w.fs.Close()
}

func (w *Watcher) addDirectories(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.m.root && skippedDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.m.log.Debug("watch failed", "dir", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.m.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	// Editor swap files and our own atomic-write temps.
	if base == "" || base[0] == '#' || base[len(base)-1] == '~' ||
		(base[0] == '.' && base != ".gitignore") {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skippedDir(base) {
			_ = w.addDirectories(event.Name)
		}
	}
	w.schedule()
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.refresh)
}

func (w *Watcher) refresh() {
	select {
	case <-w.done:
		return
	default:
	}

	before := w.m.Snapshot().Revision
	if err := w.m.UpdateContext(); err != nil {
		w.m.log.Warn("rescan after change failed", "error", err)
		return
	}
	after := w.m.Snapshot().Revision
	if after == before {
		return
	}
	w.m.log.Info("project changed on disk", "revision", after)

	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(after)
	}
}

func skippedDir(name string) bool {
	return skipDirs[name] || strings.HasPrefix(name, ".")
}
