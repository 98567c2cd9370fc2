package assets

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/logger"
)

// reloadDebounce is how long a file must stay quiet before it is reloaded.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads clips when their files change on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	loader  *Loader
	Events  chan string // Paths of reloaded clips
	Errors  chan error
	due     chan string
	closeCh chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	log     *zap.Logger
}

// NewWatcher watches dirs, or the loader's clip directories when none are
// given.
func NewWatcher(loader *Loader, dirs ...string) (*Watcher, error) {
	if len(dirs) == 0 {
		dirs = loader.Manager().Dirs()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		if err := w.Add(abs); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	watcher := &Watcher{
		watcher: w,
		loader:  loader,
		Events:  make(chan string, 16),
		Errors:  make(chan error, 1),
		due:     make(chan string),
		closeCh: make(chan struct{}),
		log:     logger.Named("watcher"),
	}
	watcher.wg.Add(1)
	go watcher.run()
	return watcher, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		w.wg.Wait()
		close(w.Events)
		close(w.Errors)
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !isClipFile(event.Name) {
				continue
			}
			if t, ok := timers[event.Name]; ok {
				t.Reset(reloadDebounce)
				continue
			}
			timers[event.Name] = w.schedule(event.Name)
		case path := <-w.due:
			delete(timers, path)
			if !w.loader.Reload(path) {
				continue
			}
			w.log.Info("clip reloaded", zap.String("path", path))
			select {
			case w.Events <- path:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("clip watcher error", zap.Error(err))
			select {
			case w.Errors <- err:
			default:
			}
		case <-w.closeCh:
			return
		}
	}
}

// schedule reloads path once it has been quiet for reloadDebounce.
func (w *Watcher) schedule(path string) *time.Timer {
	return time.AfterFunc(reloadDebounce, func() {
		select {
		case w.due <- path:
		case <-w.closeCh:
		}
	})
}

func isClipFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md5anim")
}
