package content

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay collapses the burst of events a single editor save produces.
const reloadDelay = 150 * time.Millisecond

// Store serves the current Data and swaps it atomically on reload.
type Store struct {
	dir        string // override directory; empty for embedded only
	log        *zap.Logger
	data       atomic.Pointer[Data]
	watchDelay time.Duration

	mu        sync.Mutex
	listeners []func(*Data)
}

// NewStore loads the embedded content plus the override directory, if any.
func NewStore(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{dir: dir, log: log, watchDelay: reloadDelay}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Data returns the current content. Callers must not modify it.
func (s *Store) Data() *Data {
	return s.data.Load()
}

// Dir returns the override directory
func (s *Store) Dir() string {
	return s.dir
}

// OnReload registers fn to run after every successful reload.
func (s *Store) OnReload(fn func(*Data)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Reload re-reads the content. On error the previous content stays live.
func (s *Store) Reload() error {
	var (
		d   *Data
		err error
	)
	if s.dir == "" {
		d, err = Embedded()
	} else {
		if _, statErr := os.Stat(s.dir); statErr != nil {
			return fmt.Errorf("content dir: %w", statErr)
		}
		d, err = LoadOverlay(os.DirFS(s.dir))
	}
	if err != nil {
		return err
	}

	s.data.Store(d)

	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(d)
	}
	return nil
}

// Watcher reloads a Store when files in its override directory change.
// Changes are debounced so one save triggers one reload.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	log      *zap.Logger
	debounce func(f func())
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// Watch starts watching the store's override directory.
func (s *Store) Watch() (*Watcher, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("content: no override directory to watch")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(s.dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		store:    s,
		watcher:  fsw,
		log:      s.log.Named("watch"),
		debounce: debounce.New(s.watchDelay),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	w.log.Info("watching content", zap.String("dir", s.dir))
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if !slices.Contains(Files, filepath.Base(event.Name)) {
				continue
			}

			w.log.Debug("content changed", zap.String("file", filepath.Base(event.Name)), zap.Stringer("op", event.Op))
			w.debounce(w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	if err := w.store.Reload(); err != nil {
		w.log.Warn("reload failed, keeping previous content", zap.Error(err))
		return
	}
	w.log.Info("content reloaded", zap.String("dir", w.store.dir))
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		<-w.stopped
	})
	return err
}
