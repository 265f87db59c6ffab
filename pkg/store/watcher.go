package store

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/entrhq/journeyforge/pkg/logging"
)

// DefaultReloadDelay batches bursts of file events into one reload.
const DefaultReloadDelay = 200 * time.Millisecond

// Watcher reloads a FileStore when files in its directory change.
type Watcher struct {
	store    *FileStore
	logger   *logging.Logger
	delay    time.Duration
	onReload func()

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithReloadDelay sets the quiet period before a reload.
func WithReloadDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.delay = d }
}

// OnReload registers fn to run after every reload.
func OnReload(fn func()) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for store. Call Start to begin watching.
func NewWatcher(store *FileStore, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:  store,
		logger: store.logger,
		delay:  DefaultReloadDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching in a goroutine. Calling it on a running watcher is
// a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.store.Dir()); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, fw, w.stopCh, w.doneCh)
	w.logger.Debugf("watching %s", w.store.Dir())
	return nil
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fw := w.watcher
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := fw.Close(); err != nil {
		w.logger.Warnf("error closing journey watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(w.delay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !IsDefinitionFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(w.delay)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("journey watcher error: %v", err)
		case <-timer.C:
			if err := w.store.Reload(); err != nil {
				w.logger.Warnf("failed to reload journeys: %v", err)
				continue
			}
			if w.onReload != nil {
				w.onReload()
			}
		}
	}
}
