package project

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pagebuilder/internal/adapter"
	"pagebuilder/internal/debounce"
	"pagebuilder/internal/domain"
)

// DefaultSettle is how long the file must be quiet before it is reimported.
const DefaultSettle = 500 * time.Millisecond

// Importer replaces the whole page set.
type Importer interface {
	Import(ctx context.Context, pages []domain.Page) error
}

// Watcher reimports a project file whenever it is changed on disk by
// something other than this process.
type Watcher struct {
	path    string
	adapter *adapter.Adapter
	target  Importer

	mu       sync.Mutex
	lastSum  [sha256.Size]byte
	reload   *debounce.Debouncer[struct{}]
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
	imported int
}

// NewWatcher prepares a watcher for path. Call Start to begin watching.
func NewWatcher(path string, a *adapter.Adapter, target Importer, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	w := &Watcher{path: path, adapter: a, target: target}
	w.reload = debounce.New(settle, func(struct{}) { w.reimport() })
	return w
}

// Start watches the file's directory. Editors that replace the file by
// rename are picked up as Create events.
func (w *Watcher) Start(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("project watcher: bad path %q: %w", w.path, err)
	}
	w.path = abs

	if data, err := os.ReadFile(abs); err == nil {
		w.remember(data)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("project watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return fmt.Errorf("project watcher: watch %q: %w", filepath.Dir(abs), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.watcher = fw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(watchCtx, fw)
	log.Printf("project watcher: watching %s", abs)
	return nil
}

// Stop ends the watch loop and drops any pending reimport.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, fw, done := w.cancel, w.watcher, w.done
	w.cancel, w.watcher = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	fw.Close()
	<-done
	w.reload.Cancel()
}

// Write exports f to the watched path without triggering a reimport.
func (w *Watcher) Write(f *File) error {
	data, err := marshal(f)
	if err != nil {
		return err
	}
	w.remember(data)
	return Write(w.path, f)
}

// Imported returns how many reimports have completed.
func (w *Watcher) Imported() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.imported
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if abs, _ := filepath.Abs(event.Name); abs != w.path {
				continue
			}
			w.reload.Call(struct{}{})
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Printf("project watcher: %v", err)
		}
	}
}

func (w *Watcher) reimport() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Printf("project watcher: read %s: %v", w.path, err)
		return
	}
	if !w.changed(data) {
		return
	}
	f, err := Decode(data)
	if err != nil {
		log.Printf("project watcher: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pages, err := f.CanonicalPages(ctx, w.adapter)
	if err != nil {
		log.Printf("project watcher: convert %s: %v", w.path, err)
		return
	}
	if err := w.target.Import(ctx, pages); err != nil {
		log.Printf("project watcher: import %s: %v", w.path, err)
		return
	}

	w.mu.Lock()
	w.lastSum = sha256.Sum256(data)
	w.imported++
	w.mu.Unlock()
	log.Printf("project watcher: reimported %d pages from %s", len(pages), w.path)
}

func (w *Watcher) remember(data []byte) {
	w.mu.Lock()
	w.lastSum = sha256.Sum256(data)
	w.mu.Unlock()
}

func (w *Watcher) changed(data []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sha256.Sum256(data) != w.lastSum
}
