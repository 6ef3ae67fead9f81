// Package inbox turns a drop folder into an attachment source. Files copied
// or moved into the folder are batched and handed to the kiosk as candidates,
// the terminal analogue of dragging photos onto the details screen.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kingrea/feedback-desk/internal/media"
)

const (
	defaultDebounce = 300 * time.Millisecond
	tickInterval    = 50 * time.Millisecond
	batchBuffer     = 8
)

// Batch is a group of files that settled in the drop folder together.
type Batch struct {
	Paths      []string
	Candidates []media.Candidate
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must stay quiet before it is delivered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher watches one directory for new files.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	batches  chan Batch

	mu      sync.Mutex
	pending map[string]time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher for dir. Call Start to begin delivering batches.
func New(dir string, opts ...Option) (*Watcher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("inbox: directory is required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("inbox: create watcher: %w", err)
	}
	w := &Watcher{
		dir:      dir,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		watcher:  fw,
		batches:  make(chan Batch, batchBuffer),
		pending:  map[string]time.Time{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Dir returns the watched folder.
func (w *Watcher) Dir() string { return w.dir }

// Batches delivers settled files. It is closed when the watcher stops.
func (w *Watcher) Batches() <-chan Batch { return w.batches }

// Start creates the folder if needed and begins watching. Files already in
// the folder are not delivered.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("inbox: ensure %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	w.logger.Info("inbox watching", zap.String("dir", w.dir))
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and closes Batches.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("inbox close failed", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.batches)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error", zap.Error(err))
		case now := <-ticker.C:
			batch, ok := w.settled(now)
			if !ok {
				continue
			}
			select {
			case w.batches <- batch:
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	if hidden(event.Name) {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// settled collects pending files that have been quiet for the debounce
// window and still exist as regular, non-empty files.
func (w *Watcher) settled(now time.Time) (Batch, bool) {
	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	if len(ready) == 0 {
		return Batch{}, false
	}
	sort.Strings(ready)

	var batch Batch
	for _, path := range ready {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}
		batch.Paths = append(batch.Paths, path)
		batch.Candidates = append(batch.Candidates, media.FileCandidate(path))
	}
	if len(batch.Paths) == 0 {
		return Batch{}, false
	}
	w.logger.Debug("inbox batch ready", zap.Strings("paths", batch.Paths))
	return batch, true
}

// hidden skips dotfiles and partial downloads.
func hidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, ".part") ||
		strings.HasSuffix(base, ".crdownload") ||
		strings.HasSuffix(base, "~")
}
