// Package watcher implements the per-library filesystem subscription of
// §4.9: recursive add-on-create, then a per-path size-stability debounce so
// concurrent writes to different files don't reset each other's timers.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"github.com/reelwright/hevcsup/internal/classifier"
	"github.com/reelwright/hevcsup/internal/exclusion"
	"github.com/reelwright/hevcsup/internal/store"
)

// QuiesceWindow is how long a file's size must remain stable before an
// add event fires the classifier, per §4.9. Declared as a var (not a
// const) so tests can shrink it rather than wait out the full window.
var QuiesceWindow = 5 * time.Second

// pollInterval is how often a pending path's size is re-checked while
// waiting for it to quiesce.
var pollInterval = 1 * time.Second

// Set manages one Watcher per watch_enabled library.
type Set struct {
	store      *store.DB
	classifier *classifier.Classifier
	extensions map[string]bool
	logger     *log.Logger

	mu       sync.Mutex
	watchers map[int64]*libraryWatcher
}

// NewSet builds an empty watcher Set.
func NewSet(db *store.DB, c *classifier.Classifier, extensions map[string]bool, logger *log.Logger) *Set {
	if logger == nil {
		logger = log.Default()
	}
	return &Set{
		store:      db,
		classifier: c,
		extensions: extensions,
		logger:     logger,
		watchers:   make(map[int64]*libraryWatcher),
	}
}

// Start begins watching library, idempotent if already watching.
func (s *Set) Start(library *store.Library) error {
	s.mu.Lock()
	if _, ok := s.watchers[library.ID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	lw, err := newLibraryWatcher(s.store, s.classifier, s.extensions, s.logger, library)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.watchers[library.ID] = lw
	s.mu.Unlock()

	lw.run()
	return nil
}

// Stop waits for library's subscription to close.
func (s *Set) Stop(libraryID int64) {
	s.mu.Lock()
	lw, ok := s.watchers[libraryID]
	if ok {
		delete(s.watchers, libraryID)
	}
	s.mu.Unlock()
	if ok {
		lw.stop()
	}
}

// Restart stops and restarts the watcher for library, if still enabled.
func (s *Set) Restart(library *store.Library) error {
	s.Stop(library.ID)
	if !library.WatchEnabled {
		return nil
	}
	return s.Start(library)
}

// StopAll tears down every active watcher, used at process shutdown.
func (s *Set) StopAll() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Stop(id)
	}
}

type libraryWatcher struct {
	store      *store.DB
	classifier *classifier.Classifier
	extensions map[string]bool
	logger     *log.Logger
	library    *store.Library
	fsw        *fsnotify.Watcher

	stopCh    chan struct{}
	stoppedCh chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*time.Timer
}

func newLibraryWatcher(db *store.DB, c *classifier.Classifier, extensions map[string]bool, logger *log.Logger, library *store.Library) (*libraryWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	lw := &libraryWatcher{
		store:      db,
		classifier: c,
		extensions: extensions,
		logger:     logger,
		library:    library,
		fsw:        fsw,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
		pending:    make(map[string]*time.Timer),
	}
	if err := lw.addRecursive(library.Path); err != nil {
		fsw.Close()
		return nil, err
	}
	return lw, nil
}

func (lw *libraryWatcher) run() {
	go lw.eventLoop()
}

func (lw *libraryWatcher) stop() {
	close(lw.stopCh)
	lw.fsw.Close()
	<-lw.stoppedCh

	lw.pendingMu.Lock()
	for _, t := range lw.pending {
		t.Stop()
	}
	lw.pending = nil
	lw.pendingMu.Unlock()
}

func (lw *libraryWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			if werr := lw.fsw.Add(path); werr != nil {
				lw.logger.Printf("watcher: cannot watch %s: %v", path, werr)
			}
		}
		return nil
	})
}

func (lw *libraryWatcher) eventLoop() {
	defer close(lw.stoppedCh)
	for {
		select {
		case <-lw.stopCh:
			return
		case event, ok := <-lw.fsw.Events:
			if !ok {
				return
			}
			lw.handleEvent(event)
		case err, ok := <-lw.fsw.Errors:
			if !ok {
				return
			}
			lw.logger.Printf("watcher: library %d: %v", lw.library.ID, err)
		}
	}
}

func (lw *libraryWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = lw.addRecursive(event.Name)
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if !lw.extensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	lw.scheduleQuiesceCheck(event.Name)
}

// scheduleQuiesceCheck (re)arms a per-path poll that fires the classifier
// once path's size has been stable for QuiesceWindow.
func (lw *libraryWatcher) scheduleQuiesceCheck(path string) {
	lw.pendingMu.Lock()
	defer lw.pendingMu.Unlock()

	if lw.pending == nil {
		return // watcher is stopping
	}
	if t, ok := lw.pending[path]; ok {
		t.Stop()
	}

	lastSize := statSize(path)
	var poll func()
	poll = func() {
		lw.pendingMu.Lock()
		if lw.pending == nil {
			lw.pendingMu.Unlock()
			return
		}
		size := statSize(path)
		if size < 0 {
			delete(lw.pending, path)
			lw.pendingMu.Unlock()
			return
		}
		if size == lastSize {
			delete(lw.pending, path)
			lw.pendingMu.Unlock()
			lw.classify(path)
			return
		}
		lastSize = size
		lw.pending[path] = time.AfterFunc(pollInterval, poll)
		lw.pendingMu.Unlock()
	}
	lw.pending[path] = time.AfterFunc(QuiesceWindow, poll)
}

func (lw *libraryWatcher) classify(path string) {
	exclusions, err := lw.store.ListExclusions()
	if err != nil {
		lw.logger.Printf("watcher: library %d: list exclusions: %v", lw.library.ID, err)
		return
	}
	scoped := lo.Filter(exclusions, func(ex *store.Exclusion, _ int) bool {
		return ex.LibraryID == nil || *ex.LibraryID == lw.library.ID
	})
	eval := exclusion.New(scoped)

	minFileSizeMB := int64(500)
	if n, err := strconv.ParseInt(lw.store.GetSettingOrDefault("min_file_size_mb", "500"), 10, 64); err == nil {
		minFileSizeMB = n
	}

	if _, err := lw.classifier.Classify(context.Background(), path, lw.library, eval, minFileSizeMB, false); err != nil {
		lw.logger.Printf("watcher: library %d: classify %s: %v", lw.library.ID, path, err)
	}
}

func statSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}
