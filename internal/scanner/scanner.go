// Package scanner implements the recursive directory walk of §4.8: a
// single global scan slot, with Classifier-driven per-file decisions.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/reelwright/hevcsup/internal/bus"
	"github.com/reelwright/hevcsup/internal/classifier"
	"github.com/reelwright/hevcsup/internal/exclusion"
	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/storeerr"
	"github.com/samber/lo"
)

// DefaultExtensions is the fixed recognized-video-extension set pinned by
// §4.8, overridable via SCAN_EXTENSIONS.
var DefaultExtensions = []string{".mkv", ".mp4", ".avi", ".mov", ".m4v", ".ts", ".wmv"}

// Progress is the per-file progress record published to the bus.
type Progress struct {
	LibraryID   int64
	Total       int
	Processed   int
	Added       int
	Skipped     int
	Errored     int
	CurrentFile string
	LastError   string
}

// Scanner enforces the single-global-scan-slot rule and drives the
// Classifier over a library's (or all libraries') filesystem tree.
type Scanner struct {
	store      *store.DB
	classifier *classifier.Classifier
	bus        *bus.Bus
	extensions map[string]bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds a Scanner. extensions defaults to DefaultExtensions if empty.
func New(db *store.DB, c *classifier.Classifier, b *bus.Bus, extensions []string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = true
	}
	return &Scanner{store: db, classifier: c, bus: b, extensions: set}
}

// ScanAll runs ScanLibrary sequentially over every enabled library.
func (s *Scanner) ScanAll(ctx context.Context) error {
	libs, err := s.store.ListEnabledLibraries()
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if err := s.ScanLibrary(ctx, lib); err != nil {
			return err
		}
	}
	return nil
}

// ScanLibrary walks library.Path, classifying every recognized file.
// Refuses to start if a scan is already in progress system-wide.
func (s *Scanner) ScanLibrary(ctx context.Context, library *store.Library) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return storeerr.Wrap(storeerr.ErrConflict, "a scan is already in progress")
	}
	scanCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	exclusions, err := s.store.ListExclusions()
	if err != nil {
		return err
	}
	scoped := lo.Filter(exclusions, func(ex *store.Exclusion, _ int) bool {
		return ex.LibraryID == nil || *ex.LibraryID == library.ID
	})
	eval := exclusion.New(scoped)

	minFileSizeMB := int64(500)
	if n, perr := strconv.ParseInt(s.store.GetSettingOrDefault("min_file_size_mb", "500"), 10, 64); perr == nil {
		minFileSizeMB = n
	}

	progress := Progress{LibraryID: library.ID}
	lastPublish := time.Now()

	err = filepath.WalkDir(library.Path, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		select {
		case <-scanCtx.Done():
			return filepath.SkipAll
		default:
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != library.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !s.extensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		progress.Total++
		progress.CurrentFile = path

		outcome, cerr := s.classifier.Classify(ctx, path, library, eval, minFileSizeMB, false)
		progress.Processed++
		switch {
		case cerr != nil:
			progress.Errored++
			progress.LastError = cerr.Error()
		case outcome == nil:
			// unreadable/non-regular, not recorded
		case outcome.File.Status == store.FileStatusQueued:
			progress.Added++
		default:
			progress.Skipped++
		}

		if time.Since(lastPublish) >= 200*time.Millisecond || progress.Processed == progress.Total {
			s.publish(bus.EventScanProgress, progress)
			lastPublish = time.Now()
		}
		return nil
	})
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrIO, "scan library %q: %v", library.Path, err)
	}

	s.publish(bus.EventScanComplete, progress)
	return nil
}

// StopScan requests the current scan stop after finishing the file in
// flight. A no-op if no scan is running.
func (s *Scanner) StopScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scanner) publish(evtType bus.EventType, p Progress) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Type: evtType,
		At:   time.Now(),
		Payload: &bus.ScanProgressPayload{
			LibraryID: p.LibraryID,
			Added:     p.Added,
			Skipped:   p.Skipped,
			Errored:   p.Errored,
			Done:      evtType == bus.EventScanComplete,
		},
	})
}
