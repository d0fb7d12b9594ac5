// Package classifier implements the decision chain of §4.4: given a
// discovered path, it decides the file's initial (or reclassified) status
// and persists it through Store.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reelwright/hevcsup/internal/exclusion"
	"github.com/reelwright/hevcsup/internal/probe"
	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/storeerr"
)

// Outcome mirrors the terminal status a classification run produced, for
// callers (Scanner, Watcher) that want to tally counts without re-reading
// the persisted row.
type Outcome struct {
	File    *store.File
	Skipped bool // true for excluded/skipped/errored outcomes, false for queued
}

// Classifier is the decision chain of §4.4.
type Classifier struct {
	store *store.DB
	probe probe.Interface
}

// New builds a Classifier over store and a probe implementation.
func New(db *store.DB, p probe.Interface) *Classifier {
	return &Classifier{store: db, probe: p}
}

// Classify runs the decision chain against path, scoped to library, using
// eval as the exclusion ruleset snapshot for this pass. reactive marks a
// re-invocation from the exclusion-deletion path (§4.3), which bypasses the
// "already known" short-circuit so the size/probe/exclusion checks run
// again.
func (c *Classifier) Classify(ctx context.Context, path string, library *store.Library, eval *exclusion.Evaluator, minFileSizeMB int64, reactive bool) (*Outcome, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || !info.Mode().IsRegular() {
		return nil, nil
	}

	existing, err := c.store.GetFileByPath(path)
	hasExisting := err == nil
	if !hasExisting && !errors.Is(err, storeerr.ErrNotFound) {
		return nil, err
	}

	if hasExisting && !reactive {
		return &Outcome{File: existing, Skipped: existing.Status != store.FileStatusQueued}, nil
	}

	floor := minFileSizeMB * 1024 * 1024
	if info.Size() < floor {
		reason := fmt.Sprintf("File under %dmb minimum", minFileSizeMB)
		f := &store.File{
			LibraryID: library.ID,
			FilePath:  path,
			FileName:  filepath.Base(path),
			Status:    store.FileStatusSkipped,
			SkipReason: &reason,
		}
		return c.persist(f)
	}

	result := eval.Evaluate(path, library.ID)
	if result.Excluded {
		reason := result.Reason
		f := &store.File{
			LibraryID:  library.ID,
			FilePath:   path,
			FileName:   filepath.Base(path),
			Status:     store.FileStatusExcluded,
			SkipReason: &reason,
		}
		return c.persist(f)
	}

	meta, err := c.probe.Probe(ctx, path)
	if err != nil {
		msg := err.Error()
		f := &store.File{
			LibraryID:    library.ID,
			FilePath:     path,
			FileName:     filepath.Base(path),
			Status:       store.FileStatusErrored,
			ErrorMessage: &msg,
		}
		return c.persist(f)
	}

	f := &store.File{
		LibraryID:       library.ID,
		FilePath:        path,
		FileName:        filepath.Base(path),
		OriginalCodec:   strptrOrNil(meta.Codec),
		OriginalBitrate: i64ptrOrNil(meta.Bitrate),
		OriginalSize:    i64ptrOrNil(meta.FileSize),
		OriginalWidth:   intptrOrNil(meta.Width),
		OriginalHeight:  intptrOrNil(meta.Height),
		IsHDR:           meta.IsHDR,
	}

	if meta.IsHEVC {
		reason := "Already HEVC"
		f.Status = store.FileStatusSkipped
		f.SkipReason = &reason
		return c.persist(f)
	}

	f.Status = store.FileStatusQueued
	return c.persist(f)
}

func (c *Classifier) persist(f *store.File) (*Outcome, error) {
	saved, err := c.store.UpsertFile(f)
	if err != nil {
		return nil, err
	}
	if saved.Status == store.FileStatusSkipped {
		_ = c.store.RecordOutcome(time.Now(), store.StatsDelta{FilesSkipped: 1})
	}
	return &Outcome{File: saved, Skipped: saved.Status != store.FileStatusQueued}, nil
}

func strptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func i64ptrOrNil(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func intptrOrNil(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
