package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelwright/hevcsup/internal/bus"
	"github.com/reelwright/hevcsup/internal/classifier"
	"github.com/reelwright/hevcsup/internal/probe"
	"github.com/reelwright/hevcsup/internal/scanner"
	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/watcher"
)

type mockProbe struct{ meta *probe.Metadata }

func (m *mockProbe) Probe(ctx context.Context, path string) (*probe.Metadata, error) {
	return m.meta, nil
}
func (m *mockProbe) CheckInstalled(ctx context.Context) error { return nil }

func testAPI(t *testing.T) (*API, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mp := &mockProbe{meta: &probe.Metadata{Codec: "h264", Width: 1920, Height: 1080, Bitrate: 5_000_000}}
	cls := classifier.New(db, mp)
	scan := scanner.New(db, cls, bus.New(), scanner.DefaultExtensions)
	watchers := watcher.NewSet(db, cls, map[string]bool{".mkv": true}, nil)

	a := New(db, mp, scan, watchers, nil, bus.New(), cls, "", "")
	return a, db
}

func TestDeleteExclusion_RequeuesNoLongerMatchingFile(t *testing.T) {
	a, db := testAPI(t)
	if err := db.SetSetting("min_file_size_mb", "0"); err != nil {
		t.Fatalf("set min_file_size_mb: %v", err)
	}
	libDir := t.TempDir()
	lib, err := db.CreateLibrary("lib", libDir, true, false)
	if err != nil {
		t.Fatalf("create library: %v", err)
	}
	path := filepath.Join(libDir, "sample.mkv")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write sample file: %v", err)
	}

	reason := "keep out"
	rule, err := a.CreateExclusion(&lib.ID, path, store.ExclusionTypePattern, &reason)
	if err != nil {
		t.Fatalf("create exclusion: %v", err)
	}

	f := &store.File{
		LibraryID:  lib.ID,
		FilePath:   path,
		FileName:   "sample.mkv",
		Status:     store.FileStatusExcluded,
		SkipReason: &reason,
	}
	saved, err := db.UpsertFile(f)
	if err != nil {
		t.Fatalf("upsert file: %v", err)
	}

	if err := a.DeleteExclusion(rule.ID); err != nil {
		t.Fatalf("delete exclusion: %v", err)
	}

	got, err := db.GetFile(saved.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got.Status != store.FileStatusQueued {
		t.Fatalf("expected file requeued, got status %q", got.Status)
	}
}

func TestDeleteExclusion_LeavesFileExcludedWhenAnotherRuleStillMatches(t *testing.T) {
	a, db := testAPI(t)
	if err := db.SetSetting("min_file_size_mb", "0"); err != nil {
		t.Fatalf("set min_file_size_mb: %v", err)
	}
	libDir := t.TempDir()
	lib, err := db.CreateLibrary("lib", libDir, true, false)
	if err != nil {
		t.Fatalf("create library: %v", err)
	}
	path := filepath.Join(libDir, "sample.mkv")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write sample file: %v", err)
	}

	specific := "specific rule"
	specificRule, err := a.CreateExclusion(&lib.ID, path, store.ExclusionTypePattern, &specific)
	if err != nil {
		t.Fatalf("create specific exclusion: %v", err)
	}
	global := "global rule"
	if _, err := a.CreateExclusion(nil, filepath.Join(libDir, "*.mkv"), store.ExclusionTypePattern, &global); err != nil {
		t.Fatalf("create global exclusion: %v", err)
	}

	f := &store.File{
		LibraryID:  lib.ID,
		FilePath:   path,
		FileName:   "sample.mkv",
		Status:     store.FileStatusExcluded,
		SkipReason: &specific,
	}
	saved, err := db.UpsertFile(f)
	if err != nil {
		t.Fatalf("upsert file: %v", err)
	}

	if err := a.DeleteExclusion(specificRule.ID); err != nil {
		t.Fatalf("delete exclusion: %v", err)
	}

	got, err := db.GetFile(saved.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got.Status != store.FileStatusExcluded {
		t.Fatalf("expected file to remain excluded under the global rule, got status %q", got.Status)
	}
}

func TestCreateExclusion_PropagatesRuleReason(t *testing.T) {
	a, db := testAPI(t)
	libDir := t.TempDir()
	lib, err := db.CreateLibrary("lib", libDir, true, false)
	if err != nil {
		t.Fatalf("create library: %v", err)
	}

	f := &store.File{
		LibraryID: lib.ID,
		FilePath:  "/media/sample.mkv",
		FileName:  "sample.mkv",
		Status:    store.FileStatusQueued,
	}
	saved, err := db.UpsertFile(f)
	if err != nil {
		t.Fatalf("upsert file: %v", err)
	}

	reason := "seasonal junk"
	if _, err := a.CreateExclusion(&lib.ID, "/media/sample.mkv", store.ExclusionTypePattern, &reason); err != nil {
		t.Fatalf("create exclusion: %v", err)
	}

	got, err := db.GetFile(saved.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got.Status != store.FileStatusExcluded {
		t.Fatalf("expected file excluded, got status %q", got.Status)
	}
	if got.SkipReason == nil || *got.SkipReason != reason {
		t.Fatalf("expected skip reason %q, got %v", reason, got.SkipReason)
	}
}
