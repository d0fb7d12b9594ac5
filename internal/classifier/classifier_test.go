package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelwright/hevcsup/internal/exclusion"
	"github.com/reelwright/hevcsup/internal/probe"
	"github.com/reelwright/hevcsup/internal/store"
)

type mockProbe struct {
	meta *probe.Metadata
	err  error
}

func (m *mockProbe) Probe(ctx context.Context, path string) (*probe.Metadata, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.meta, nil
}

func (m *mockProbe) CheckInstalled(ctx context.Context) error { return nil }

func testDB(t *testing.T) *store.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func mustLibrary(t *testing.T, db *store.DB, path string) *store.Library {
	t.Helper()
	lib, err := db.CreateLibrary("lib", path, true, true)
	if err != nil {
		t.Fatalf("create library: %v", err)
	}
	return lib
}

func TestClassify_BelowSizeFloorIsSkipped(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	lib := mustLibrary(t, db, dir)
	path := writeFile(t, dir, "small.mkv", 100)

	c := New(db, &mockProbe{})
	eval := exclusion.New(nil)

	outcome, err := c.Classify(context.Background(), path, lib, eval, 500, false)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if outcome.File.Status != store.FileStatusSkipped {
		t.Fatalf("expected skipped, got %s", outcome.File.Status)
	}
}

func TestClassify_ExcludedByRule(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	lib := mustLibrary(t, db, dir)
	path := writeFile(t, dir, "big.mkv", 2_000_000)

	c := New(db, &mockProbe{})
	eval := exclusion.New([]*store.Exclusion{
		{ID: 1, Type: store.ExclusionTypeFolder, Pattern: dir},
	})

	outcome, err := c.Classify(context.Background(), path, lib, eval, 1, false)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if outcome.File.Status != store.FileStatusExcluded {
		t.Fatalf("expected excluded, got %s", outcome.File.Status)
	}
}

func TestClassify_ProbeFailureErrors(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	lib := mustLibrary(t, db, dir)
	path := writeFile(t, dir, "big.mkv", 2_000_000)

	c := New(db, &mockProbe{err: errors.New("boom")})
	eval := exclusion.New(nil)

	outcome, err := c.Classify(context.Background(), path, lib, eval, 1, false)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if outcome.File.Status != store.FileStatusErrored {
		t.Fatalf("expected errored, got %s", outcome.File.Status)
	}
}

func TestClassify_AlreadyHEVCIsSkipped(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	lib := mustLibrary(t, db, dir)
	path := writeFile(t, dir, "big.mkv", 2_000_000)

	c := New(db, &mockProbe{meta: &probe.Metadata{Codec: "hevc", IsHEVC: true, Width: 1920, Height: 1080}})
	eval := exclusion.New(nil)

	outcome, err := c.Classify(context.Background(), path, lib, eval, 1, false)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if outcome.File.Status != store.FileStatusSkipped {
		t.Fatalf("expected skipped, got %s", outcome.File.Status)
	}
	if outcome.File.SkipReason == nil || *outcome.File.SkipReason != "Already HEVC" {
		t.Fatalf("expected 'Already HEVC' reason, got %v", outcome.File.SkipReason)
	}
}

func TestClassify_QueuesEligibleFile(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	lib := mustLibrary(t, db, dir)
	path := writeFile(t, dir, "big.mkv", 2_000_000)

	c := New(db, &mockProbe{meta: &probe.Metadata{Codec: "h264", Width: 1920, Height: 1080}})
	eval := exclusion.New(nil)

	outcome, err := c.Classify(context.Background(), path, lib, eval, 1, false)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if outcome.File.Status != store.FileStatusQueued {
		t.Fatalf("expected queued, got %s", outcome.File.Status)
	}
	if outcome.Skipped {
		t.Fatalf("expected Skipped=false for queued outcome")
	}
}

func TestClassify_AlreadyKnownIsNoOpUnlessReactive(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	lib := mustLibrary(t, db, dir)
	path := writeFile(t, dir, "big.mkv", 2_000_000)

	c := New(db, &mockProbe{meta: &probe.Metadata{Codec: "h264", Width: 1920, Height: 1080}})
	eval := exclusion.New(nil)

	first, err := c.Classify(context.Background(), path, lib, eval, 1, false)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if err := db.SkipFile(first.File.ID, "manual"); err != nil {
		t.Fatalf("skip file: %v", err)
	}

	again, err := c.Classify(context.Background(), path, lib, eval, 1, false)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if again.File.Status != store.FileStatusSkipped {
		t.Fatalf("expected no-op to preserve skipped status, got %s", again.File.Status)
	}

	reactive, err := c.Classify(context.Background(), path, lib, eval, 1, true)
	if err != nil {
		t.Fatalf("reactive classify failed: %v", err)
	}
	if reactive.File.Status != store.FileStatusQueued {
		t.Fatalf("expected reactive run to re-classify to queued, got %s", reactive.File.Status)
	}
}

func TestClassify_MissingFileIsNotRecorded(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	lib := mustLibrary(t, db, dir)

	c := New(db, &mockProbe{})
	eval := exclusion.New(nil)

	outcome, err := c.Classify(context.Background(), filepath.Join(dir, "missing.mkv"), lib, eval, 1, false)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if outcome != nil {
		t.Fatalf("expected nil outcome for missing file, got %+v", outcome)
	}
}
