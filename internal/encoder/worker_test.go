package encoder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelwright/hevcsup/internal/bus"
	"github.com/reelwright/hevcsup/internal/probe"
	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/transcoder"
)

type mockProbe struct {
	meta *probe.Metadata
}

func (m *mockProbe) Probe(ctx context.Context, path string) (*probe.Metadata, error) {
	return m.meta, nil
}
func (m *mockProbe) CheckInstalled(ctx context.Context) error { return nil }

// mockTranscoder writes outputSize bytes to dest and reports success.
type mockTranscoder struct {
	outputSize int64
	failFirstN int // number of calls (hw-decode attempts) to fail before succeeding
	calls      int
}

func (m *mockTranscoder) CheckInstalled(ctx context.Context) error { return nil }

func (m *mockTranscoder) Run(ctx context.Context, src, dest string, in transcoder.Input, plan transcoder.Plan, hwDecode bool, settings transcoder.Settings, progressCh chan<- transcoder.Progress) error {
	m.calls++
	close(progressCh)
	if m.calls <= m.failFirstN {
		return context.DeadlineExceeded
	}
	return os.WriteFile(dest, make([]byte, m.outputSize), 0o644)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustQueuedFile(t *testing.T, db *store.DB, dir string, origSize int64) *store.File {
	t.Helper()
	lib, err := db.CreateLibrary("lib", dir, true, true)
	if err != nil {
		t.Fatalf("create library: %v", err)
	}
	path := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(path, make([]byte, origSize), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	f, err := db.UpsertFile(&store.File{
		LibraryID:    lib.ID,
		FilePath:     path,
		FileName:     "movie.mkv",
		OriginalSize: &origSize,
		Status:       store.FileStatusQueued,
	})
	if err != nil {
		t.Fatalf("upsert file: %v", err)
	}
	return f
}

func TestProcessOne_SmallerOutputFinishesAndRecordsSavings(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	orig := int64(10_000_000)
	f := mustQueuedFile(t, db, dir, orig)

	mp := &mockProbe{meta: &probe.Metadata{Bitrate: 5_000_000, Width: 1920, Height: 1080, Duration: 60}}
	mt := &mockTranscoder{outputSize: 4_000_000}
	w := New(db, mp, mt, bus.New(), t.TempDir(), store.FileSortBitrateAsc, store.LibraryPriorityRoundRobin)

	w.processOne(context.Background(), f)

	updated, err := db.GetFile(f.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if updated.Status != store.FileStatusFinished {
		t.Fatalf("expected finished, got %s", updated.Status)
	}
	if updated.NewSize == nil || *updated.NewSize != 4_000_000 {
		t.Fatalf("expected new_size=4000000, got %v", updated.NewSize)
	}

	daily, err := db.GetStatsDaily(time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if daily.FilesFinished != 1 || daily.TotalSpaceSaved != orig-4_000_000 {
		t.Fatalf("unexpected stats: %+v", daily)
	}
}

func TestProcessOne_LargerOutputIsRejected(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	orig := int64(1_000_000)
	f := mustQueuedFile(t, db, dir, orig)

	mp := &mockProbe{meta: &probe.Metadata{Bitrate: 5_000_000, Width: 1920, Height: 1080, Duration: 60}}
	mt := &mockTranscoder{outputSize: 2_000_000}
	w := New(db, mp, mt, bus.New(), t.TempDir(), store.FileSortBitrateAsc, store.LibraryPriorityRoundRobin)

	w.processOne(context.Background(), f)

	updated, err := db.GetFile(f.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if updated.Status != store.FileStatusRejected {
		t.Fatalf("expected rejected, got %s", updated.Status)
	}

	// original source file must still exist: rejection never touches it.
	if _, err := os.Stat(f.FilePath); err != nil {
		t.Fatalf("expected original file to survive rejection: %v", err)
	}
}

func TestProcessOne_RetriesWithoutHWDecodeOnFailure(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	f := mustQueuedFile(t, db, dir, 10_000_000)

	mp := &mockProbe{meta: &probe.Metadata{Bitrate: 5_000_000, Width: 1920, Height: 1080, Duration: 60}}
	mt := &mockTranscoder{outputSize: 1_000_000, failFirstN: 1}
	w := New(db, mp, mt, bus.New(), t.TempDir(), store.FileSortBitrateAsc, store.LibraryPriorityRoundRobin)

	w.processOne(context.Background(), f)

	if mt.calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls total), got %d", mt.calls)
	}
	updated, err := db.GetFile(f.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if updated.Status != store.FileStatusFinished {
		t.Fatalf("expected finished after successful retry, got %s", updated.Status)
	}

	logEntries, err := db.ListEncodingLog(f.ID)
	if err != nil {
		t.Fatalf("list encoding log: %v", err)
	}
	var commands, fallbacks int
	for _, e := range logEntries {
		switch e.Event {
		case "ffmpeg_command":
			commands++
		case "fallback_cpu_decode":
			fallbacks++
		}
	}
	if commands != 2 {
		t.Fatalf("expected 2 ffmpeg_command log entries, got %d", commands)
	}
	if fallbacks != 1 {
		t.Fatalf("expected 1 fallback_cpu_decode log entry, got %d", fallbacks)
	}
}
