package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelwright/hevcsup/internal/bus"
	"github.com/reelwright/hevcsup/internal/classifier"
	"github.com/reelwright/hevcsup/internal/probe"
	"github.com/reelwright/hevcsup/internal/store"
)

type mockProbe struct{}

func (mockProbe) Probe(ctx context.Context, path string) (*probe.Metadata, error) {
	return &probe.Metadata{Codec: "h264", Width: 1920, Height: 1080}, nil
}
func (mockProbe) CheckInstalled(ctx context.Context) error { return nil }

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestScanLibrary_DiscoversRecognizedFilesOnly(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(os.WriteFile(filepath.Join(dir, "movie.mkv"), make([]byte, 2_000_000), 0o644))
	must(os.WriteFile(filepath.Join(dir, "readme.txt"), make([]byte, 2_000_000), 0o644))
	must(os.MkdirAll(filepath.Join(dir, ".cache"), 0o755))
	must(os.WriteFile(filepath.Join(dir, ".cache", "hidden.mkv"), make([]byte, 2_000_000), 0o644))

	lib, err := db.CreateLibrary("lib", dir, true, true)
	if err != nil {
		t.Fatalf("create library: %v", err)
	}
	if err := db.SetSetting("min_file_size_mb", "1"); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	c := classifier.New(db, mockProbe{})
	s := New(db, c, bus.New(), nil)

	if err := s.ScanLibrary(context.Background(), lib); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	files, err := db.ListFiles(store.FileQuery{LibraryID: &lib.ID})
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected exactly 1 recognized file discovered, got %d: %+v", len(files), files)
	}
	if files[0].FileName != "movie.mkv" {
		t.Fatalf("expected movie.mkv, got %s", files[0].FileName)
	}
}

func TestScanLibrary_RefusesConcurrentScan(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	lib, err := db.CreateLibrary("lib", dir, true, true)
	if err != nil {
		t.Fatalf("create library: %v", err)
	}

	c := classifier.New(db, mockProbe{})
	s := New(db, c, bus.New(), nil)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	if err := s.ScanLibrary(context.Background(), lib); err == nil {
		t.Fatal("expected conflict error for concurrent scan")
	}
}
