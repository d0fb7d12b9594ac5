package store

import (
	"errors"
	"testing"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

func TestLibrary_CreateGetDelete(t *testing.T) {
	db := testDB(t)

	lib := mustLibrary(t, db, "Movies", "/media/movies")

	got, err := db.GetLibrary(lib.ID)
	if err != nil {
		t.Fatalf("GetLibrary failed: %v", err)
	}
	if got.Path != "/media/movies" {
		t.Errorf("Path mismatch: got %q", got.Path)
	}

	if err := db.DeleteLibrary(lib.ID); err != nil {
		t.Fatalf("DeleteLibrary failed: %v", err)
	}

	if _, err := db.GetLibrary(lib.ID); !errors.Is(err, storeerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLibrary_DuplicatePathIsConflict(t *testing.T) {
	db := testDB(t)
	mustLibrary(t, db, "Movies", "/media/movies")

	_, err := db.CreateLibrary("Movies Again", "/media/movies", true, false)
	if !errors.Is(err, storeerr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLibrary_DisablingDropsQueuedFilesButKeepsHistory(t *testing.T) {
	db := testDB(t)
	lib := mustLibrary(t, db, "Movies", "/media/movies")

	queued, err := db.UpsertFile(&File{
		LibraryID: lib.ID,
		FilePath:  "/media/movies/a.mkv",
		FileName:  "a.mkv",
		Status:    FileStatusQueued,
	})
	if err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}

	finished, err := db.UpsertFile(&File{
		LibraryID: lib.ID,
		FilePath:  "/media/movies/b.mkv",
		FileName:  "b.mkv",
		Status:    FileStatusFinished,
	})
	if err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}

	lib.Enabled = false
	if err := db.UpdateLibrary(lib); err != nil {
		t.Fatalf("UpdateLibrary failed: %v", err)
	}

	if _, err := db.GetFile(queued.ID); !errors.Is(err, storeerr.ErrNotFound) {
		t.Fatalf("expected queued file to be dropped, got %v", err)
	}
	if _, err := db.GetFile(finished.ID); err != nil {
		t.Fatalf("expected finished file to survive, got %v", err)
	}
}

func TestLibrary_ListEnabledOnly(t *testing.T) {
	db := testDB(t)
	a := mustLibrary(t, db, "A", "/media/a")
	b, err := db.CreateLibrary("B", "/media/b", false, false)
	if err != nil {
		t.Fatalf("CreateLibrary failed: %v", err)
	}

	libs, err := db.ListEnabledLibraries()
	if err != nil {
		t.Fatalf("ListEnabledLibraries failed: %v", err)
	}
	if len(libs) != 1 || libs[0].ID != a.ID {
		t.Fatalf("expected only library %d, got %+v", a.ID, libs)
	}
	_ = b
}
