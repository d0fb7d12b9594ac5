package store

import "testing"

func TestExclusion_ListOrderIsLibraryNullsFirstThenPattern(t *testing.T) {
	db := testDB(t)
	lib := mustLibrary(t, db, "Movies", "/media/movies")

	db.CreateExclusion(&lib.ID, "/media/movies/zeta", ExclusionTypeFolder, nil)
	db.CreateExclusion(nil, "/media/global-b", ExclusionTypeFolder, nil)
	db.CreateExclusion(nil, "/media/global-a", ExclusionTypeFolder, nil)

	exs, err := db.ListExclusions()
	if err != nil {
		t.Fatalf("ListExclusions failed: %v", err)
	}
	if len(exs) != 3 {
		t.Fatalf("expected 3 exclusions, got %d", len(exs))
	}
	if exs[0].LibraryID != nil || exs[0].Pattern != "/media/global-a" {
		t.Fatalf("expected global-a first, got %+v", exs[0])
	}
	if exs[1].LibraryID != nil || exs[1].Pattern != "/media/global-b" {
		t.Fatalf("expected global-b second, got %+v", exs[1])
	}
	if exs[2].LibraryID == nil {
		t.Fatalf("expected scoped exclusion last, got %+v", exs[2])
	}
}

func TestExclusion_BulkExcludeAndUnexcludeOnlyTouchMatchingStatus(t *testing.T) {
	db := testDB(t)
	lib := mustLibrary(t, db, "Movies", "/media/movies")

	queued, _ := db.UpsertFile(&File{LibraryID: lib.ID, FilePath: "/media/movies/a.mkv", FileName: "a.mkv", Status: FileStatusQueued})
	encoding, _ := db.UpsertFile(&File{LibraryID: lib.ID, FilePath: "/media/movies/b.mkv", FileName: "b.mkv", Status: FileStatusQueued})
	db.StartEncoding(encoding.ID)

	if err := db.ExcludeFiles([]int64{queued.ID, encoding.ID}, "Excluded by rule"); err != nil {
		t.Fatalf("ExcludeFiles failed: %v", err)
	}

	gotQueued, _ := db.GetFile(queued.ID)
	if gotQueued.Status != FileStatusExcluded {
		t.Fatalf("expected queued file to become excluded, got %q", gotQueued.Status)
	}
	gotEncoding, _ := db.GetFile(encoding.ID)
	if gotEncoding.Status != FileStatusEncoding {
		t.Fatalf("encoding-state row must be unaffected by exclusion, got %q", gotEncoding.Status)
	}

	if err := db.UnexcludeFiles([]int64{queued.ID}); err != nil {
		t.Fatalf("UnexcludeFiles failed: %v", err)
	}
	gotQueued, _ = db.GetFile(queued.ID)
	if gotQueued.Status != FileStatusQueued || gotQueued.SkipReason != nil {
		t.Fatalf("expected file back in queued with no skip reason, got %+v", gotQueued)
	}
}
