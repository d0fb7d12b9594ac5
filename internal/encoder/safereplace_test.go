package encoder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeReplace_SwapsFileAndCleansScratch(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(original, []byte("old content"), 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}

	scratchDir := t.TempDir()
	scratchInput := filepath.Join(scratchDir, "input.mkv")
	scratchOutput := filepath.Join(scratchDir, "output.mkv")
	if err := os.WriteFile(scratchInput, []byte("scratch in"), 0o644); err != nil {
		t.Fatalf("write scratch input: %v", err)
	}
	if err := os.WriteFile(scratchOutput, []byte("new smaller content"), 0o644); err != nil {
		t.Fatalf("write scratch output: %v", err)
	}

	finalPath, err := SafeReplace(scratchInput, scratchOutput, original, ReplaceIdentity{UID: -1, GID: -1})
	if err != nil {
		t.Fatalf("safe replace failed: %v", err)
	}

	if finalPath != original {
		t.Fatalf("expected final path to match original stem, got %s", finalPath)
	}
	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("read final file: %v", err)
	}
	if string(data) != "new smaller content" {
		t.Fatalf("expected swapped-in content, got %q", data)
	}

	if _, err := os.Stat(scratchInput); !os.IsNotExist(err) {
		t.Fatal("expected scratch input to be deleted")
	}
	if _, err := os.Stat(scratchOutput); !os.IsNotExist(err) {
		t.Fatal("expected scratch output to be deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "movie.temp.mkv")); !os.IsNotExist(err) {
		t.Fatal("expected temp file to be renamed away, not left behind")
	}
}

func TestParseReplaceIdentity_EmptyMeansLeaveUnchanged(t *testing.T) {
	id := ParseReplaceIdentity("", "", "")
	if id.UID != -1 || id.GID != -1 || id.Mode != 0 {
		t.Fatalf("expected leave-unchanged sentinel values, got %+v", id)
	}
}

func TestParseReplaceIdentity_ParsesOctalMode(t *testing.T) {
	id := ParseReplaceIdentity("1000", "1000", "644")
	if id.UID != 1000 || id.GID != 1000 {
		t.Fatalf("expected uid/gid 1000, got %+v", id)
	}
	if id.Mode.Perm().String() != "-rw-r--r--" {
		t.Fatalf("expected mode 0644, got %v", id.Mode)
	}
}
