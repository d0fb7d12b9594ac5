// Package encoder implements the single-slot encoder worker of §4.5: the
// dequeue/plan/transcode/validate/swap/account pipeline. Grounded on the
// teacher's atomic-copy-then-rename shape in services/scanner.go and the
// Fauli-music-janitor executor's copy-to-temp/atomic-rename/cleanup
// pattern, generalized to an in-place replace rather than a library move.
package encoder

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// ReplaceIdentity is the target ownership/permission the safe-replace step
// applies to the swapped-in file. Empty fields mean "leave unchanged",
// matching §4.5's default.
type ReplaceIdentity struct {
	UID  int // -1 = leave unchanged
	GID  int // -1 = leave unchanged
	Mode os.FileMode // 0 = leave unchanged
}

// ParseReplaceIdentity builds a ReplaceIdentity from the raw setting
// strings (empty string meaning "leave unchanged" per §4.5).
func ParseReplaceIdentity(uidStr, gidStr, modeStr string) ReplaceIdentity {
	id := ReplaceIdentity{UID: -1, GID: -1}
	if uidStr != "" {
		if v, err := strconv.Atoi(uidStr); err == nil {
			id.UID = v
		}
	}
	if gidStr != "" {
		if v, err := strconv.Atoi(gidStr); err == nil {
			id.GID = v
		}
	}
	if modeStr != "" {
		if v, err := strconv.ParseUint(modeStr, 8, 32); err == nil {
			id.Mode = os.FileMode(v)
		}
	}
	return id
}

// SafeReplace performs the §4.5 safe-replace sequence: copy scratchOutput
// into originalPath's directory as a ".temp" sibling, apply identity,
// delete the original, atomically rename the temp file into place, then
// delete the scratch input/output. originalPath keeps its own extension;
// the swapped-in file is always a Matroska container, so the final name
// is the original stem with a ".mkv" extension.
func SafeReplace(scratchInput, scratchOutput, originalPath string, identity ReplaceIdentity) (finalPath string, err error) {
	dir := filepath.Dir(originalPath)
	stem := strings.TrimSuffix(filepath.Base(originalPath), filepath.Ext(originalPath))
	finalPath = filepath.Join(dir, stem+".mkv")
	tempPath := filepath.Join(dir, stem+".temp.mkv")

	if err := copyFile(scratchOutput, tempPath); err != nil {
		os.Remove(tempPath)
		return "", storeerr.Wrapf(storeerr.ErrIO, "copy scratch output into place: %v", err)
	}

	if err := applyIdentity(tempPath, identity); err != nil {
		os.Remove(tempPath)
		return "", storeerr.Wrapf(storeerr.ErrIO, "apply replace identity: %v", err)
	}

	if err := os.Remove(originalPath); err != nil {
		os.Remove(tempPath)
		return "", storeerr.Wrapf(storeerr.ErrIO, "delete original: %v", err)
	}

	// Past this point the original is already gone: best-effort cleanup on
	// subsequent failure, but surface the error regardless.
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", storeerr.Wrapf(storeerr.ErrIO, "rename into place: %v", err)
	}

	os.Remove(scratchInput)
	os.Remove(scratchOutput)
	return finalPath, nil
}

func applyIdentity(path string, identity ReplaceIdentity) error {
	if identity.Mode != 0 {
		if err := os.Chmod(path, identity.Mode); err != nil {
			return err
		}
	}
	if identity.UID >= 0 || identity.GID >= 0 {
		uid, gid := identity.UID, identity.GID
		if uid < 0 {
			uid = -1
		}
		if gid < 0 {
			gid = -1
		}
		if err := os.Chown(path, uid, gid); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies src to dest via a temp-file-then-rename so a reader of
// dest never observes a partial write.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	partial := dest + ".part"
	out, err := os.Create(partial)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(partial)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return err
	}
	return os.Rename(partial, dest)
}
