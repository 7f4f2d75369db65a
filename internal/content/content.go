// Package content implements the Content Store (component B): a POSIX
// directory hierarchy under one base directory, with hard-link cloning
// between revisions and atomic moves out of staging.
//
// Grounded directly on the directory layout and primitive operations of
// spec.md §4.B. No teacher file manages a POSIX hard-link tree (the
// teacher's storage/s3aws.go is S3 object storage, structurally
// incompatible); this package is stdlib os/path/filepath, the idiomatic
// choice for syscall-level filesystem primitives (see DESIGN.md).
package content

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const dirMode = 0o755

// Store roots the four directory trees of §4.B under one base path. All
// paths must live on a single filesystem so that rename(2) and hard-link
// operations are atomic.
type Store struct {
	base string
}

// Open validates the base directory and ensures the six top-level trees
// exist, per §6 "downloads/, finished/, unfinished/, tmp/, audit/, runtime/
// are ensured at startup."
func Open(base string) (*Store, error) {
	if !filepath.IsAbs(base) {
		return nil, fmt.Errorf("content: base directory %q must be absolute", base)
	}
	s := &Store{base: base}
	for _, sub := range []string{"unfinished", "finished", "downloads", "tmp", "audit", "runtime"} {
		if err := os.MkdirAll(filepath.Join(base, sub), dirMode); err != nil {
			return nil, fmt.Errorf("content: ensure %s: %w", sub, err)
		}
	}
	return s, nil
}

// UnfinishedPath returns <base>/unfinished/<project>/<version>/<number>.
func (s *Store) UnfinishedPath(project, version, number string) string {
	return filepath.Join(s.base, "unfinished", project, version, number)
}

// FinishedPath returns <base>/finished/<committee>/<pathSuffix>.
func (s *Store) FinishedPath(committee, pathSuffix string) string {
	return filepath.Join(s.base, "finished", committee, pathSuffix)
}

// DownloadsPath returns <base>/downloads/<committee>/<pathSuffix>.
func (s *Store) DownloadsPath(committee, pathSuffix string) string {
	return filepath.Join(s.base, "downloads", committee, pathSuffix)
}

// NewStagingDir allocates <base>/tmp/<token>-<suffix>/ and returns its path.
// Tokens are UUIDs per the Domain Stack (google/uuid), matching §4.B's
// "tmp/<token>-.../" layout.
func (s *Store) NewStagingDir(suffix string) (string, error) {
	token := uuid.NewString()
	dir := filepath.Join(s.base, "tmp", fmt.Sprintf("%s-%s", token, suffix))
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("content: create staging dir: %w", err)
	}
	return dir, nil
}

// Clone mirrors a tree using hard links, preserving inode identity so the
// finished mirror and the downloads mirror share storage (§4.B
// clone-by-hardlink). If existOK is false, Clone fails if dst already
// contains any file that would collide; if existOK is true, a colliding file
// is replaced. If dryRun is true, no directories or hard links are created
// and nothing is removed: the tree is walked, and a would-be collision is
// returned as an error only when existOK is false (with existOK true, a dry
// run reports only walk and stat errors). Used by the PREVIEW -> RELEASE
// transition before moving anything.
func Clone(src, dst string, existOK, dryRun bool) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			if dryRun {
				return nil
			}
			return os.MkdirAll(target, dirMode)
		}
		if _, statErr := os.Lstat(target); statErr == nil {
			if !existOK {
				return fmt.Errorf("content: clone collision at %s", target)
			}
			if dryRun {
				return nil
			}
			if err := os.Remove(target); err != nil {
				return fmt.Errorf("content: remove existing %s: %w", target, err)
			}
		} else if !os.IsNotExist(statErr) {
			return statErr
		}
		if dryRun {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
			return err
		}
		return os.Link(path, target)
	})
}

// CloneSkipExisting behaves like Clone(src, dst, true, false) except that,
// rather than overwriting a pre-existing file at a colliding path, it
// leaves the existing file untouched and continues with the rest of the
// tree. This implements the preserve_download_files semantics recorded as
// DESIGN.md Open Question #3: "never destroy a previously published
// download," applied per file rather than failing the whole operation.
func CloneSkipExisting(src, dst string) (skipped []string, err error) {
	walkErr := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, dirMode)
		}
		if _, statErr := os.Lstat(target); statErr == nil {
			skipped = append(skipped, rel)
			return nil
		} else if !os.IsNotExist(statErr) {
			return statErr
		}
		if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
			return err
		}
		return os.Link(path, target)
	})
	if walkErr != nil {
		return skipped, walkErr
	}
	return skipped, nil
}

// AtomicRename moves a staged directory into place with a single rename(2)
// syscall (§4.B atomic-rename). Both paths must be on the same filesystem.
func AtomicRename(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), dirMode); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// RecursiveDelete removes a revision or release tree (§4.B recursive-delete).
func RecursiveDelete(path string) error {
	return os.RemoveAll(path)
}

// ChmodDirectories normalizes directory mode bits to 0755, recursively
// (§4.B chmod-directories).
func ChmodDirectories(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return os.Chmod(path, dirMode)
		}
		return nil
	})
}

// CopyFile is a small helper used by tests and by checker plug-ins that need
// to stage a fixture file without relying on hard links.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), dirMode); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
