// Package transform implements the incremental directory transformation:
// it mirrors a source tree into a target tree, reprocessing only files
// whose content changed since the last committed run and deleting outputs
// whose inputs disappeared.
package transform

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"protogen/internal/fingerprint"
	"protogen/internal/manifest"
)

// TransformFunc rewrites the file at sourcePath into targetPath.
type TransformFunc func(sourcePath, targetPath string) error

// Result summarizes one sync pass.
type Result struct {
	Written   int
	Deleted   int
	Unchanged int
}

func (r *Result) Add(other Result) {
	r.Written += other.Written
	r.Deleted += other.Deleted
	r.Unchanged += other.Unchanged
}

// Syncer diffs a source tree against its persisted manifest and applies
// transform-or-copy to the delta. It is single-threaded; concurrent Sync
// calls against the same manifest scope are the caller's bug.
type Syncer struct {
	hasher *fingerprint.Hasher
	store  *manifest.Store
	logger *zap.Logger
}

func NewSyncer(hasher *fingerprint.Hasher, store *manifest.Store, logger *zap.Logger) *Syncer {
	return &Syncer{
		hasher: hasher,
		store:  store,
		logger: logger,
	}
}

// Sync brings targetDir up to date with sourceDir. Files for which
// isTransformable returns true are rewritten with transform; the rest are
// copied byte for byte. isTransformable receives the path relative to
// sourceDir in slash form.
//
// The manifest is committed only after every file mutation succeeds, so a
// crash mid-run leaves the previous manifest intact and the next run
// redoes the interrupted work. Outputs are written via a temporary file
// and rename, so a crash cannot leave a torn output file either.
func (s *Syncer) Sync(sourceDir, targetDir string, isTransformable func(string) bool, transform TransformFunc) (Result, error) {
	var result Result

	scope := manifest.Scope(sourceDir, targetDir)
	previous, err := s.store.Load(scope)
	if err != nil {
		return result, err
	}

	current, err := s.scan(sourceDir)
	if err != nil {
		return result, err
	}

	// Classify. New files and modified files are one set: both need the
	// same reprocessing.
	var removed, modified []string
	for path := range previous {
		if _, ok := current[path]; !ok {
			removed = append(removed, path)
		}
	}
	for path, digest := range current {
		if previous[path] != digest {
			modified = append(modified, path)
		}
	}
	result.Unchanged = len(current) - len(modified)

	if len(removed) == 0 && len(modified) == 0 {
		s.logger.Info("source tree unchanged",
			zap.String("source", sourceDir),
			zap.Int("files", len(current)))
		if err := s.store.Commit(scope, current); err != nil {
			return result, err
		}
		return result, nil
	}

	sort.Strings(removed)
	sort.Strings(modified)

	for _, rel := range removed {
		target := filepath.Join(targetDir, filepath.FromSlash(rel))
		if err := os.Remove(target); err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("failed to delete stale output",
					zap.String("path", target),
					zap.Error(err))
			}
			continue
		}
		result.Deleted++
		pruneEmptyDirs(filepath.Dir(target), targetDir)
	}

	for _, rel := range modified {
		source := filepath.Join(sourceDir, filepath.FromSlash(rel))
		target := filepath.Join(targetDir, filepath.FromSlash(rel))

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return result, fmt.Errorf("creating output directory for %s: %w", rel, err)
		}

		var writeErr error
		if isTransformable != nil && isTransformable(rel) {
			writeErr = writeAtomic(target, func(tmp string) error {
				return transform(source, tmp)
			})
		} else {
			writeErr = writeAtomic(target, func(tmp string) error {
				return copyFile(source, tmp)
			})
		}
		if writeErr != nil {
			return result, fmt.Errorf("processing %s: %w", rel, writeErr)
		}
		result.Written++
	}

	// Commit last: a failure anywhere above leaves the previous manifest
	// in place and the next run reprocesses the affected files.
	if err := s.store.Commit(scope, current); err != nil {
		return result, err
	}

	s.logger.Info("sync complete",
		zap.String("source", sourceDir),
		zap.String("target", targetDir),
		zap.Int("written", result.Written),
		zap.Int("deleted", result.Deleted),
		zap.Int("unchanged", result.Unchanged))
	return result, nil
}

// scan walks sourceDir and fingerprints every file. A missing sourceDir is
// an empty tree, which turns every manifest entry into a removal.
func (s *Syncer) scan(sourceDir string) (map[string]string, error) {
	files := make(map[string]string)

	if _, err := os.Stat(sourceDir); os.IsNotExist(err) {
		return files, nil
	}

	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		digest, err := s.hasher.File(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = digest
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", sourceDir, err)
	}

	return files, nil
}

// writeAtomic runs write against a temporary sibling of target and renames
// it into place on success.
func writeAtomic(target string, write func(tmp string) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	// CreateTemp defaults to 0600; generated output should be readable
	// like any compiler-produced file.
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting output mode: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening %s: %w", source, err)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", target, err)
	}
	return out.Close()
}

// pruneEmptyDirs removes now-empty directories from dir up to, but not
// including, root. os.Remove refuses non-empty directories, which ends the
// walk.
func pruneEmptyDirs(dir, root string) {
	root = filepath.Clean(root)
	for {
		dir = filepath.Clean(dir)
		if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
