// Package artifact keeps the mesh files produced by successful runs.
//
// Layout under the root directory:
//
//	runs/<runID>/<file>   every run's files, never overwritten
//	current/<file>        hard link to the most recent run's file of that name
//	.staging/             scratch space for in-flight commits
//
// A run becomes visible only through a single directory rename, so readers
// never observe a partially committed run.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrInvalidName = errors.New("invalid artifact name")
)

const (
	runsDir    = "runs"
	currentDir = "current"
	stagingDir = ".staging"

	maxNameLen = 128
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName checks that name is a safe single path element.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > maxNameLen || strings.Contains(name, "..") || !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

type FileInfo struct {
	Name      string
	Size      int64
	CreatedAt time.Time
	// Path is the absolute location of the file inside the store.
	Path string
}

type Store struct {
	root string
	// mu orders commits and cleanups. Reads go straight to the filesystem.
	mu sync.Mutex
}

// NewStore opens (creating if needed) the store rooted at root.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact root: %w", err)
	}
	for _, dir := range []string{runsDir, currentDir, stagingDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string { return s.root }

// Commit copies paths into a new run directory and points the current view at
// them. Each path's base name becomes the artifact name.
func (s *Store) Commit(runID string, paths []string) ([]FileInfo, error) {
	if err := ValidateName(runID); err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := ValidateName(filepath.Base(p)); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runPath := filepath.Join(s.root, runsDir, runID)
	if _, err := os.Stat(runPath); err == nil {
		return nil, fmt.Errorf("run %s already committed", runID)
	}

	stage, err := os.MkdirTemp(filepath.Join(s.root, stagingDir), runID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(stage)
		}
	}()

	for _, p := range paths {
		if err := copyFile(p, filepath.Join(stage, filepath.Base(p))); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", filepath.Base(p), err)
		}
	}
	if err := os.Chmod(stage, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare run directory: %w", err)
	}
	if err := os.Rename(stage, runPath); err != nil {
		return nil, fmt.Errorf("failed to publish run: %w", err)
	}
	published = true

	files, err := listDir(runPath)
	if err == nil {
		err = s.linkCurrent(runID, files)
	}
	if err != nil {
		_ = os.RemoveAll(runPath)
		return nil, err
	}
	return files, nil
}

// linkCurrent points current/<name> at every file of a run. Links are staged
// first and swapped in by rename; if any swap fails the names already swapped
// are restored, so the current view moves to the run completely or not at all.
func (s *Store) linkCurrent(runID string, files []FileInfo) error {
	staging := filepath.Join(s.root, stagingDir)
	tmps := make([]string, 0, len(files))
	backups := make([]string, 0, len(files))
	defer func() {
		for _, p := range append(tmps, backups...) {
			_ = os.Remove(p)
		}
	}()

	for _, f := range files {
		tmp := filepath.Join(staging, ".link-"+runID+"-"+f.Name)
		_ = os.Remove(tmp)
		if err := os.Link(f.Path, tmp); err != nil {
			// Filesystems without hard links get a copy.
			if err := copyFile(f.Path, tmp); err != nil {
				return fmt.Errorf("failed to link %s: %w", f.Name, err)
			}
		}
		tmps = append(tmps, tmp)
	}

	type swap struct{ dst, backup string }
	var swapped []swap
	rollback := func() {
		for i := len(swapped) - 1; i >= 0; i-- {
			sw := swapped[i]
			if sw.backup != "" {
				_ = os.Rename(sw.backup, sw.dst)
			} else {
				_ = os.Remove(sw.dst)
			}
		}
	}

	for i, f := range files {
		dst := filepath.Join(s.root, currentDir, f.Name)
		backup := ""
		if info, err := os.Lstat(dst); err == nil && info.Mode().IsRegular() {
			backup = filepath.Join(staging, ".prev-"+runID+"-"+f.Name)
			_ = os.Remove(backup)
			if err := os.Link(dst, backup); err != nil {
				if err := copyFile(dst, backup); err != nil {
					rollback()
					return fmt.Errorf("failed to keep current %s: %w", f.Name, err)
				}
			}
			backups = append(backups, backup)
		}
		if err := os.Rename(tmps[i], dst); err != nil {
			rollback()
			return fmt.Errorf("failed to update current %s: %w", f.Name, err)
		}
		swapped = append(swapped, swap{dst: dst, backup: backup})
	}
	return nil
}

// List returns the current view: the latest file for every name.
func (s *Store) List() ([]FileInfo, error) {
	return listDir(filepath.Join(s.root, currentDir))
}

// Resolve finds name in the current view.
func (s *Store) Resolve(name string) (FileInfo, error) {
	if err := ValidateName(name); err != nil {
		return FileInfo{}, err
	}
	return stat(filepath.Join(s.root, currentDir, name))
}

// ListRun returns the files committed by runID.
func (s *Store) ListRun(runID string) ([]FileInfo, error) {
	if err := ValidateName(runID); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, runsDir, runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return listDir(dir)
}

// ResolveRun finds name among runID's files.
func (s *Store) ResolveRun(runID, name string) (FileInfo, error) {
	if err := ValidateName(runID); err != nil {
		return FileInfo{}, err
	}
	if err := ValidateName(name); err != nil {
		return FileInfo{}, err
	}
	return stat(filepath.Join(s.root, runsDir, runID, name))
}

// Cleanup deletes every stored run and the current view. It returns the number
// of run files removed and is a no-op on an empty store.
func (s *Store) Cleanup() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	runs, err := os.ReadDir(filepath.Join(s.root, runsDir))
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}
	for _, run := range runs {
		dir := filepath.Join(s.root, runsDir, run.Name())
		if run.IsDir() {
			entries, _ := os.ReadDir(dir)
			for _, e := range entries {
				if !e.IsDir() {
					deleted++
				}
			}
		}
		if err := os.RemoveAll(dir); err != nil {
			return deleted, fmt.Errorf("failed to remove run %s: %w", run.Name(), err)
		}
	}
	for _, dir := range []string{currentDir, stagingDir} {
		if err := clearDir(filepath.Join(s.root, dir)); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, ErrNotFound
		}
		return FileInfo{}, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, ErrNotFound
	}
	return fileInfo(path, info), nil
}

func fileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{
		Name:      info.Name(),
		Size:      info.Size(),
		CreatedAt: info.ModTime().UTC(),
		Path:      path,
	}
}

// listDir returns the regular files in dir sorted by name.
func listDir(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo(filepath.Join(dir, e.Name()), info))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
