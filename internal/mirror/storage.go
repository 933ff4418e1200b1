package mirror

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/mirrorctl/repoget/internal/repo"
)

const infoJSON = "info.json"

// validatePath rejects paths that could escape the storage directory.
func validatePath(p string) error {
	clean := filepath.Clean(p)
	if strings.Contains(clean, "..") {
		return errors.New("unsafe path (contains directory traversal): " + p)
	}
	if filepath.IsAbs(clean) {
		return errors.New("unsafe path (absolute path not allowed): " + p)
	}
	return nil
}

// Storage manages the on-disk tree a single Perform populates, and (in
// update mode) the record of what it previously held, so downloads can
// be skipped in favor of a hard link (spec.md §4.I "update mode" /
// §4.G reuse). Generalized from the teacher's Storage: repository
// layout is no longer assumed to be Debian's by-hash scheme, so only
// the single canonical relative path is linked per file.
type Storage struct {
	dir string

	mu   sync.RWMutex
	info map[string]*repo.FileInfo
}

// NewStorage constructs Storage rooted at an existing, absolute directory.
func NewStorage(dir string) (*Storage, error) {
	if !filepath.IsAbs(dir) {
		return nil, errors.New("not an absolute path: " + dir)
	}
	dir = filepath.Clean(dir)
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsDir() {
		return nil, errors.New("not a directory: " + dir)
	}
	return &Storage{dir: dir, info: make(map[string]*repo.FileInfo)}, nil
}

// Dir returns the storage root.
func (s *Storage) Dir() string { return s.dir }

// Load reads a previously Saved info.json, if any; a missing file is
// not an error (first run).
func (s *Storage) Load() error {
	infoPath := filepath.Join(s.dir, infoJSON)
	f, err := os.Open(infoPath) // #nosec G304 - infoPath built from a validated absolute directory plus a constant name
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(&s.info); err != nil {
		return errors.Wrap(err, "Storage.Load: "+infoPath)
	}
	return nil
}

// TempFile creates a new temporary file within the storage directory,
// so that the final link/rename never crosses a filesystem boundary.
func (s *Storage) TempFile() (*os.File, error) {
	return os.CreateTemp(s.dir, "_tmp")
}

// Save persists the file-info map and fsyncs the directory tree.
func (s *Storage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	infoPath := filepath.Join(s.dir, infoJSON)
	f, err := os.OpenFile(infoPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644) // #nosec G304 - infoPath built from a validated absolute directory plus a constant name
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(s.info); err != nil {
		return err
	}
	_ = f.Sync()
	if err := DirSyncTree(s.dir); err != nil {
		return errors.Wrap(err, "DirSyncTree")
	}
	return nil
}

// StoreLink hard-links fullpath (a completed temp file) into the
// storage tree at fi's relative path, and records fi for later reuse
// lookups.
func (s *Storage) StoreLink(fi *repo.FileInfo, fullpath string) error {
	p := fi.Path()
	if err := validatePath(p); err != nil {
		return errors.Wrap(err, "StoreLink")
	}

	fp := filepath.Join(s.dir, filepath.Clean(p))
	if err := os.MkdirAll(filepath.Dir(fp), 0750); err != nil {
		return err
	}

	if err := os.Link(fullpath, fp); err != nil {
		if !os.IsExist(err) {
			return err
		}
		// fullpath may already be the stored file itself (update-mode
		// reuse within the same tree); only relink a different file.
		src, serr := os.Stat(fullpath)
		dst, derr := os.Stat(fp)
		if serr != nil || derr != nil || !os.SameFile(src, dst) {
			if rerr := os.Remove(fp); rerr != nil {
				return errors.Wrap(rerr, "removing existing file before relink")
			}
			if err := os.Link(fullpath, fp); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.info[p] = fi
	return nil
}

// Lookup reports whether a file matching fi (same path, size, and any
// checksums present on both) is already present in this storage, for
// update-mode reuse (spec.md §4.I).
func (s *Storage) Lookup(fi *repo.FileInfo) (*repo.FileInfo, string) {
	if err := validatePath(fi.Path()); err != nil {
		return nil, ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.info[fi.Path()]
	if !ok || !fi.Same(existing) {
		return nil, ""
	}
	return existing, filepath.Join(s.dir, filepath.Clean(fi.Path()))
}

// PathInfo returns the recorded FileInfo for a relative path regardless
// of whether it matches any particular size or checksum, for callers
// doing a softer comparison than Lookup (e.g. version-aware logging).
func (s *Storage) PathInfo(p string) (*repo.FileInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, ok := s.info[p]
	return fi, ok
}

// Open opens a previously stored file by its relative path.
func (s *Storage) Open(p string) (*os.File, error) {
	if err := validatePath(p); err != nil {
		return nil, errors.Wrap(err, "Open")
	}
	return os.Open(filepath.Join(s.dir, filepath.Clean(p))) // #nosec G304 - path validated above
}
