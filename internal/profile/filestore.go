package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const indexFileName = "index.json"

// FileStore keeps one JSON file per profile plus index.json in a single
// directory. Every write goes through a temp file and a rename, so readers
// see either the old or the new content.
type FileStore struct {
	dir string
	mu  sync.Mutex // serializes index read-modify-write
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on the first write if it does not exist.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the profiles directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *FileStore) profilePath(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// ListIndex returns the index, creating an empty one when none exists yet.
func (s *FileStore) ListIndex(ctx context.Context) ([]IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndex(true)
}

func (s *FileStore) AppendIndex(ctx context.Context, entry IndexEntry) error {
	if err := checkID(entry.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.loadIndex(false)
	if err != nil {
		return err
	}
	replaced := false
	for i := range index {
		if index[i].ID == entry.ID {
			index[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		index = append(index, entry)
	}
	return s.saveIndex(index)
}

func (s *FileStore) RemoveFromIndex(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.loadIndex(false)
	if err != nil {
		return err
	}
	kept := index[:0]
	for _, e := range index {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return s.saveIndex(kept)
}

func (s *FileStore) WriteProfile(ctx context.Context, p *Profile) error {
	path, err := s.profilePath(p.UID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}
	return writeFileAtomic(s.dir, path, append(data, '\n'))
}

func (s *FileStore) ReadProfile(ctx context.Context, id string) (*Profile, error) {
	path, err := s.profilePath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", id, err)
	}
	return &p, nil
}

func (s *FileStore) DeleteProfile(ctx context.Context, id string) error {
	path, err := s.profilePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing profile: %w", err)
	}
	return nil
}

// loadIndex reads index.json. A missing file is an empty index; with create
// set it is also written out so the directory is browsable.
func (s *FileStore) loadIndex(create bool) ([]IndexEntry, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading index: %w", err)
		}
		index := []IndexEntry{}
		if create {
			if err := s.saveIndex(index); err != nil {
				return nil, err
			}
		}
		return index, nil
	}
	var index []IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing index: %w", err)
	}
	if index == nil {
		index = []IndexEntry{}
	}
	return index, nil
}

func (s *FileStore) saveIndex(index []IndexEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}
	return writeFileAtomic(s.dir, s.indexPath(), append(data, '\n'))
}

// writeFileAtomic writes data to path using an atomic temp-file-then-rename
// pattern. The directory is created if it does not already exist.
func writeFileAtomic(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating profiles dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profile-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	committed = true
	return nil
}

// ErrInvalidID is returned for ids that are not usable as file names.
var ErrInvalidID = errors.New("invalid profile id")

// checkID rejects ids that could escape the profiles directory or collide
// with the index file.
func checkID(id string) error {
	switch {
	case id == "", id == "index", strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.ContainsAny(id, `/\`), strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
