// Package cache provides the on-disk resume store for per-player summaries.
//
// Each entry is one JSON file keyed by player id. Reads are verified before
// they count as hits; anything unreadable or unverifiable is reported as
// Corrupt so the caller can fetch afresh and overwrite it.
package cache

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/albapepper/fpl-archive/internal/tabular"
)

// Status is the outcome of a lookup.
type Status int

const (
	Miss Status = iota
	Hit
	Corrupt
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Corrupt:
		return "corrupt"
	default:
		return "miss"
	}
}

// Entry is a cached value with its verification signal.
type Entry struct {
	Data   []byte
	ETag   string
	Status Status
	Err    error // why the entry is Corrupt
}

// Verifier reports whether data is usable as a cached value.
type Verifier func(data []byte) error

// FileStore stores entries as {dir}/player_{id}.json.
type FileStore struct {
	dir    string
	verify Verifier
}

// NewFileStore creates a store rooted at dir. verify may be nil, in which
// case any readable file is a hit.
func NewFileStore(dir string, verify Verifier) *FileStore {
	return &FileStore{dir: dir, verify: verify}
}

// Dir returns the directory the store writes into.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file backing id.
func (s *FileStore) Path(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf("player_%d.json", id))
}

// Get looks up id. It never returns an error; failures surface as Corrupt.
func (s *FileStore) Get(id int) Entry {
	data, err := os.ReadFile(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{Status: Miss}
	}
	if err != nil {
		return Entry{Status: Corrupt, Err: fmt.Errorf("read cache: %w", err)}
	}
	if s.verify != nil {
		if err := s.verify(data); err != nil {
			return Entry{Status: Corrupt, Err: fmt.Errorf("verify cache: %w", err)}
		}
	}
	return Entry{Data: data, ETag: ComputeETag(data), Status: Hit}
}

// Put persists value for id, replacing any previous entry, and returns the
// ETag of what was written. The written bytes must pass the verifier, so a
// successful Put is always read back as a Hit.
func (s *FileStore) Put(id int, value any) (string, error) {
	path := s.Path(id)
	if err := tabular.WriteStructured(value, path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("re-read cache: %w", err)
	}
	if s.verify != nil {
		if err := s.verify(data); err != nil {
			return "", fmt.Errorf("verify written cache: %w", err)
		}
	}
	return ComputeETag(data), nil
}

// ComputeETag generates a weak ETag from response data using MD5.
func ComputeETag(data []byte) string {
	hash := md5.Sum(data)
	return fmt.Sprintf(`W/"%x"`, hash[:8])
}
