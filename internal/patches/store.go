package patches

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/speakeasy-api/vendorpatch/internal/fsutil"
)

// Suffix is appended to every patch record file name.
const Suffix = ".patch"

// Store is a flat directory holding at most one unified diff per vendored
// text file. Records are keyed by the file's slash-separated path relative to
// the package source root.
type Store struct {
	dir string
}

// Record describes one patch file on disk.
type Record struct {
	RelPath string
	File    string
	Stats   DiffStats
}

// NewStore creates a Store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// Name derives the record file name for rel. Path separators are
// percent-encoded, so the mapping can be reversed with RelPath.
func Name(rel string) string {
	return url.PathEscape(filepath.ToSlash(rel)) + Suffix
}

// RelPath reverses Name.
func RelPath(name string) (string, error) {
	if !strings.HasSuffix(name, Suffix) {
		return "", fmt.Errorf("%s is not a patch record", name)
	}
	rel, err := url.PathUnescape(strings.TrimSuffix(name, Suffix))
	if err != nil {
		return "", fmt.Errorf("patch record %s: %w", name, err)
	}
	return rel, nil
}

// Path is the absolute location of the record for rel.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.dir, Name(rel))
}

// Read returns the raw record for rel. ok is false when no record exists.
func (s *Store) Read(rel string) (text string, ok bool, err error) {
	data, err := os.ReadFile(s.Path(rel))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Load reads and parses the record for rel.
func (s *Store) Load(rel string) (*Patch, bool, error) {
	text, ok, err := s.Read(rel)
	if err != nil || !ok {
		return nil, ok, err
	}
	p, err := Parse(text)
	if err != nil {
		return nil, true, fmt.Errorf("%s: %w", s.Path(rel), err)
	}
	return p, true, nil
}

// Write replaces the record for rel.
func (s *Store) Write(rel, text string) error {
	return fsutil.WriteFileAtomic(s.Path(rel), []byte(text), 0o644)
}

// Remove deletes the record for rel. A missing record is not an error.
func (s *Store) Remove(rel string) error {
	err := os.Remove(s.Path(rel))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns every record sorted by relative path. A missing store
// directory holds no records.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Suffix) {
			continue
		}

		rel, err := RelPath(entry.Name())
		if err != nil {
			return nil, err
		}

		record := Record{RelPath: rel, File: filepath.Join(s.dir, entry.Name())}
		if p, _, err := s.Load(rel); err == nil {
			record.Stats = p.Stats()
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].RelPath < records[j].RelPath })
	return records, nil
}

// Check parses every record and applies it to the pristine text returned by
// pristine. All failures are collected rather than stopping at the first.
func (s *Store) Check(pristine func(rel string) (string, error)) error {
	records, err := s.List()
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, record := range records {
		p, _, err := s.Load(record.RelPath)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		text, err := pristine(record.RelPath)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", record.RelPath, err))
			continue
		}

		if _, err := Apply(p, text); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", record.RelPath, err))
		}
	}

	return result.ErrorOrNil()
}
