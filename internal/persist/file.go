package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	recordSuffix     = ".json"
	quarantineMarker = ".corrupt-"
	tempMarker       = ".tmp-"
)

// FileStore keeps one JSON file per key under a base directory. Writes go to
// a temp file in the same directory and are renamed into place, so a record
// is either fully visible or not visible at all.
type FileStore struct {
	dir      string
	priority atomic.Uint64
}

// NewFileStore creates the base directory and seeds the priority counter from
// the highest priority already on disk.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create store dir")
	}
	s := &FileStore{dir: dir}
	if err := s.seedPriority(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) seedPriority() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "read store dir")
	}
	var max uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordSuffix) || strings.Contains(name, tempMarker) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var rec Record
		if json.Unmarshal(data, &rec) != nil {
			continue
		}
		if rec.Priority > max {
			max = rec.Priority
		}
	}
	s.priority.Store(max)
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+recordSuffix)
}

// Read loads and validates the record for a key. A record that fails to parse
// or violates signal invariants is quarantined and ErrCorrupt is returned; the
// engine must not resume from an invalid state.
func (s *FileStore) Read(_ context.Context, key string) (Record, error) {
	path := s.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Wrapf(err, "read record %s", key)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.quarantine(path, key, err)
		return Record{}, errors.Wrap(ErrCorrupt, err.Error())
	}
	if err := rec.Validate(); err != nil {
		s.quarantine(path, key, err)
		return Record{}, err
	}
	return rec, nil
}

// quarantine renames a bad record aside, never silently deleting it.
func (s *FileStore) quarantine(path, key string, cause error) {
	aside := fmt.Sprintf("%s%s%d", path, quarantineMarker, time.Now().UTC().UnixNano())
	if err := os.Rename(path, aside); err != nil {
		logs.Errorf("quarantine record %s, err: %+v", key, err)
		return
	}
	logs.Warnf("quarantined corrupt record %s -> %s, cause: %+v", key, filepath.Base(aside), cause)
}

// Write atomically replaces the record for a key, stamping UpdatedAt and the
// monotonic priority. CreatedAt is preserved once set.
func (s *FileStore) Write(_ context.Context, key string, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Priority = s.priority.Add(1)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal record %s", key)
	}

	tmp, err := os.CreateTemp(s.dir, key+tempMarker+"*")
	if err != nil {
		return errors.Wrap(err, "create temp record")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write temp record %s", key)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync temp record %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close temp record %s", key)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return errors.Wrapf(err, "commit record %s", key)
	}
	return nil
}

// Exists reports whether a committed record exists for the key.
func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	if _, err := os.Stat(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat record %s", key)
	}
	return true, nil
}

// Delete removes the record for a key. Missing records are not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete record %s", key)
	}
	return nil
}

// ListKeys returns the keys of all committed records, excluding temp files
// and quarantined records.
func (s *FileStore) ListKeys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "read store dir")
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		if strings.Contains(name, tempMarker) || strings.Contains(name, quarantineMarker) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, recordSuffix))
	}
	return keys, nil
}
