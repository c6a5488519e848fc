// Package statestore persists opaque state blobs (such as resolver session
// state) across process restarts.
package statestore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/logger"
)

// ErrNotFound is returned by Load when no blob was saved yet.
var ErrNotFound = fmt.Errorf("state blob not found: %w", fs.ErrNotExist)

// Store loads and saves opaque blobs by path.
type Store interface {
	Load(path string) ([]byte, error)
	Save(path string, blob []byte) error
}

// FileStore keeps each blob in its own file.
type FileStore struct {
	fs afero.Fs
}

// NewFileStore returns a store on the given filesystem (the OS filesystem when nil).
func NewFileStore(fsys afero.Fs) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FileStore{fs: fsys}
}

// Load returns the blob at path, or ErrNotFound if the file does not exist.
func (s *FileStore) Load(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is empty")
	}
	blob, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}
	return blob, nil
}

// Save atomically replaces the blob at path, creating parent directories.
func (s *FileStore) Save(path string, blob []byte) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("state path is empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write state %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace state %s: %w", path, err)
	}
	return nil
}

// Loader accepts a previously saved blob.
type Loader interface {
	LoadState(blob []byte) error
}

// Saver produces the blob to persist.
type Saver interface {
	SaveState() ([]byte, error)
}

// Restore loads the blob at path into target. A missing or unreadable file, or a
// blob the target rejects, leaves target with fresh state; the outcome is logged
// and reported as restored=false.
func Restore(store Store, path string, target Loader, log logger.Logger) (restored bool) {
	log = logger.Ensure(log)
	if store == nil || target == nil || strings.TrimSpace(path) == "" {
		return false
	}

	blob, err := store.Load(path)
	switch {
	case errors.Is(err, ErrNotFound):
		log.InfoObj("no prior state, starting fresh", "state_meta", map[string]any{"path": path})
		return false
	case err != nil:
		log.WarnObj("state load failed, starting fresh", "state_error", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return false
	}

	if err := target.LoadState(blob); err != nil {
		log.WarnObj("state rejected, starting fresh", "state_error", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return false
	}
	log.InfoObj("state restored", "state_meta", map[string]any{
		"path":  path,
		"bytes": len(blob),
	})
	return true
}

// Persist saves the blob produced by source to path. Errors are logged and
// returned so the caller can report them without aborting shutdown.
func Persist(store Store, path string, source Saver, log logger.Logger) error {
	log = logger.Ensure(log)
	if store == nil || source == nil || strings.TrimSpace(path) == "" {
		return nil
	}

	blob, err := source.SaveState()
	if err != nil {
		log.ErrorObj("state snapshot failed", "state_error", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return fmt.Errorf("snapshot state: %w", err)
	}
	if err := store.Save(path, blob); err != nil {
		log.ErrorObj("state save failed", "state_error", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return err
	}
	log.DebugObj("state saved", "state_meta", map[string]any{
		"path":  path,
		"bytes": len(blob),
	})
	return nil
}
