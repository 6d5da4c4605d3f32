package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c360/paramsync/errors"
)

// Store loads and saves the parameter file. Load on an empty backend
// returns a fresh file rather than an error; only unreadable or
// unparseable data fails.
type Store interface {
	Load(ctx context.Context) (*File, error)
	Save(ctx context.Context, f *File) error
}

// FileStore persists the parameter file as pretty-printed JSON on the
// local filesystem. Saves are atomic: write to a temp file in the same
// directory, then rename over the target.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a filesystem-backed store writing to path.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty path", errors.ErrInvalidConfig),
			"FileStore", "NewFileStore", "validate path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and parses the backing file. A missing file is not an
// error; it yields a fresh empty file.
func (s *FileStore) Load(_ context.Context) (*File, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Debug("no parameter file yet, starting fresh", "path", s.path)
		return NewFile(), nil
	}
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPersistenceRead, err),
			"FileStore", "Load", "read file")
	}

	f := NewFile()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s: %w", errors.ErrPersistenceParse, s.path, err),
			"FileStore", "Load", "parse file")
	}
	return f, nil
}

// Save stamps the file with the current time and format version, then
// writes it atomically, creating parent directories as needed.
func (s *FileStore) Save(_ context.Context, f *File) error {
	f.LastSaved = time.Now().UTC().Format(time.RFC3339)
	f.Version = FormatVersion

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrPersistenceWrite, err),
			"FileStore", "Save", "encode file")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPersistenceWrite, err),
			"FileStore", "Save", "create directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPersistenceWrite, err),
			"FileStore", "Save", "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPersistenceWrite, err),
			"FileStore", "Save", "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPersistenceWrite, err),
			"FileStore", "Save", "close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPersistenceWrite, err),
			"FileStore", "Save", "rename temp file")
	}

	s.logger.Debug("parameter file saved", "path", s.path, "types", len(f.documents))
	return nil
}
