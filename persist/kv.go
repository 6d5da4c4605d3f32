package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/paramsync/errors"
)

// KV is the key-value surface the KV-backed store needs. The natsclient
// package provides a JetStream-backed implementation.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

// KVStore persists the parameter file as a single JSON value in a
// key-value bucket, keeping the same flat layout as FileStore.
type KVStore struct {
	kv     KV
	key    string
	logger *slog.Logger
}

// NewKVStore creates a store that reads and writes the named key.
func NewKVStore(kv KV, key string, logger *slog.Logger) (*KVStore, error) {
	if kv == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil kv", errors.ErrInvalidConfig),
			"KVStore", "NewKVStore", "validate kv")
	}
	if key == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty key", errors.ErrInvalidConfig),
			"KVStore", "NewKVStore", "validate key")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KVStore{kv: kv, key: key, logger: logger}, nil
}

// Load fetches and parses the stored file. A missing key yields a fresh
// empty file.
func (s *KVStore) Load(ctx context.Context) (*File, error) {
	data, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPersistenceRead, err),
			"KVStore", "Load", "get key")
	}
	if !found {
		s.logger.Debug("no parameter entry yet, starting fresh", "key", s.key)
		return NewFile(), nil
	}

	f := NewFile()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: key %s: %w", errors.ErrPersistenceParse, s.key, err),
			"KVStore", "Load", "parse value")
	}
	return f, nil
}

// Save stamps and writes the file to the bucket.
func (s *KVStore) Save(ctx context.Context, f *File) error {
	f.LastSaved = time.Now().UTC().Format(time.RFC3339)
	f.Version = FormatVersion

	data, err := json.Marshal(f)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrPersistenceWrite, err),
			"KVStore", "Save", "encode file")
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPersistenceWrite, err),
			"KVStore", "Save", "put key")
	}
	s.logger.Debug("parameter entry saved", "key", s.key, "types", len(f.documents))
	return nil
}
