package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// kvTimeout bounds each individual bucket operation.
const kvTimeout = 5 * time.Second

// KVStore exposes the narrow key-value surface the persistence layer
// needs over a JetStream bucket.
type KVStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

func newKVStore(bucket jetstream.KeyValue, logger *slog.Logger) *KVStore {
	return &KVStore{bucket: bucket, logger: logger}
}

// Get retrieves a value. A missing key reports found=false, not an error.
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, kvTimeout)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Put creates or updates a key, last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, kvTimeout)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	kv.logger.Debug("KV put", "key", key, "revision", rev)
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, kvTimeout)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
