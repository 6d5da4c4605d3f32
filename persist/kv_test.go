package persist

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/paramsync/errors"
)

// fakeKV is an in-memory KV for tests.
type fakeKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	putErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.data[key] = value
	return nil
}

func TestNewKVStoreValidation(t *testing.T) {
	_, err := NewKVStore(nil, "params", nil)
	assert.Error(t, err)

	_, err = NewKVStore(newFakeKV(), "", nil)
	assert.Error(t, err)
}

func TestKVStoreLoadMissingKey(t *testing.T) {
	store, err := NewKVStore(newFakeKV(), "params", nil)
	require.NoError(t, err)

	f, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.TypeNames())
}

func TestKVStoreRoundTrip(t *testing.T) {
	store, err := NewKVStore(newFakeKV(), "params", nil)
	require.NoError(t, err)
	ctx := context.Background()

	f := NewFile()
	doc := NewDocument()
	doc.Set("level", 0.5)
	f.SetDocument("mixer", doc)
	require.NoError(t, store.Save(ctx, f))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	got, ok := loaded.Document("mixer")
	require.True(t, ok)
	v, ok := got.GetFloat64("level")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
}

func TestKVStoreCorruptValueIsHardError(t *testing.T) {
	kv := newFakeKV()
	kv.data["params"] = []byte("{corrupt")

	store, err := NewKVStore(kv, "params", nil)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPersistenceParse)
}

func TestKVStoreBackendErrorsAreTransient(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = stderrors.New("connection reset")

	store, err := NewKVStore(kv, "params", nil)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPersistenceRead)
	assert.True(t, errors.IsTransient(err))

	kv2 := newFakeKV()
	kv2.putErr = stderrors.New("connection reset")
	store2, err := NewKVStore(kv2, "params", nil)
	require.NoError(t, err)

	err = store2.Save(context.Background(), NewFile())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPersistenceWrite)
}
