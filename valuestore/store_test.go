package valuestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/paramsync/mapping"
)

func newTestStore(t *testing.T, mappings ...mapping.Mapping) *Store {
	t.Helper()
	table := mapping.NewTable()
	for _, m := range mappings {
		_, err := table.Add(m)
		require.NoError(t, err)
	}
	s := New(Deps{Table: table})
	require.NotNil(t, s)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRequiresTable(t *testing.T) {
	assert.Nil(t, New(Deps{}))
}

func TestEagerEntriesStartAtZero(t *testing.T) {
	s := newTestStore(t, mapping.NewRange(16, "cutoff", 0, 10))

	assert.Equal(t, 0.0, s.Get(16))
	assert.False(t, s.Touched(16), "eager entry must not count as touched")
}

func TestGetUnknownControlReturnsZero(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 0.0, s.Get(42))
}

func TestIngestAndDrain(t *testing.T) {
	s := newTestStore(t, mapping.NewRange(16, "cutoff", 0, 10))

	s.Ingest(16, 0.5)
	assert.Equal(t, 0.0, s.Get(16), "value visible only after drain")

	applied := s.Drain()
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0.5, s.Get(16))
	assert.True(t, s.Touched(16))
}

func TestDrainLatestWins(t *testing.T) {
	s := newTestStore(t, mapping.NewRange(16, "cutoff", 0, 10))

	s.Ingest(16, 0.1)
	s.Ingest(16, 0.9)
	s.Ingest(16, 0.3)

	applied := s.Drain()
	assert.Equal(t, 3, applied)
	assert.Equal(t, 0.3, s.Get(16))
}

func TestIngestClampsOutOfRange(t *testing.T) {
	s := newTestStore(t, mapping.NewRange(16, "cutoff", 0, 10))

	s.Ingest(16, -0.5)
	s.Drain()
	assert.Equal(t, 0.0, s.Get(16))

	s.Ingest(16, 1.7)
	s.Drain()
	assert.Equal(t, 1.0, s.Get(16))
}

func TestGetScaled(t *testing.T) {
	s := newTestStore(t, mapping.NewRange(16, "cutoff", 0.0, 10.0))

	s.Ingest(16, 0.5)
	s.Drain()

	v, ok := s.GetScaled(16)
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-12)

	_, ok = s.GetScaled(99)
	assert.False(t, ok)
}

func TestRegisterCreatesEagerEntry(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Register(mapping.NewRange(16, "cutoff", 0, 10)))
	assert.Equal(t, 0.0, s.Get(16))

	_, ok := s.Table().Lookup(16)
	assert.True(t, ok)
}

func TestRegisterReusedControlReplaces(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Register(mapping.NewRange(16, "old", 0, 1)))
	require.NoError(t, s.Register(mapping.NewRange(16, "new", 0, 100)))

	m, ok := s.Table().Lookup(16)
	require.True(t, ok)
	assert.Equal(t, "new", m.Field)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Register(mapping.NewRange(16, "", 0, 1)))
}
