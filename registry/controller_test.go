package registry

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/paramsync/errors"
	"github.com/c360/paramsync/param"
	"github.com/c360/paramsync/persist"
)

type visualParams struct {
	Brightness float64
	Contrast   float64
	Bloom      bool
	Preset     string
}

func bindVisual(t *testing.T, p *visualParams) *param.Binder {
	t.Helper()
	b := param.NewBinder("visual").
		Range("brightness", 16, 0.0, 2.0, &p.Brightness).
		Range("contrast", 17, 0.0, 4.0, &p.Contrast).
		Toggle("bloom", 24, &p.Bloom).
		String("preset", &p.Preset)
	require.NoError(t, b.Err())
	return b
}

type audioParams struct {
	Volume float64
}

func bindAudio(t *testing.T, p *audioParams) *param.Binder {
	t.Helper()
	b := param.NewBinder("audio").
		Range("volume", 32, 0.0, 1.0, &p.Volume)
	require.NoError(t, b.Err())
	return b
}

func newTestController(t *testing.T) (*Controller, *persist.FileStore) {
	t.Helper()
	docs, err := persist.NewFileStore(filepath.Join(t.TempDir(), "params.json"), nil)
	require.NoError(t, err)

	c, err := New(Deps{Docs: docs})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, docs
}

func TestNewRequiresDocStore(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestRegisterValidation(t *testing.T) {
	c, _ := newTestController(t)

	p := &visualParams{}
	b := bindVisual(t, p)

	assert.Error(t, c.Register(nil, b.Table()))
	assert.Error(t, c.Register(b, nil))

	require.NoError(t, c.Register(b, b.Table()))

	// Same type name again is rejected.
	other := &visualParams{}
	ob := bindVisual(t, other)
	err := c.Register(ob, ob.Table())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateType)
}

func TestRegisterAfterSeedRejected(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Seed(context.Background()))

	p := &visualParams{}
	b := bindVisual(t, p)
	err := c.Register(b, b.Table())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestSeedFromEmptyStoreKeepsDefaults(t *testing.T) {
	c, _ := newTestController(t)

	p := &visualParams{Brightness: 1.0, Preset: "default"}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))

	require.NoError(t, c.Seed(context.Background()))
	assert.Equal(t, 1.0, p.Brightness)
	assert.Equal(t, "default", p.Preset)
}

func TestSeedRestoresPersistedState(t *testing.T) {
	c, docs := newTestController(t)
	ctx := context.Background()

	// Pre-populate the store as a previous run would have.
	f := persist.NewFile()
	doc := persist.NewDocument()
	doc.Set("brightness", 1.8)
	doc.Set("bloom", true)
	doc.Set("preset", "sunset")
	f.SetDocument("visual", doc)
	require.NoError(t, docs.Save(ctx, f))

	p := &visualParams{Brightness: 1.0, Preset: "default"}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))
	require.NoError(t, c.Seed(ctx))

	assert.Equal(t, 1.8, p.Brightness)
	assert.True(t, p.Bloom)
	assert.Equal(t, "sunset", p.Preset)
	assert.Equal(t, 0.0, p.Contrast, "field absent from document stays at default")
}

func TestSeedIsIdempotent(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	p := &visualParams{}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))

	require.NoError(t, c.Seed(ctx))
	p.Brightness = 1.5
	require.NoError(t, c.Seed(ctx), "second seed is a no-op")
	assert.Equal(t, 1.5, p.Brightness)
}

func TestSeedCorruptStoreFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o644))
	docs, err := persist.NewFileStore(path, nil)
	require.NoError(t, err)

	c, err := New(Deps{Docs: docs})
	require.NoError(t, err)
	defer c.Close()

	err = c.Seed(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPersistenceParse)
}

func TestUpdatePersistsControlChanges(t *testing.T) {
	c, docs := newTestController(t)
	ctx := context.Background()

	p := &visualParams{}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))
	require.NoError(t, c.Seed(ctx))

	c.Ingest(16, 0.5)
	require.NoError(t, c.Update(ctx))

	assert.InDelta(t, 1.0, p.Brightness, 1e-9)

	f, err := docs.Load(ctx)
	require.NoError(t, err)
	doc, ok := f.Document("visual")
	require.True(t, ok)
	v, ok := doc.GetFloat64("brightness")
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestUpdateWithoutChangesDoesNotSave(t *testing.T) {
	c, docs := newTestController(t)
	ctx := context.Background()

	p := &visualParams{}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))
	require.NoError(t, c.Seed(ctx))

	require.NoError(t, c.Update(ctx))

	f, err := docs.Load(ctx)
	require.NoError(t, err)
	_, ok := f.Document("visual")
	assert.False(t, ok, "no change, no write")
}

func TestUpdateDetectsDirectStructEdits(t *testing.T) {
	c, docs := newTestController(t)
	ctx := context.Background()

	p := &visualParams{}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))
	require.NoError(t, c.Seed(ctx))

	// Edit the live struct directly, as a UI would.
	p.Preset = "night"
	require.NoError(t, c.Update(ctx))

	f, err := docs.Load(ctx)
	require.NoError(t, err)
	doc, ok := f.Document("visual")
	require.True(t, ok)
	s, ok := doc.GetString("preset")
	require.True(t, ok)
	assert.Equal(t, "night", s)
}

func TestUpdateMergePreservesSiblingTypes(t *testing.T) {
	c, docs := newTestController(t)
	ctx := context.Background()

	vp := &visualParams{}
	vb := bindVisual(t, vp)
	require.NoError(t, c.Register(vb, vb.Table()))

	ap := &audioParams{}
	ab := bindAudio(t, ap)
	require.NoError(t, c.Register(ab, ab.Table()))

	require.NoError(t, c.Seed(ctx))

	c.Ingest(16, 1.0) // visual only
	require.NoError(t, c.Update(ctx))

	c.Ingest(32, 0.5) // audio only
	require.NoError(t, c.Update(ctx))

	f, err := docs.Load(ctx)
	require.NoError(t, err)
	visDoc, ok := f.Document("visual")
	require.True(t, ok, "visual document must survive the audio save")
	bright, ok := visDoc.GetFloat64("brightness")
	require.True(t, ok)
	assert.InDelta(t, 2.0, bright, 1e-9)

	audDoc, ok := f.Document("audio")
	require.True(t, ok)
	vol, ok := audDoc.GetFloat64("volume")
	require.True(t, ok)
	assert.InDelta(t, 0.5, vol, 1e-9)
}

func TestIngestFansOutByMappedControl(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	vp := &visualParams{}
	vb := bindVisual(t, vp)
	require.NoError(t, c.Register(vb, vb.Table()))

	ap := &audioParams{}
	ab := bindAudio(t, ap)
	require.NoError(t, c.Register(ab, ab.Table()))

	require.NoError(t, c.Seed(ctx))

	// Control 32 belongs to audio; visual must not move.
	c.Ingest(32, 1.0)
	require.NoError(t, c.Update(ctx))

	assert.Equal(t, 0.0, vp.Brightness)
	assert.InDelta(t, 1.0, ap.Volume, 1e-9)
}

func TestToggleRoundTripThroughController(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	p := &visualParams{}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))
	require.NoError(t, c.Seed(ctx))

	c.Ingest(24, 0.8)
	require.NoError(t, c.Update(ctx))
	assert.True(t, p.Bloom)

	// Sustained press over several cycles flips only once.
	require.NoError(t, c.Update(ctx))
	require.NoError(t, c.Update(ctx))
	assert.True(t, p.Bloom)

	c.Ingest(24, 0.0)
	require.NoError(t, c.Update(ctx))
	c.Ingest(24, 0.9)
	require.NoError(t, c.Update(ctx))
	assert.False(t, p.Bloom)
}

func TestFlushPersistsUnconditionally(t *testing.T) {
	c, docs := newTestController(t)
	ctx := context.Background()

	p := &visualParams{Preset: "default"}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))
	require.NoError(t, c.Seed(ctx))

	require.NoError(t, c.Flush(ctx))

	f, err := docs.Load(ctx)
	require.NoError(t, err)
	doc, ok := f.Document("visual")
	require.True(t, ok)
	s, ok := doc.GetString("preset")
	require.True(t, ok)
	assert.Equal(t, "default", s)
}

func TestControlsListing(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	p := &visualParams{}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))
	require.NoError(t, c.Seed(ctx))

	c.Ingest(16, 0.5)
	require.NoError(t, c.Update(ctx))

	infos := c.Controls()
	require.Len(t, infos, 3, "live mappings only; persist-only fields have no table entry")

	byField := make(map[string]ControlInfo)
	for _, info := range infos {
		byField[info.Field] = info
	}

	bright := byField["brightness"]
	assert.Equal(t, "visual", bright.Type)
	require.NotNil(t, bright.Control)
	assert.Equal(t, uint8(16), *bright.Control)
	assert.Equal(t, "range[0,2]", bright.Domain)
	assert.InDelta(t, 1.0, bright.Value, 1e-9)

	bloom := byField["bloom"]
	assert.Equal(t, "toggle", bloom.Domain)
}

type stubSource struct {
	name     string
	startErr error
	started  bool
	stopped  bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *stubSource) Stop(time.Duration) error {
	s.stopped = true
	return nil
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	c, _ := newTestController(t)

	p := &visualParams{}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))

	err := c.Run(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestRunStopsOnCancelAndFlushes(t *testing.T) {
	c, docs := newTestController(t)

	p := &visualParams{Brightness: 1.5}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))

	src := &stubSource{name: "stub"}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := c.Run(ctx, 5*time.Millisecond, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, src.started)
	assert.True(t, src.stopped)

	file, err := docs.Load(context.Background())
	require.NoError(t, err)
	doc, ok := file.Document("visual")
	require.True(t, ok, "final flush writes the document")
	got, ok := doc.GetFloat64("brightness")
	require.True(t, ok)
	assert.InDelta(t, 1.5, got, 1e-9)
}

func TestRunContinuesWhenSourceFailsToStart(t *testing.T) {
	c, _ := newTestController(t)

	p := &visualParams{}
	b := bindVisual(t, p)
	require.NoError(t, c.Register(b, b.Table()))

	bad := &stubSource{name: "bad", startErr: stderrors.New("bind failed")}
	good := &stubSource{name: "good"}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := c.Run(ctx, 5*time.Millisecond, bad, good)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, good.started)
	assert.True(t, good.stopped)
	assert.False(t, bad.stopped, "a source that never started is not stopped")
}
