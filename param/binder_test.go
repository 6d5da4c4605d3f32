package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/paramsync/persist"
)

type synthParams struct {
	Cutoff float64
	Res    float64
	Drive  bool
	Preset string
	Voices int
}

func newSynthBinder(t *testing.T, p *synthParams) *Binder {
	t.Helper()
	b := NewBinder("synth").
		Range("cutoff", 16, 20.0, 20000.0, &p.Cutoff).
		Range("resonance", 17, 0.0, 1.0, &p.Res).
		Toggle("drive", 24, &p.Drive).
		String("preset", &p.Preset).
		Int("voices", &p.Voices)
	require.NoError(t, b.Err())
	return b
}

func TestBinderBuildsTable(t *testing.T) {
	p := &synthParams{}
	b := newSynthBinder(t, p)

	assert.Equal(t, "synth", b.TypeName())
	assert.Equal(t, 3, b.Table().Len())
	assert.ElementsMatch(t, []uint8{16, 17, 24}, b.Table().Controls())
}

func TestBinderConstructionErrors(t *testing.T) {
	assert.Error(t, NewBinder("").Err())

	var f float64
	assert.Error(t, NewBinder("x").Range("", 16, 0, 1, &f).Err())
	assert.Error(t, NewBinder("x").Range("level", 16, 1, 1, &f).Err())
	assert.Error(t, NewBinder("x").Range("level", 16, 0, 1, nil).Err())
	assert.Error(t, NewBinder("x").Toggle("on", 24, nil).Err())
	assert.Error(t, NewBinder("x").Float("gain", nil).Err())

	// First error sticks even if later bindings are fine.
	b := NewBinder("x").Range("bad", 16, 5, 5, &f).Range("good", 17, 0, 1, &f)
	assert.Error(t, b.Err())
}

func TestApplyControlRangeEpsilon(t *testing.T) {
	p := &synthParams{Cutoff: 1000.0}
	b := newSynthBinder(t, p)

	assert.True(t, b.ApplyControl(16, 500.0))
	assert.Equal(t, 500.0, p.Cutoff)

	// Identical resend is a no-op.
	assert.False(t, b.ApplyControl(16, 500.0))

	// Sub-epsilon wiggle is a no-op too.
	assert.False(t, b.ApplyControl(16, 500.0+1e-12))
	assert.Equal(t, 500.0, p.Cutoff)
}

func TestApplyControlToggleLatch(t *testing.T) {
	p := &synthParams{}
	b := newSynthBinder(t, p)

	// Press flips once.
	assert.True(t, b.ApplyControl(24, 0.8))
	assert.True(t, p.Drive)

	// Holding above the threshold does not flip again.
	assert.False(t, b.ApplyControl(24, 0.8))
	assert.False(t, b.ApplyControl(24, 1.0))
	assert.True(t, p.Drive)

	// Release re-arms, next press flips back.
	assert.False(t, b.ApplyControl(24, 0.2))
	assert.True(t, b.ApplyControl(24, 0.9))
	assert.False(t, p.Drive)
}

func TestApplyControlThresholdBoundary(t *testing.T) {
	p := &synthParams{}
	b := newSynthBinder(t, p)

	// Exactly 0.5 is not a press.
	assert.False(t, b.ApplyControl(24, 0.5))
	assert.False(t, p.Drive)

	assert.True(t, b.ApplyControl(24, 0.500001))
	assert.True(t, p.Drive)
}

func TestApplyControlUnknownControl(t *testing.T) {
	p := &synthParams{}
	b := newSynthBinder(t, p)

	assert.False(t, b.ApplyControl(99, 1.0))
}

func TestDocumentRoundTrip(t *testing.T) {
	p := &synthParams{Cutoff: 440.0, Res: 0.7, Drive: true, Preset: "lead", Voices: 8}
	b := newSynthBinder(t, p)

	doc := b.ToDocument()
	assert.Equal(t, 5, len(doc))

	restored := &synthParams{}
	rb := newSynthBinder(t, restored)
	rb.FromDocument(doc)

	assert.Equal(t, *p, *restored)
}

func TestFromDocumentPartialAndMismatched(t *testing.T) {
	p := &synthParams{Cutoff: 1000.0, Preset: "init", Voices: 4}
	b := newSynthBinder(t, p)

	doc := persist.NewDocument()
	doc.Set("cutoff", 2000.0)
	doc.Set("preset", 12345)  // wrong type, must be ignored
	doc.Set("unknown", "key") // unknown field, must be ignored

	b.FromDocument(doc)

	assert.Equal(t, 2000.0, p.Cutoff)
	assert.Equal(t, "init", p.Preset, "type-mismatched field keeps prior value")
	assert.Equal(t, 4, p.Voices, "absent field keeps prior value")
}

func TestBinderReusedControlLastWins(t *testing.T) {
	var a, b float64
	binder := NewBinder("x").
		Range("first", 16, 0, 1, &a).
		Range("second", 16, 0, 100, &b)
	require.NoError(t, binder.Err())

	assert.True(t, binder.ApplyControl(16, 50.0))
	assert.Equal(t, 0.0, a, "displaced binding no longer receives input")
	assert.Equal(t, 50.0, b)

	// Both fields still persist.
	doc := binder.ToDocument()
	assert.True(t, doc.Has("first"))
	assert.True(t, doc.Has("second"))
}
