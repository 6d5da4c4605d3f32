package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapBuildsStandardMessage(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Store", "Load", "read file")

	require.Error(t, err)
	assert.Equal(t, "Store.Load: read file failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("boom")

	transient := WrapTransient(base, "c", "m", "a")
	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))
	assert.False(t, IsInvalid(transient))
	assert.ErrorIs(t, transient, base)

	fatal := WrapFatal(base, "c", "m", "a")
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))

	invalid := WrapInvalid(base, "c", "m", "a")
	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsTransient(invalid))
}

func TestClassificationSurvivesFurtherWrapping(t *testing.T) {
	inner := WrapInvalid(ErrInvalidMapping, "Mapping", "Validate", "bounds check")
	outer := fmt.Errorf("register type x: %w", inner)

	assert.True(t, IsInvalid(outer))
	assert.ErrorIs(t, outer, ErrInvalidMapping)
}

func TestSentinelFallbackClassification(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("kv get: %w", ErrConnectionLost)))
	assert.True(t, IsInvalid(fmt.Errorf("load: %w", ErrPersistenceParse)))
	assert.True(t, IsFatal(fmt.Errorf("setup: %w", ErrInvalidConfig)))
}

func TestPatternFallbackClassification(t *testing.T) {
	assert.True(t, IsTransient(stderrors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(stderrors.New("request timeout")))
	assert.False(t, IsTransient(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(WrapTransient(stderrors.New("x"), "c", "m", "a")))
	assert.Equal(t, ErrorFatal, Classify(WrapFatal(stderrors.New("x"), "c", "m", "a")))
	assert.Equal(t, ErrorInvalid, Classify(WrapInvalid(stderrors.New("x"), "c", "m", "a")))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("something novel")), "unknown errors default to retryable")
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
}

func TestShouldRetry(t *testing.T) {
	rc := DefaultRetryConfig()

	assert.True(t, rc.ShouldRetry(WrapTransient(stderrors.New("x"), "c", "m", "a"), 1))
	assert.False(t, rc.ShouldRetry(WrapFatal(stderrors.New("x"), "c", "m", "a"), 1))
	assert.False(t, rc.ShouldRetry(WrapInvalid(stderrors.New("x"), "c", "m", "a"), 1))
	assert.False(t, rc.ShouldRetry(WrapTransient(stderrors.New("x"), "c", "m", "a"), rc.MaxRetries+1))
}

func TestBackoffDelayGrows(t *testing.T) {
	rc := DefaultRetryConfig()

	d1 := rc.BackoffDelay(1)
	d2 := rc.BackoffDelay(2)
	d3 := rc.BackoffDelay(3)

	assert.Greater(t, d2, d1)
	assert.Greater(t, d3, d2)
	assert.LessOrEqual(t, rc.BackoffDelay(100), rc.MaxDelay)
}
