package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrap_Format(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "HTTPStore", "GetEntity", "fetch entity")

	require.Error(t, err)
	assert.Equal(t, "HTTPStore.GetEntity: fetch entity failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestWrapTransient_Classification(t *testing.T) {
	err := WrapTransient(ErrStoreUnavailable, "HTTPStore", "PatchEntity", "apply patch")

	assert.True(t, IsTransient(err))
	assert.False(t, IsInvalid(err))
	assert.False(t, IsFatal(err))
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestWrapInvalid_Classification(t *testing.T) {
	err := WrapInvalid(ErrStoreRejected, "HTTPStore", "PatchEntity", "apply patch")

	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, ErrorInvalid, Classify(err))
}

func TestIsTransient_Sentinels(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsTransient(ErrStoreUnavailable))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(errors.New("backend temporarily unavailable")))
	assert.False(t, IsTransient(errors.New("bad rule shape")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrEntityNotFound))
	assert.True(t, IsNotFound(ErrSubscriptionNotFound))
	assert.True(t, IsNotFound(ErrRuleNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", ErrRuleNotFound)))
	assert.False(t, IsNotFound(ErrStoreRejected))
	assert.False(t, IsNotFound(nil))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	base := errors.New("root cause")
	err := WrapFatal(base, "Consumer", "Start", "open stream")

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorFatal, ce.Class)
	assert.Equal(t, "Consumer", ce.Component)
	assert.True(t, errors.Is(err, base))
	assert.True(t, IsFatal(err))
}
