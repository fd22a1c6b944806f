package lakeerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
)

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, lakeerrors.Wrap(lakeerrors.NotFound, "op", nil))
}

func TestWrapAttachesKind(t *testing.T) {
	cause := errors.New("boom")
	err := lakeerrors.Wrap(lakeerrors.Transient, "objectstore.Get", cause)
	assert.True(t, lakeerrors.Is(err, lakeerrors.Transient))
	assert.False(t, lakeerrors.Is(err, lakeerrors.NotFound))
	assert.ErrorIs(t, err, cause)
}

func TestWrapKeyIncludesKeyInMessage(t *testing.T) {
	err := lakeerrors.WrapKey(lakeerrors.NotFound, "archive.GetFile", "abc123", errors.New("missing"))
	assert.Contains(t, err.Error(), "abc123")
	assert.True(t, lakeerrors.Is(err, lakeerrors.NotFound))
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, lakeerrors.Is(errors.New("plain"), lakeerrors.NotFound))
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("root cause")
	err := lakeerrors.Wrap(lakeerrors.Corruption, "op", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}
