package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(cause, ErrInternal.Code, ErrInternal.Status, "solve aborted")

	assert.Equal(t, "solve aborted: disk on fire", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestFromErrorPassesThroughTypedErrors(t *testing.T) {
	err := Clone(ErrInfeasible, "")
	got := FromError(fmt.Errorf("outer: %w", err))
	require.NotNil(t, got)
	assert.Equal(t, ErrInfeasible.Code, got.Code)
	assert.Equal(t, StatusInfeasible, got.Status)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("mystery"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, StatusInternal, got.Status)
}

func TestCloneOverridesMessageOnly(t *testing.T) {
	clone := Clone(ErrValidation, "bad slot id")
	assert.Equal(t, "bad slot id", clone.Message)
	assert.Equal(t, ErrValidation.Code, clone.Code)
	assert.Equal(t, "validation failed", ErrValidation.Message, "the sentinel stays untouched")
}

func TestHasCode(t *testing.T) {
	err := Clone(ErrNoSchedulableExams, "")
	assert.True(t, HasCode(err, ErrNoSchedulableExams))
	assert.False(t, HasCode(err, ErrTimeout))
	assert.False(t, HasCode(nil, ErrTimeout))
	assert.False(t, HasCode(errors.New("plain"), ErrTimeout))
}
