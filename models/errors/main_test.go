package errors

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := Fatal("stage", "file %d already loaded", 3)
	wrapped := pkgerrors.Wrap(err, "loading")
	wrapped = fmt.Errorf("outer: %w", wrapped)

	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, FatalPrecondition, KindOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
	assert.Contains(t, wrapped.Error(), "file 3 already loaded")
}

func TestUntaggedErrorsAreRetryable(t *testing.T) {
	assert.True(t, IsRetryable(pkgerrors.New("boom")))
	assert.True(t, IsRetryable(Wrap(Transient, "merge", pkgerrors.New("io"))))
	assert.False(t, IsRetryable(Consistency("check", "mismatch")))
	assert.Nil(t, Wrap(Transient, "merge", nil))
}

func TestCauseReachesRoot(t *testing.T) {
	err := Wrap(Transient, "put", ErrVersionConflict)
	assert.Equal(t, ErrVersionConflict, pkgerrors.Cause(err))
	assert.True(t, pkgerrors.Is(err, ErrVersionConflict))
}
