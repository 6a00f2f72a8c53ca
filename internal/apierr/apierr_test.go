package apierr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/novaline-edu/enrollgate/internal/apierr"
)

func TestError_MessageNeverLeaksCause(t *testing.T) {
	cause := errors.New("pq: connection reset by peer")
	err := apierr.Wrap(apierr.KindStorageUnavailable, "try again later", cause)

	assert.Equal(t, "StorageUnavailable: try again later", err.Error())
	assert.NotContains(t, err.Error(), "connection reset")
}

func TestError_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("boom")
	err := apierr.Wrap(apierr.KindIntegrityViolation, "internal error", cause)

	assert.ErrorIs(t, err, cause)
}

func TestError_IsMatchesOnKindOnly(t *testing.T) {
	a := apierr.New(apierr.KindCourseFull, "course A is full")
	b := apierr.New(apierr.KindCourseFull, "course B is full")
	c := apierr.New(apierr.KindCourseNotFound, "course C missing")

	assert.ErrorIs(t, a, b, "same Kind, different message, should still match")
	assert.False(t, errors.Is(a, c))
}

func TestAs_DefaultsUnclassifiedErrorsToIntegrityViolation(t *testing.T) {
	assert.Equal(t, apierr.KindIntegrityViolation, apierr.As(errors.New("unclassified")))
	assert.Equal(t, apierr.Kind(""), apierr.As(nil))
}

func TestAs_ExtractsKindThroughWrapping(t *testing.T) {
	err := apierr.Wrap(apierr.KindRateLimited, "slow down", errors.New("bucket empty"))
	assert.Equal(t, apierr.KindRateLimited, apierr.As(err))
}

func TestKind_RetryableOnlyStorageUnavailable(t *testing.T) {
	assert.True(t, apierr.KindStorageUnavailable.Retryable())
	assert.False(t, apierr.KindCourseFull.Retryable())
	assert.False(t, apierr.KindQueueFull.Retryable())
	assert.False(t, apierr.KindTransientExhausted.Retryable())
}
