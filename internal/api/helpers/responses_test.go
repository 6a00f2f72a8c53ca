package helpers_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/novaline-edu/enrollgate/internal/api/helpers"
	"github.com/novaline-edu/enrollgate/internal/apierr"
)

func TestRespondAPIError_MapsKindToStatus(t *testing.T) {
	cases := []struct {
		kind   apierr.Kind
		status int
	}{
		{apierr.KindBadCredentials, 401},
		{apierr.KindTokenExpired, 401},
		{apierr.KindUnauthorized, 403},
		{apierr.KindCourseNotFound, 404},
		{apierr.KindCourseFull, 409},
		{apierr.KindRateLimited, 429},
		{apierr.KindQueueFull, 503},
		{apierr.KindCancelled, 410},
	}

	for _, tc := range cases {
		rr := httptest.NewRecorder()
		helpers.RespondAPIError(rr, apierr.New(tc.kind, "test message"))
		assert.Equal(t, tc.status, rr.Code, "kind %s", tc.kind)
	}
}

func TestRespondAPIError_UnclassifiedErrorBecomesIntegrityViolation(t *testing.T) {
	rr := httptest.NewRecorder()
	helpers.RespondAPIError(rr, assert.AnError)

	assert.Equal(t, 500, rr.Code)
	assert.Contains(t, rr.Body.String(), string(apierr.KindIntegrityViolation))
	assert.NotContains(t, rr.Body.String(), assert.AnError.Error(), "the raw internal error must never reach the client")
}

func TestRespondError_WritesKindAndMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	helpers.RespondError(rr, apierr.KindCodeInvalid, "code expired")

	assert.Equal(t, 400, rr.Code)
	assert.Contains(t, rr.Body.String(), "CodeInvalid")
	assert.Contains(t, rr.Body.String(), "code expired")
}
