package helpers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/novaline-edu/enrollgate/internal/apierr"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// errorEnvelope is the wire shape of spec.md §6 "Error envelope": every
// failure returns {error_kind, message}.
type errorEnvelope struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// statusForKind implements spec.md §7's propagation table: 401 for
// auth, 403 for role, 404 for not-found, 409 for eligibility at enqueue
// time, 429 for rate limiting, 503 for shutdown/queue-full.
func statusForKind(kind apierr.Kind) int {
	switch kind {
	case apierr.KindBadCredentials, apierr.KindBadTOTP, apierr.KindTokenInvalid, apierr.KindTokenExpired, apierr.KindRevoked, apierr.KindInactive:
		return http.StatusUnauthorized
	case apierr.KindCodeInvalid, apierr.KindUsernameTaken:
		return http.StatusBadRequest
	case apierr.KindUnauthorized:
		return http.StatusForbidden
	case apierr.KindCourseNotFound:
		return http.StatusNotFound
	case apierr.KindAlreadyEnrolled, apierr.KindNotEnrolled, apierr.KindCourseFull, apierr.KindTimeConflict, apierr.KindTagIneligible:
		return http.StatusConflict
	case apierr.KindRateLimited:
		return http.StatusTooManyRequests
	case apierr.KindQueueFull, apierr.KindShuttingDown, apierr.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case apierr.KindCancelled:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// RespondAPIError writes the stable error envelope for any error in the
// apierr taxonomy, choosing the HTTP status per spec.md §7. Errors
// outside the taxonomy are logged and reported as IntegrityViolation
// without ever surfacing the underlying message to the client.
func RespondAPIError(w http.ResponseWriter, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		slog.Error("unclassified error reached the http layer", "error", err)
		RespondJSON(w, http.StatusInternalServerError, errorEnvelope{
			ErrorKind: string(apierr.KindIntegrityViolation),
			Message:   "internal error",
		})
		return
	}
	RespondJSON(w, statusForKind(apiErr.Kind), errorEnvelope{
		ErrorKind: string(apiErr.Kind),
		Message:   apiErr.Message,
	})
}

// RespondError writes a plain error envelope for a known kind and
// message without wrapping, useful where the handler already knows the
// right kind (e.g. malformed JSON bodies).
func RespondError(w http.ResponseWriter, kind apierr.Kind, message string) {
	RespondJSON(w, statusForKind(kind), errorEnvelope{ErrorKind: string(kind), Message: message})
}
