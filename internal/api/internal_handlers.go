package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/novaline-edu/enrollgate/internal/api/helpers"
	"github.com/novaline-edu/enrollgate/internal/apierr"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// requireInternalToken protects the internal surface (spec.md §6
// "Protected by a static shared secret (internal token) transmitted in
// a header"). This is the only auth gate on that surface; it never
// runs AuthMiddleware since the caller is another service, not a user.
func (s *Server) requireInternalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.internalToken)) != 1 {
			helpers.RespondError(w, apierr.KindUnauthorized, "invalid internal token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CourseMutateRequest backs POST /internal/course/mutate: the course
// catalog management surface other services use to create a course.
// Every call inserts a new course; existing courses are not modified.
// It does not touch Enrollment — that is the Dispatcher's
// exclusive write path under the per-course lock (spec.md §6 "This is
// the only component allowed to mutate course state" refers to
// enrollment counts, not catalog metadata).
type CourseMutateRequest struct {
	Name      string   `json:"name"`
	Credit    int      `json:"credit"`
	Type      string   `json:"type"`
	TeacherID *int64   `json:"teacher_id,omitempty"`
	TimeBegin int      `json:"time_begin"`
	TimeEnd   int      `json:"time_end"`
	Schedule  []int16  `json:"schedule"`
	Location  string   `json:"location"`
	Capacity  int      `json:"capacity"`
	Tags      []string `json:"tags,omitempty"`
}

func (s *Server) CourseMutate(w http.ResponseWriter, r *http.Request) {
	var req CourseMutateRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	id, err := s.courses.CreateCourse(r.Context(), storage.Course{
		Name:      req.Name,
		Credit:    req.Credit,
		Type:      req.Type,
		TeacherID: req.TeacherID,
		TimeBegin: req.TimeBegin,
		TimeEnd:   req.TimeEnd,
		Schedule:  req.Schedule,
		Location:  req.Location,
		Capacity:  req.Capacity,
		Tags:      req.Tags,
	})
	if err != nil {
		helpers.RespondAPIError(w, apierr.Wrap(apierr.KindStorageUnavailable, "failed to persist course", err))
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, map[string]int64{"course_id": id})
}

// ListCourses backs the supplemental GET /courses catalog surface.
func (s *Server) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.courses.ListCourses(r.Context())
	if err != nil {
		helpers.RespondAPIError(w, apierr.Wrap(apierr.KindStorageUnavailable, "failed to list courses", err))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, courses)
}
