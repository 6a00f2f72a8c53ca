// Package funnel implements the Admission Funnel (spec.md §4.D): the
// transport-agnostic request path that authenticates a caller, applies
// both rate-limit buckets, performs coarse admission checks and hands
// the intent to the Selection Dispatcher as a Task. Like the teacher's
// AuthService, it is constructed over narrow interfaces so the HTTP
// layer (internal/api) stays a thin chi-router adapter.
package funnel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/novaline-edu/enrollgate/internal/apierr"
	"github.com/novaline-edu/enrollgate/internal/auth"
	"github.com/novaline-edu/enrollgate/internal/dispatcher"
	"github.com/novaline-edu/enrollgate/internal/ratelimit"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// Priorities per spec.md §8 scenario 2 "Freed-seat priority": a
// deselect always outranks a select so seats free up before new
// students compete for them.
const (
	priorityDeselect = 10
	prioritySelect   = 0
)

// AccessVerifier is the narrow slice of auth.AuthService the Funnel
// needs.
type AccessVerifier interface {
	VerifyAccess(tokenString string) (*auth.Claims, error)
}

// CourseLookup is the narrow slice of storage.CourseStore the Funnel
// needs for its coarse pre-check (spec.md §4.D doesn't re-validate
// capacity here — that's the Dispatcher's job under the course lock —
// but a nonexistent course should fail fast rather than occupy a queue
// slot).
type CourseLookup interface {
	GetCourse(ctx context.Context, courseID int64) (*storage.Course, error)
}

// TaskSubmitter is the narrow slice of dispatcher.Dispatcher the
// Funnel needs.
type TaskSubmitter interface {
	Submit(ctx context.Context, t *dispatcher.Task) error
	Stats() dispatcher.QueueStats
}

// TaskReader backs GET /task/{task_id}.
type TaskReader interface {
	Get(ctx context.Context, id uuid.UUID) (*storage.Task, error)
}

// Funnel is the Admission Funnel.
type Funnel struct {
	auth     AccessVerifier
	limiter  *ratelimit.Limiter
	courses  CourseLookup
	work     TaskSubmitter
	tasks    TaskReader
}

func New(auth AccessVerifier, limiter *ratelimit.Limiter, courses CourseLookup, work TaskSubmitter, tasks TaskReader) *Funnel {
	return &Funnel{auth: auth, limiter: limiter, courses: courses, work: work, tasks: tasks}
}

// Identity is the resolved caller after access-token validation.
type Identity struct {
	UserID int64
	Role   string
}

// Authenticate validates the bearer token and resolves the caller's
// identity. The HTTP handlers in internal/api do not call it: they read
// the identity that middleware.AuthMiddleware puts in the request
// context.
func (f *Funnel) Authenticate(tokenString string) (*Identity, error) {
	claims, err := f.auth.VerifyAccess(tokenString)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTokenInvalid, "invalid or expired access token", err)
	}
	return &Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// CheckRateLimit implements spec.md §4.C: "checks two buckets in
// order: the client-IP bucket ... then the authenticated-user bucket."
// Either denial is reported as RateLimited with a retry-after hint.
func (f *Funnel) CheckRateLimit(clientIP string, userID int64) (retryAfter time.Duration, err error) {
	if ok, wait := f.limiter.Allow(ratelimit.ScopeIP, clientIP); !ok {
		return wait, apierr.New(apierr.KindRateLimited, "too many requests from this address")
	}
	if ok, wait := f.limiter.Allow(ratelimit.ScopeUser, fmt.Sprintf("%d", userID)); !ok {
		return wait, apierr.New(apierr.KindRateLimited, "too many requests for this account")
	}
	return 0, nil
}

// SubmitResult backs POST /select and POST /deselect.
type SubmitResult struct {
	TaskID             string
	EstimatedPosition  int
}

// SubmitSelect implements POST /select: coarse-validates the course
// exists, then hands a select Task to the Dispatcher.
func (f *Funnel) SubmitSelect(ctx context.Context, studentID, courseID int64) (*SubmitResult, error) {
	return f.submit(ctx, studentID, courseID, "select", prioritySelect, nil)
}

// SubmitDeselect implements POST /deselect.
func (f *Funnel) SubmitDeselect(ctx context.Context, studentID, courseID int64) (*SubmitResult, error) {
	return f.submit(ctx, studentID, courseID, "deselect", priorityDeselect, nil)
}

// SubmitOnBehalf implements the admin-only impersonation surface
// (spec.md §9 Open Question (b)): the acting admin is recorded on the
// Task for auditability, but the task still runs under the student's
// identity for eligibility checks.
func (f *Funnel) SubmitOnBehalf(ctx context.Context, adminID, studentID, courseID int64, kind string) (*SubmitResult, error) {
	priority := prioritySelect
	if kind == "deselect" {
		priority = priorityDeselect
	}
	return f.submit(ctx, studentID, courseID, kind, priority, &adminID)
}

func (f *Funnel) submit(ctx context.Context, studentID, courseID int64, kind string, priority int, submittedBy *int64) (*SubmitResult, error) {
	if _, err := f.courses.GetCourse(ctx, courseID); err != nil {
		return nil, apierr.Wrap(apierr.KindCourseNotFound, "course does not exist", err)
	}

	task := &dispatcher.Task{
		ID:          uuid.NewString(),
		UserID:      studentID,
		CourseID:    courseID,
		Kind:        kind,
		Priority:    priority,
		SubmittedAt: time.Now().UnixNano(),
		SubmittedBy: submittedBy,
	}

	position := f.work.Stats().Pending
	if err := f.work.Submit(ctx, task); err != nil {
		return nil, apierr.Wrap(apierr.KindQueueFull, "admission queue is full", err)
	}

	return &SubmitResult{TaskID: task.ID, EstimatedPosition: position}, nil
}

// TaskStatus backs GET /task/{task_id}. Authorization (only the owning
// student or an admin may poll) is enforced by the caller, since it
// needs the caller's user ID and role.
func (f *Funnel) TaskStatus(ctx context.Context, taskID string) (*storage.Task, error) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		// A malformed ID can never correspond to a task; report it the
		// same way as a genuine lookup miss rather than as an internal
		// IntegrityViolation (that kind is for server-side faults, not
		// caller input).
		return nil, apierr.Wrap(apierr.KindCourseNotFound, "task not found", err)
	}
	t, err := f.tasks.Get(ctx, id)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindCourseNotFound, "task not found", err)
	}
	return t, nil
}

// QueueStats backs GET /queue/stats.
func (f *Funnel) QueueStats() dispatcher.QueueStats {
	return f.work.Stats()
}
