package funnel_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaline-edu/enrollgate/internal/apierr"
	"github.com/novaline-edu/enrollgate/internal/auth"
	"github.com/novaline-edu/enrollgate/internal/dispatcher"
	"github.com/novaline-edu/enrollgate/internal/funnel"
	"github.com/novaline-edu/enrollgate/internal/ratelimit"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

type fakeVerifier struct {
	claims *auth.Claims
	err    error
}

func (f *fakeVerifier) VerifyAccess(string) (*auth.Claims, error) { return f.claims, f.err }

type fakeCourses struct {
	courses map[int64]*storage.Course
}

func (f *fakeCourses) GetCourse(_ context.Context, courseID int64) (*storage.Course, error) {
	c, ok := f.courses[courseID]
	if !ok {
		return nil, storage.ErrCourseNotFound
	}
	return c, nil
}

type fakeWork struct {
	submitted []*dispatcher.Task
	submitErr error
	stats     dispatcher.QueueStats
}

func (f *fakeWork) Submit(_ context.Context, t *dispatcher.Task) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, t)
	return nil
}

func (f *fakeWork) Stats() dispatcher.QueueStats { return f.stats }

type fakeTasks struct {
	task *storage.Task
	err  error
}

func (f *fakeTasks) Get(_ context.Context, _ uuid.UUID) (*storage.Task, error) {
	return f.task, f.err
}

func newTestFunnel(courses *fakeCourses, work *fakeWork) *funnel.Funnel {
	limiter := ratelimit.New(map[ratelimit.Scope]ratelimit.Config{
		ratelimit.ScopeIP:   {Capacity: 5, RefillRate: 5},
		ratelimit.ScopeUser: {Capacity: 5, RefillRate: 5},
	}, time.Minute)
	return funnel.New(&fakeVerifier{}, limiter, courses, work, &fakeTasks{})
}

func TestFunnel_SubmitSelect_FailsFastOnUnknownCourse(t *testing.T) {
	courses := &fakeCourses{courses: map[int64]*storage.Course{}}
	work := &fakeWork{}
	f := newTestFunnel(courses, work)

	_, err := f.SubmitSelect(context.Background(), 1, 99)
	require.Error(t, err)
	assert.Equal(t, apierr.KindCourseNotFound, apierr.As(err))
	assert.Empty(t, work.submitted, "a nonexistent course must never reach the queue")
}

func TestFunnel_SubmitSelect_EnqueuesAtSelectPriority(t *testing.T) {
	courses := &fakeCourses{courses: map[int64]*storage.Course{5: {ID: 5, Capacity: 10}}}
	work := &fakeWork{}
	f := newTestFunnel(courses, work)

	result, err := f.SubmitSelect(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Len(t, work.submitted, 1)
	assert.Equal(t, result.TaskID, work.submitted[0].ID)
	assert.Equal(t, int64(1), work.submitted[0].UserID)
	assert.Equal(t, int64(5), work.submitted[0].CourseID)
	assert.Equal(t, "select", work.submitted[0].Kind)
	assert.Nil(t, work.submitted[0].SubmittedBy)
}

func TestFunnel_SubmitDeselect_OutranksSelectPriority(t *testing.T) {
	courses := &fakeCourses{courses: map[int64]*storage.Course{5: {ID: 5, Capacity: 10}}}
	work := &fakeWork{}
	f := newTestFunnel(courses, work)

	_, err := f.SubmitSelect(context.Background(), 1, 5)
	require.NoError(t, err)
	_, err = f.SubmitDeselect(context.Background(), 1, 5)
	require.NoError(t, err)

	require.Len(t, work.submitted, 2)
	assert.Greater(t, work.submitted[1].Priority, work.submitted[0].Priority)
}

func TestFunnel_SubmitOnBehalf_RecordsActingAdmin(t *testing.T) {
	courses := &fakeCourses{courses: map[int64]*storage.Course{5: {ID: 5, Capacity: 10}}}
	work := &fakeWork{}
	f := newTestFunnel(courses, work)

	_, err := f.SubmitOnBehalf(context.Background(), 900, 1, 5, "select")
	require.NoError(t, err)
	require.Len(t, work.submitted, 1)

	task := work.submitted[0]
	assert.Equal(t, int64(1), task.UserID, "the task runs under the student's identity")
	require.NotNil(t, task.SubmittedBy)
	assert.Equal(t, int64(900), *task.SubmittedBy)
}

func TestFunnel_SubmitSelect_QueueFullSurfacesAsQueueFullKind(t *testing.T) {
	courses := &fakeCourses{courses: map[int64]*storage.Course{5: {ID: 5, Capacity: 10}}}
	work := &fakeWork{submitErr: dispatcher.ErrQueueFull}
	f := newTestFunnel(courses, work)

	_, err := f.SubmitSelect(context.Background(), 1, 5)
	require.Error(t, err)
	assert.Equal(t, apierr.KindQueueFull, apierr.As(err))
}

func TestFunnel_TaskStatus_RejectsMalformedID(t *testing.T) {
	courses := &fakeCourses{courses: map[int64]*storage.Course{}}
	f := newTestFunnel(courses, &fakeWork{})

	_, err := f.TaskStatus(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, apierr.KindCourseNotFound, apierr.As(err))
}

func TestFunnel_TaskStatus_ReturnsStoredTask(t *testing.T) {
	id := uuid.New()
	tasks := &fakeTasks{task: &storage.Task{ID: id, UserID: 1}}
	limiter := ratelimit.New(map[ratelimit.Scope]ratelimit.Config{
		ratelimit.ScopeIP:   {Capacity: 5, RefillRate: 5},
		ratelimit.ScopeUser: {Capacity: 5, RefillRate: 5},
	}, time.Minute)
	f := funnel.New(&fakeVerifier{}, limiter, &fakeCourses{}, &fakeWork{}, tasks)

	got, err := f.TaskStatus(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UserID)
}

func TestFunnel_CheckRateLimit_IPBeforeUser(t *testing.T) {
	courses := &fakeCourses{courses: map[int64]*storage.Course{}}
	work := &fakeWork{}
	limiter := ratelimit.New(map[ratelimit.Scope]ratelimit.Config{
		ratelimit.ScopeIP:   {Capacity: 1, RefillRate: 1},
		ratelimit.ScopeUser: {Capacity: 5, RefillRate: 5},
	}, time.Minute)
	f := funnel.New(&fakeVerifier{}, limiter, courses, work, nil)

	_, err := f.CheckRateLimit("1.2.3.4", 7)
	require.NoError(t, err)

	_, err = f.CheckRateLimit("1.2.3.4", 7)
	require.Error(t, err)
	assert.Equal(t, apierr.KindRateLimited, apierr.As(err))
}
