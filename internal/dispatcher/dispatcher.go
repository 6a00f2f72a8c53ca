package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/novaline-edu/enrollgate/internal/apierr"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// Config holds the Dispatcher's tunables, all sourced from
// internal/config (spec.md §9 dynamic configuration record).
type Config struct {
	WorkerCount     int
	MaxQueueDepth   int
	MaxTaskAttempts int
	TaskDeadline    time.Duration
	ShutdownGrace   time.Duration
}

// Dispatcher owns the priority queue, the worker pool, and the
// per-course mutual-exclusion map that is, per spec.md §5, "the single
// correctness primitive guaranteeing that selected_count never exceeds
// capacity."
type Dispatcher struct {
	cfg     Config
	queue   *Queue
	courses *storage.CourseStore
	users   *storage.CredentialStore
	tasks   *storage.TaskStore
	logger  *slog.Logger

	lockMu     sync.Mutex
	courseLock map[int64]*sync.Mutex

	runningCount int64
	avgLatencyMu sync.Mutex
	avgLatencyMs float64

	wg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, courses *storage.CourseStore, users *storage.CredentialStore, tasks *storage.TaskStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		queue:      NewQueue(cfg.MaxQueueDepth),
		courses:    courses,
		users:      users,
		tasks:      tasks,
		logger:     logger,
		courseLock: make(map[int64]*sync.Mutex),
	}
}

// Start launches the worker pool via errgroup, the idiomatic Go
// analogue of the teacher's signal-driven graceful shutdown in
// cmd/api/main.go.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(d.ctx)
	d.wg = g
	for i := 0; i < d.cfg.WorkerCount; i++ {
		workerID := i
		g.Go(func() error {
			d.runWorker(gctx, workerID)
			return nil
		})
	}
}

// Shutdown implements spec.md §4.E "Shutdown": stop accepting new
// tasks, wait a grace period for in-flight tasks, then mark any still
// pending as failed(ShuttingDown).
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.queue.Close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGrace):
		d.logger.Warn("dispatcher shutdown grace period elapsed, forcing stop")
		d.cancel()
		<-done
	}

	for {
		task, ok := d.queue.Dequeue()
		if !ok {
			break
		}
		d.finish(ctx, task, storage.TaskFailed, string(apierr.KindShuttingDown))
	}
}

// Submit implements spec.md §4.E "Admission to queue": persists the
// task then enqueues it in memory.
func (d *Dispatcher) Submit(ctx context.Context, t *Task) error {
	persisted := storage.Task{
		ID:          uuid.MustParse(t.ID),
		UserID:      t.UserID,
		CourseID:    t.CourseID,
		Kind:        storage.TaskKind(t.Kind),
		Priority:    t.Priority,
		Status:      storage.TaskPending,
		SubmittedAt: time.Unix(0, t.SubmittedAt),
		SubmittedBy: t.SubmittedBy,
	}
	if err := d.tasks.Create(ctx, persisted); err != nil {
		return err
	}
	return d.queue.Enqueue(t)
}

// QueueStats backs GET /queue/stats.
type QueueStats struct {
	Pending       int
	Running       int
	AvgLatencyMs  float64
}

func (d *Dispatcher) Stats() QueueStats {
	d.avgLatencyMu.Lock()
	avg := d.avgLatencyMs
	d.avgLatencyMu.Unlock()
	return QueueStats{
		Pending:      d.queue.Len(),
		Running:      int(atomic.LoadInt64(&d.runningCount)),
		AvgLatencyMs: avg,
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok := d.queue.Dequeue()
		if !ok {
			return
		}
		d.process(ctx, task, id)
	}
}

// process implements the worker algorithm of spec.md §4.E step by
// step: mark running, acquire the per-course lock, commit the
// transactional mutation, release, and record the outcome.
func (d *Dispatcher) process(ctx context.Context, task *Task, workerID int) {
	atomic.AddInt64(&d.runningCount, 1)
	defer atomic.AddInt64(&d.runningCount, -1)

	start := time.Now()
	taskID := uuid.MustParse(task.ID)
	task.AttemptCount++
	if err := d.tasks.MarkRunning(ctx, taskID, task.AttemptCount); err != nil {
		d.logger.Error("mark task running failed", "task_id", task.ID, "err", err)
	}

	lock := d.lockFor(task.CourseID)
	lock.Lock()
	err := d.commit(ctx, task)
	lock.Unlock()

	d.recordLatency(time.Since(start))

	if err == nil {
		d.finish(ctx, task, storage.TaskSucceeded, "")
		return
	}

	kind := classify(err)
	if kind.Retryable() && task.AttemptCount < d.cfg.MaxTaskAttempts {
		backoff := time.Duration(100*math.Pow(2, float64(task.AttemptCount))) * time.Millisecond
		d.logger.Warn("task transient failure, retrying", "task_id", task.ID, "attempt", task.AttemptCount, "backoff", backoff)
		time.AfterFunc(backoff, func() {
			if enqueueErr := d.queue.Enqueue(task); enqueueErr != nil {
				d.finish(ctx, task, storage.TaskFailed, string(apierr.KindQueueFull))
			}
		})
		return
	}

	if kind.Retryable() {
		d.finish(ctx, task, storage.TaskFailed, string(apierr.KindTransientExhausted))
		return
	}
	d.finish(ctx, task, storage.TaskFailed, string(kind))
}

// commit runs the single data-store transaction of spec.md §4.E step 3
// under the per-course lock already held by the caller.
func (d *Dispatcher) commit(ctx context.Context, task *Task) error {
	taskCtx, cancel := context.WithTimeout(ctx, d.cfg.TaskDeadline)
	defer cancel()

	switch storage.TaskKind(task.Kind) {
	case storage.TaskSelect:
		user, err := d.users.GetUserByID(taskCtx, task.UserID)
		if err != nil {
			return err
		}
		return d.courses.Select(taskCtx, task.UserID, task.CourseID, user.Tags)
	case storage.TaskDeselect:
		return d.courses.Deselect(taskCtx, task.UserID, task.CourseID)
	default:
		return errors.New("unknown task kind")
	}
}

func (d *Dispatcher) finish(ctx context.Context, task *Task, status storage.TaskStatus, failureKind string) {
	taskID := uuid.MustParse(task.ID)
	if err := d.tasks.Complete(ctx, taskID, status, failureKind); err != nil {
		d.logger.Error("mark task complete failed", "task_id", task.ID, "err", err)
	}
}

func (d *Dispatcher) lockFor(courseID int64) *sync.Mutex {
	d.lockMu.Lock()
	defer d.lockMu.Unlock()
	lock, ok := d.courseLock[courseID]
	if !ok {
		lock = &sync.Mutex{}
		d.courseLock[courseID] = lock
	}
	return lock
}

func (d *Dispatcher) recordLatency(elapsed time.Duration) {
	const alpha = 0.2 // exponential moving average weight
	ms := float64(elapsed.Milliseconds())
	d.avgLatencyMu.Lock()
	if d.avgLatencyMs == 0 {
		d.avgLatencyMs = ms
	} else {
		d.avgLatencyMs = alpha*ms + (1-alpha)*d.avgLatencyMs
	}
	d.avgLatencyMu.Unlock()
}

// classify maps a storage-layer error to the shared apierr taxonomy so
// failure_kind and the HTTP error envelope share one vocabulary.
func classify(err error) apierr.Kind {
	switch {
	case errors.Is(err, storage.ErrAlreadyEnrolled):
		return apierr.KindAlreadyEnrolled
	case errors.Is(err, storage.ErrNotEnrolled):
		return apierr.KindNotEnrolled
	case errors.Is(err, storage.ErrCourseFull):
		return apierr.KindCourseFull
	case errors.Is(err, storage.ErrTimeConflict):
		return apierr.KindTimeConflict
	case errors.Is(err, storage.ErrTagIneligible):
		return apierr.KindTagIneligible
	case errors.Is(err, storage.ErrCourseNotFound):
		return apierr.KindCourseNotFound
	default:
		return apierr.KindStorageUnavailable
	}
}
