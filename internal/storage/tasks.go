package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskStore is the durable journal for spec.md §3 "Task": the
// Dispatcher's in-memory queue owns live scheduling, but every state
// transition is written here. GET /task/{task_id} always reads this
// table (the Dispatcher keeps no in-memory map of terminal tasks), so
// polling works across process restarts until SweepExpired removes the
// row.
type TaskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Create persists a newly admitted task as pending.
func (s *TaskStore) Create(ctx context.Context, t Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, user_id, course_id, kind, priority, status, submitted_at, attempt_count, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.UserID, t.CourseID, string(t.Kind), t.Priority, string(TaskPending), t.SubmittedAt, t.AttemptCount, t.SubmittedBy)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// MarkRunning transitions a task to running and bumps attempt_count.
func (s *TaskStore) MarkRunning(ctx context.Context, id uuid.UUID, attempt int) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET status = $1, started_at = $2, attempt_count = $3 WHERE id = $4`,
		string(TaskRunning), now, attempt, id)
	return err
}

// Complete transitions a task to its terminal state.
func (s *TaskStore) Complete(ctx context.Context, id uuid.UUID, status TaskStatus, failureKind string) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET status = $1, failure_kind = NULLIF($2, ''), completed_at = $3 WHERE id = $4`,
		string(status), failureKind, now, id)
	return err
}

// Get returns a single task by ID, used by GET /task/{task_id}.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	var t Task
	var kind, status string
	var failureKind *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, course_id, kind, priority, status, failure_kind, submitted_at, started_at, completed_at, attempt_count, submitted_by
		FROM tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.CourseID, &kind, &t.Priority, &status, &failureKind, &t.SubmittedAt, &t.StartedAt, &t.CompletedAt, &t.AttemptCount, &t.SubmittedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.Kind = TaskKind(kind)
	t.Status = TaskStatus(status)
	if failureKind != nil {
		t.FailureKind = *failureKind
	}
	return &t, nil
}

// SweepExpired deletes terminal tasks past their TTL, used by the
// janitor loop (spec.md §4.E "retained ... with TTL (e.g., 24h)").
func (s *TaskStore) SweepExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}
