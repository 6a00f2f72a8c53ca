package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors matching the Dispatcher's worker algorithm (spec.md
// §4.E step 3) one-to-one with the apierr taxonomy.
var (
	ErrCourseNotFound   = errors.New("course not found")
	ErrAlreadyEnrolled  = errors.New("already enrolled")
	ErrNotEnrolled      = errors.New("not enrolled")
	ErrCourseFull       = errors.New("course full")
	ErrTimeConflict     = errors.New("time conflict")
	ErrTagIneligible    = errors.New("tag ineligible")
)

// CourseStore implements the authoritative mutation path of spec.md
// §4.E: every Select/Deselect commits inside one pgx transaction that
// takes a row lock on the course (`SELECT ... FOR UPDATE`), belt and
// braces alongside the Dispatcher's in-process per-course mutex.
type CourseStore struct {
	pool *pgxpool.Pool
}

func NewCourseStore(pool *pgxpool.Pool) *CourseStore {
	return &CourseStore{pool: pool}
}

// GetCourse loads a single course by ID.
func (s *CourseStore) GetCourse(ctx context.Context, courseID int64) (*Course, error) {
	return s.loadCourse(ctx, s.pool, courseID)
}

func (s *CourseStore) loadCourse(ctx context.Context, q querier, courseID int64) (*Course, error) {
	var c Course
	err := q.QueryRow(ctx, `
		SELECT id, name, credit, type, teacher_id, time_begin, time_end, schedule, location, capacity, selected_count, tags
		FROM courses WHERE id = $1
	`, courseID).Scan(&c.ID, &c.Name, &c.Credit, &c.Type, &c.TeacherID, &c.TimeBegin, &c.TimeEnd, &c.Schedule, &c.Location, &c.Capacity, &c.SelectedCount, &c.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	return &c, nil
}

// querier abstracts over *pgxpool.Pool and pgx.Tx so loadCourse can run
// both outside and inside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ListEnrollmentsByStudent returns every course a student currently
// holds a seat in, joined with the schedule fields needed for
// time-conflict checking.
func (s *CourseStore) ListEnrollmentsByStudent(ctx context.Context, studentID int64) ([]Course, error) {
	return s.listEnrollments(ctx, s.pool, studentID)
}

func (s *CourseStore) listEnrollments(ctx context.Context, q querier, studentID int64) ([]Course, error) {
	rows, err := q.Query(ctx, `
		SELECT c.id, c.name, c.credit, c.type, c.teacher_id, c.time_begin, c.time_end, c.schedule, c.location, c.capacity, c.selected_count, c.tags
		FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		WHERE e.student_id = $1
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Credit, &c.Type, &c.TeacherID, &c.TimeBegin, &c.TimeEnd, &c.Schedule, &c.Location, &c.Capacity, &c.SelectedCount, &c.Tags); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Select implements spec.md §4.E step 3 "kind = select": load course,
// load the student's enrollment set, check already-enrolled, capacity,
// tag eligibility and time conflicts in order, then insert the
// enrollment and bump selected_count atomically. The course row is
// locked FOR UPDATE for the lifetime of the transaction so a
// concurrently committing sibling transaction blocks until this one
// commits or rolls back — the DB-level half of the oversell guarantee.
func (s *CourseStore) Select(ctx context.Context, studentID, courseID int64, studentTags []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var c Course
	err = tx.QueryRow(ctx, `
		SELECT id, name, credit, type, teacher_id, time_begin, time_end, schedule, location, capacity, selected_count, tags
		FROM courses WHERE id = $1 FOR UPDATE
	`, courseID).Scan(&c.ID, &c.Name, &c.Credit, &c.Type, &c.TeacherID, &c.TimeBegin, &c.TimeEnd, &c.Schedule, &c.Location, &c.Capacity, &c.SelectedCount, &c.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCourseNotFound
	}
	if err != nil {
		return fmt.Errorf("lock course: %w", err)
	}

	var alreadyEnrolled bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)`, studentID, courseID).Scan(&alreadyEnrolled); err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if alreadyEnrolled {
		return ErrAlreadyEnrolled
	}

	if c.SelectedCount >= c.Capacity {
		return ErrCourseFull
	}

	if len(c.Tags) > 0 && !tagsIntersect(c.Tags, studentTags) {
		return ErrTagIneligible
	}

	existing, err := s.listEnrollments(ctx, tx, studentID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if schedulesConflict(c, e) {
			return ErrTimeConflict
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO enrollments (student_id, course_id) VALUES ($1, $2)`, studentID, courseID); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE courses SET selected_count = selected_count + 1 WHERE id = $1`, courseID); err != nil {
		return fmt.Errorf("increment selected_count: %w", err)
	}

	return tx.Commit(ctx)
}

// Deselect implements spec.md §4.E step 3 "kind = deselect".
func (s *CourseStore) Deselect(ctx context.Context, studentID, courseID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1 FOR UPDATE)`, courseID).Scan(&exists); err != nil {
		return fmt.Errorf("lock course: %w", err)
	}
	if !exists {
		return ErrCourseNotFound
	}

	tag, err := tx.Exec(ctx, `DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotEnrolled
	}

	if _, err := tx.Exec(ctx, `UPDATE courses SET selected_count = selected_count - 1 WHERE id = $1`, courseID); err != nil {
		return fmt.Errorf("decrement selected_count: %w", err)
	}

	return tx.Commit(ctx)
}

// CreateCourse inserts a new catalog course (not in spec.md's core
// §4.E, but needed to exercise the rest of the pipeline end to end). Its
// caller is POST /internal/course/mutate, behind the internal token.
func (s *CourseStore) CreateCourse(ctx context.Context, c Course) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO courses (name, credit, type, teacher_id, time_begin, time_end, schedule, location, capacity, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, c.Name, c.Credit, c.Type, c.TeacherID, c.TimeBegin, c.TimeEnd, c.Schedule, c.Location, c.Capacity, c.Tags).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create course: %w", err)
	}
	return id, nil
}

// ListCourses supports the read-only catalog browse surface.
func (s *CourseStore) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, credit, type, teacher_id, time_begin, time_end, schedule, location, capacity, selected_count, tags
		FROM courses ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Credit, &c.Type, &c.TeacherID, &c.TimeBegin, &c.TimeEnd, &c.Schedule, &c.Location, &c.Capacity, &c.SelectedCount, &c.Tags); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// tagsIntersect reports whether two tag sets share any member
// (spec.md §3 "c.tags ∩ s.tags ≠ ∅").
func tagsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// schedulesConflict reports whether two courses' weekday sets
// intersect AND their [time_begin, time_end) intervals overlap
// (spec.md §4.E step 3, "For each existing enrollment e...").
func schedulesConflict(a, b Course) bool {
	weekdays := make(map[int16]struct{}, len(a.Schedule))
	for _, d := range a.Schedule {
		weekdays[d] = struct{}{}
	}
	sharesDay := false
	for _, d := range b.Schedule {
		if _, ok := weekdays[d]; ok {
			sharesDay = true
			break
		}
	}
	if !sharesDay {
		return false
	}
	return a.TimeBegin < b.TimeEnd && b.TimeBegin < a.TimeEnd
}
