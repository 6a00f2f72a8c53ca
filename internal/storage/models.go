package storage

import (
	"time"

	"github.com/google/uuid"
)

// Role is the tagged-enum user role (spec.md §9 "Role polymorphism").
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// User is the identity record (spec.md §3 "User").
type User struct {
	ID            int64
	Username      string
	PasswordHash  string
	Role          Role
	TOTPSecret    string // empty iff 2FA not enabled
	TOTPRequired  bool   // resolved gate: always true for students
	IsActive      bool
	Tags          []string
	CreatedAt     time.Time
}

// Course is the course catalog record (spec.md §3 "Course").
type Course struct {
	ID            int64
	Name          string
	Credit        int
	Type          string // required | elective
	TeacherID     *int64
	TimeBegin     int // HHMM
	TimeEnd       int // HHMM
	Schedule      []int16 // weekdays 1..7
	Location      string
	Capacity      int
	SelectedCount int
	Tags          []string
}

// Enrollment is the (student, course) relation (spec.md §3 "Enrollment").
type Enrollment struct {
	StudentID int64
	CourseID  int64
	CreatedAt time.Time
}

// RegistrationCode is a consumable, admin-issued account-creation token
// (spec.md §3 "RegistrationCode").
type RegistrationCode struct {
	Code         string
	TargetRole   Role
	MaxUses      int
	UsedCount    int
	AssignedTags []string
	ExpiresAt    time.Time
	Revoked      bool
}

func (c RegistrationCode) Valid(now time.Time) bool {
	return !c.Revoked && c.UsedCount < c.MaxUses && now.Before(c.ExpiresAt)
}

// ResetCode re-enables TOTP setup for a specific username (spec.md §3
// "ResetCode").
type ResetCode struct {
	Code      string
	Username  string
	ExpiresAt time.Time
	Used      bool
}

// RefreshToken is a stage-1 login credential (spec.md §3 "RefreshToken").
type RefreshToken struct {
	ID            uuid.UUID
	TokenHash     string
	UserID        int64
	FamilyID      uuid.UUID
	ParentTokenID *uuid.UUID
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Revoked       bool
	RevokedAt     *time.Time
}

// TaskKind is the intent a Task carries.
type TaskKind string

const (
	TaskSelect   TaskKind = "select"
	TaskDeselect TaskKind = "deselect"
)

// TaskStatus is the Task lifecycle state (spec.md §4.E "State machine").
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Task is the persisted journal record for a Task (spec.md §3 "Task").
// The Dispatcher's pending queue lives in-memory; this is the durable
// record that task polling reads and that the janitor's TTL sweep
// deletes from.
type Task struct {
	ID           uuid.UUID
	UserID       int64
	CourseID     int64
	Kind         TaskKind
	Priority     int
	Status       TaskStatus
	FailureKind  string
	SubmittedAt  time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	AttemptCount int
	SubmittedBy  *int64 // admin acting on behalf of the student, if any (spec.md §9(b))
}
