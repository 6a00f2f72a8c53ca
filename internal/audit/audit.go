// Package audit records security-relevant events: logins, registration,
// registration- and reset-code issuance, registration-code revocation,
// and reset-code use. The
// logout, task.submitted and task.submitted_by_admin event types are
// defined but no caller emits them; an admin's on-behalf submission is
// recorded on the task itself (Task.SubmittedBy). Grounded on the teacher's
// internal/audit package, adapted from UUID tenant-scoped actors to the
// int64 user IDs this domain uses, and collapsed from a DB-backed
// logger to a structured-logging-only one since this spec carries no
// audit-query surface.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// EventType categorizes an audit entry.
type EventType string

const (
	EventLoginSuccess     EventType = "login.success"
	EventLoginFailed      EventType = "login.failed"
	EventLogout           EventType = "logout"
	EventRegisterSuccess  EventType = "register.success"
	EventCodeIssued       EventType = "registration_code.issued"
	EventCodeRevoked      EventType = "registration_code.revoked"
	EventTaskSubmitted    EventType = "task.submitted"
	EventImpersonatedTask EventType = "task.submitted_by_admin"
)

// Service defines the contract for immutable event logging.
type Service interface {
	Log(ctx context.Context, actorID int64, event EventType, metadata map[string]any)
}

// SlogService writes structured logs with a "log_type":"audit_trail"
// marker so log aggregators can route them to a separate index,
// exactly the intent of the teacher's JSONAuditLogger.
type SlogService struct {
	logger *slog.Logger
}

func NewSlogService(logger *slog.Logger) *SlogService {
	return &SlogService{logger: logger}
}

func (s *SlogService) Log(ctx context.Context, actorID int64, event EventType, metadata map[string]any) {
	fields := []any{
		slog.String("log_type", "audit_trail"),
		slog.Int64("actor_id", actorID),
		slog.String("event", string(event)),
		slog.Time("timestamp_utc", time.Now().UTC()),
	}
	for k, v := range metadata {
		fields = append(fields, slog.Any("meta_"+k, v))
	}
	s.logger.InfoContext(ctx, "audit_event", fields...)
}

// NoopService discards every event; used in tests.
type NoopService struct{}

func (NoopService) Log(ctx context.Context, actorID int64, event EventType, metadata map[string]any) {
}
