package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/novaline-edu/enrollgate/internal/api/helpers"
	customMiddleware "github.com/novaline-edu/enrollgate/internal/api/middleware"
	"github.com/novaline-edu/enrollgate/internal/apierr"
)

// SelectRequest backs POST /select and POST /deselect (spec.md §6).
type SelectRequest struct {
	CourseID int64 `json:"course_id"`
}

type SubmitResponse struct {
	TaskID            string `json:"task_id"`
	EstimatedPosition int    `json:"estimated_position"`
}

// checkRateLimit implements the Funnel's two-bucket gate (spec.md
// §4.C), called by the student-facing Select and Deselect endpoints.
// AdminSubmitOnBehalf does not call it.
func (s *Server) checkRateLimit(w http.ResponseWriter, r *http.Request, userID int64) bool {
	if _, err := s.funnel.CheckRateLimit(helpers.GetRealIP(r).String(), userID); err != nil {
		helpers.RespondAPIError(w, err)
		return false
	}
	return true
}

func (s *Server) Select(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, apierr.KindTokenInvalid, "missing authentication context")
		return
	}
	if !s.checkRateLimit(w, r, userID) {
		return
	}

	var req SelectRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	result, err := s.funnel.SubmitSelect(r.Context(), userID, req.CourseID)
	if err != nil {
		helpers.RespondAPIError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusAccepted, SubmitResponse{TaskID: result.TaskID, EstimatedPosition: result.EstimatedPosition})
}

func (s *Server) Deselect(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, apierr.KindTokenInvalid, "missing authentication context")
		return
	}
	if !s.checkRateLimit(w, r, userID) {
		return
	}

	var req SelectRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	result, err := s.funnel.SubmitDeselect(r.Context(), userID, req.CourseID)
	if err != nil {
		helpers.RespondAPIError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusAccepted, SubmitResponse{TaskID: result.TaskID, EstimatedPosition: result.EstimatedPosition})
}

// TaskStatusResponse backs GET /task/{task_id} (spec.md §6).
type TaskStatusResponse struct {
	Status      string  `json:"status"`
	FailureKind *string `json:"failure_kind,omitempty"`
	SubmittedAt int64   `json:"submitted_at"`
	CompletedAt *int64  `json:"completed_at,omitempty"`
}

// TaskStatus backs GET /task/{task_id}: the owning student or an admin
// may poll (spec.md §4.E "Observability").
func (s *Server) TaskStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, apierr.KindTokenInvalid, "missing authentication context")
		return
	}
	role, _ := customMiddleware.GetRole(r.Context())

	taskID := chi.URLParam(r, "task_id")
	task, err := s.funnel.TaskStatus(r.Context(), taskID)
	if err != nil {
		helpers.RespondAPIError(w, err)
		return
	}
	if task.UserID != userID && role != "admin" {
		helpers.RespondError(w, apierr.KindUnauthorized, "not authorized to view this task")
		return
	}

	resp := TaskStatusResponse{
		Status:      string(task.Status),
		SubmittedAt: task.SubmittedAt.UnixNano(),
	}
	if task.FailureKind != "" {
		resp.FailureKind = &task.FailureKind
	}
	if task.CompletedAt != nil {
		ts := task.CompletedAt.UnixNano()
		resp.CompletedAt = &ts
	}
	helpers.RespondJSON(w, http.StatusOK, resp)
}

// QueueStatsResponse backs GET /queue/stats (admin bearer, spec.md §6).
type QueueStatsResponse struct {
	Pending      int     `json:"pending"`
	Running      int     `json:"running"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

func (s *Server) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats := s.funnel.QueueStats()
	helpers.RespondJSON(w, http.StatusOK, QueueStatsResponse{
		Pending:      stats.Pending,
		Running:      stats.Running,
		AvgLatencyMs: stats.AvgLatencyMs,
	})
}

// AdminSubmitOnBehalfRequest backs the admin-bearer impersonation route
// POST /api/v1/admin/submit-on-behalf (spec.md §9 Open Question (b)).
type AdminSubmitOnBehalfRequest struct {
	StudentID int64  `json:"student_id"`
	CourseID  int64  `json:"course_id"`
	Kind      string `json:"kind"` // "select" | "deselect"
}

func (s *Server) AdminSubmitOnBehalf(w http.ResponseWriter, r *http.Request) {
	adminID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, apierr.KindTokenInvalid, "missing authentication context")
		return
	}

	var req AdminSubmitOnBehalfRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	result, err := s.funnel.SubmitOnBehalf(r.Context(), adminID, req.StudentID, req.CourseID, req.Kind)
	if err != nil {
		helpers.RespondAPIError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusAccepted, SubmitResponse{TaskID: result.TaskID, EstimatedPosition: result.EstimatedPosition})
}
