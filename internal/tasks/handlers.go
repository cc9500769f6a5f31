package tasks

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/super0605/naxum-api/internal/apperrors"
	"github.com/super0605/naxum-api/internal/audit"
	"github.com/super0605/naxum-api/internal/auth"
	"github.com/super0605/naxum-api/internal/team"
)

type CreateRequest struct {
	AssignedToUserID uuid.UUID `json:"assignedToUserId"`
	Title            string    `json:"title"`
	Description      *string   `json:"description"`
}

const maxTitleLength = 200

// HandleCreate handles POST /tasks
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		title := strings.TrimSpace(req.Title)
		if title == "" {
			apperrors.WriteBadRequest(w, r, "Title is required")
			return
		}
		if len(title) > maxTitleLength {
			apperrors.WriteBadRequest(w, r, "Title is too long")
			return
		}
		if req.AssignedToUserID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "assignedToUserId is required")
			return
		}
		if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
			req.Description = nil
		}

		service := NewService(pool)
		task, err := service.Create(ctx, userID, req.AssignedToUserID, title, req.Description)
		if err != nil {
			writeTaskError(w, r, err, "Failed to create task")
			return
		}

		if err := auditor.LogTaskCreated(ctx, userID, task.ID, task.AssignedToUserID); err != nil {
			log.Error().Err(err).Msg("Failed to write audit log")
		}

		apperrors.WriteJSON(w, r, http.StatusCreated, map[string]any{"task": task})
	}
}

// HandleList handles GET /tasks
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var filter ListFilter
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := Status(strings.ToUpper(raw))
			if !status.IsValid() {
				apperrors.WriteBadRequest(w, r, "status must be OPEN or COMPLETED")
				return
			}
			filter.Status = &status
		}
		if raw := r.URL.Query().Get("assignedToUserId"); raw != "" {
			assigneeID, err := uuid.Parse(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid assignedToUserId")
				return
			}
			filter.AssignedToUserID = &assigneeID
		}

		service := NewService(pool)
		result, err := service.List(ctx, userID, filter)
		if err != nil {
			writeTaskError(w, r, err, "Failed to list tasks")
			return
		}

		if result == nil {
			result = []Task{}
		}
		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"tasks": result})
	}
}

// HandleGet handles GET /tasks/{id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		taskID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid task ID")
			return
		}

		service := NewService(pool)
		task, err := service.Get(ctx, taskID, userID)
		if err != nil {
			writeTaskError(w, r, err, "Failed to load task")
			return
		}

		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"task": task})
	}
}

// HandleComplete handles PATCH /tasks/{id}/complete
func HandleComplete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		taskID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid task ID")
			return
		}

		service := NewService(pool)
		task, err := service.Complete(ctx, taskID, userID)
		if err != nil {
			writeTaskError(w, r, err, "Failed to complete task")
			return
		}

		if err := auditor.LogTaskCompleted(ctx, userID, task.ID); err != nil {
			log.Error().Err(err).Msg("Failed to write audit log")
		}

		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"task": task})
	}
}

func writeTaskError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		apperrors.WriteNotFound(w, r, "Task not found")
	case errors.Is(err, ErrAssigneeNotFound):
		apperrors.WriteNotFound(w, r, "Assignee not found")
	case errors.Is(err, ErrDuplicateTask):
		apperrors.WriteConflict(w, r, "An active task with this title already exists for this assignee")
	case errors.Is(err, ErrAlreadyCompleted):
		apperrors.WriteConflict(w, r, "Task already completed")
	case errors.Is(err, ErrNotAuthorized):
		apperrors.WriteForbidden(w, r, "You do not have authority over this task")
	case errors.Is(err, team.ErrHierarchyCycle):
		log.Error().Err(err).Msg("Hierarchy integrity violation")
		apperrors.WriteInternalError(w, r, "Internal server error")
	default:
		log.Error().Err(err).Msg(message)
		apperrors.WriteInternalError(w, r, message)
	}
}
