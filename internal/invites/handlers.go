package invites

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/super0605/naxum-api/internal/apperrors"
	"github.com/super0605/naxum-api/internal/audit"
	"github.com/super0605/naxum-api/internal/auth"
	"github.com/super0605/naxum-api/internal/validation"
)

type CreateRequest struct {
	InviteePhone string  `json:"inviteePhone"`
	InviteeName  *string `json:"inviteeName"`
}

type CreateResponse struct {
	Invitation *Invitation `json:"invitation"`
	InviteURL  string      `json:"inviteUrl"`
}

type CheckStatusRequest struct {
	PhoneNumbers []string `json:"phoneNumbers"`
}

// HandleCreate handles POST /invitations
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer, baseURL string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		inviteePhone, err := validation.ValidatePhone(req.InviteePhone)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		if req.InviteeName != nil {
			name := strings.TrimSpace(*req.InviteeName)
			if name == "" {
				req.InviteeName = nil
			} else {
				req.InviteeName = &name
			}
		}

		service := NewService(pool, ttl)
		inv, created, err := service.Create(ctx, userID, inviteePhone, req.InviteeName)
		if err != nil {
			if errors.Is(err, ErrNotLeader) {
				apperrors.WriteForbidden(w, r, "Only leaders can send invitations")
				return
			}
			if errors.Is(err, ErrAlreadyMember) {
				apperrors.WriteConflict(w, r, "Phone number already belongs to a team member")
				return
			}
			log.Error().Err(err).Msg("Failed to create invitation")
			apperrors.WriteInternalError(w, r, "Failed to create invitation")
			return
		}

		if created {
			if err := auditor.LogInvitationCreated(ctx, userID, inv.ID); err != nil {
				log.Error().Err(err).Msg("Failed to write audit log")
			}
		}

		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}

		apperrors.WriteJSON(w, r, status, CreateResponse{
			Invitation: inv,
			InviteURL:  baseURL + "/invite?token=" + url.QueryEscape(inv.Token),
		})
	}
}

// HandleListSent handles GET /invitations
func HandleListSent(pool *pgxpool.Pool, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool, ttl)
		invitations, err := service.ListSent(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list invitations")
			apperrors.WriteInternalError(w, r, "Failed to list invitations")
			return
		}

		if invitations == nil {
			invitations = []Invitation{}
		}
		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"invitations": invitations})
	}
}

// HandleListReceived handles GET /invitations/my
func HandleListReceived(pool *pgxpool.Pool, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool, ttl)
		invitations, err := service.ListReceived(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list received invitations")
			apperrors.WriteInternalError(w, r, "Failed to list invitations")
			return
		}

		if invitations == nil {
			invitations = []Invitation{}
		}
		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"invitations": invitations})
	}
}

// HandleRespond handles POST /invitations/{id}/accept and /decline
func HandleRespond(pool *pgxpool.Pool, auditor *audit.Writer, ttl time.Duration, newStatus Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		invitationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
			return
		}

		service := NewService(pool, ttl)
		inv, err := service.Respond(ctx, invitationID, userID, newStatus)
		if err != nil {
			if errors.Is(err, ErrInviteNotFound) {
				apperrors.WriteNotFound(w, r, "Invitation not found")
				return
			}
			if errors.Is(err, ErrNotInvitee) {
				apperrors.WriteForbidden(w, r, "This invitation was not sent to you")
				return
			}
			if errors.Is(err, ErrNotPending) {
				apperrors.WriteConflict(w, r, "Invitation already responded to")
				return
			}
			log.Error().Err(err).Msg("Failed to respond to invitation")
			apperrors.WriteInternalError(w, r, "Failed to respond to invitation")
			return
		}

		if newStatus == StatusAccepted {
			if err := auditor.LogInvitationAccepted(ctx, userID, inv.ID); err != nil {
				log.Error().Err(err).Msg("Failed to write audit log")
			}
		} else {
			if err := auditor.LogInvitationDeclined(ctx, userID, inv.ID); err != nil {
				log.Error().Err(err).Msg("Failed to write audit log")
			}
		}

		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"invitation": inv})
	}
}

// HandleCheckStatus handles POST /invitations/check-status
func HandleCheckStatus(pool *pgxpool.Pool, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CheckStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := NewService(pool, ttl)
		statuses, err := service.CheckStatuses(ctx, userID, req.PhoneNumbers)
		if err != nil {
			if errors.Is(err, ErrTooManyPhones) {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to check invitation statuses")
			apperrors.WriteInternalError(w, r, "Failed to check statuses")
			return
		}

		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"statuses": statuses})
	}
}
