package team

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/super0605/naxum-api/internal/apperrors"
	"github.com/super0605/naxum-api/internal/auth"
)

// HandleHierarchy handles GET /team/hierarchy
func HandleHierarchy(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		tree, err := service.GetHierarchy(ctx, userID)
		if err != nil {
			writeTeamError(w, r, err, "Failed to load hierarchy")
			return
		}

		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"tree": tree})
	}
}

// HandleListMembers handles GET /team/members
func HandleListMembers(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		members, err := service.ListMembers(ctx, userID)
		if err != nil {
			writeTeamError(w, r, err, "Failed to load team members")
			return
		}

		if members == nil {
			members = []TeamMember{}
		}
		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"members": members})
	}
}

// HandleTeamStats handles GET /team/stats
func HandleTeamStats(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewStatsService(pool)
		stats, err := service.GetTeamStats(ctx, userID)
		if err != nil {
			writeTeamError(w, r, err, "Failed to compute team stats")
			return
		}

		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"stats": stats})
	}
}

// HandleCompletionByMember handles GET /tasks/by-member
func HandleCompletionByMember(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewStatsService(pool)
		data, err := service.CompletionByMember(ctx, userID)
		if err != nil {
			writeTeamError(w, r, err, "Failed to compute completion breakdown")
			return
		}

		if data == nil {
			data = []MemberCompletion{}
		}
		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"data": data})
	}
}

func writeTeamError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, ErrLeaderNotFound) {
		apperrors.WriteUnauthorized(w, r, "Unauthorized")
		return
	}
	if errors.Is(err, ErrHierarchyCycle) {
		// Corrupted invitation edges: a server bug, reported as 500.
		log.Error().Err(err).Str("user_id", auth.GetUserID(r.Context()).String()).Msg("Hierarchy integrity violation")
		apperrors.WriteInternalError(w, r, "Internal server error")
		return
	}
	log.Error().Err(err).Msg(message)
	apperrors.WriteInternalError(w, r, message)
}
