package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/super0605/naxum-api/internal/apperrors"
	"github.com/super0605/naxum-api/internal/audit"
	"github.com/super0605/naxum-api/internal/validation"
)

// RegisterRequest represents the registration payload
type RegisterRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	InviteToken string `json:"inviteToken"`
}

// LoginRequest represents the login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is the register/login response body
type SessionResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// HandleRegister processes POST /auth/register
func HandleRegister(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.ValidateEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		phoneRaw, err := validation.ValidatePhone(req.Phone)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		if err := validation.ValidatePassword(req.Password); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		name, err := validation.ValidateName(req.Name)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		role, err := validation.ValidateRole(req.Role)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool)
		user, err := service.Register(r.Context(), RegisterParams{
			Email:       email,
			Phone:       phoneRaw,
			Password:    req.Password,
			Name:        name,
			Role:        Role(role),
			InviteToken: strings.TrimSpace(req.InviteToken),
		})
		if err != nil {
			if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrPhoneTaken) {
				apperrors.WriteConflict(w, r, err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to register user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		if err := auditor.LogUserRegistered(r.Context(), user.ID, user.Email, string(user.Role)); err != nil {
			log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to write audit log")
		}

		token, err := CreateToken(user.ID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		log.Info().
			Str("user_id", user.ID.String()).
			Str("role", string(user.Role)).
			Bool("affiliated", user.InvitedByUserID != nil).
			Msg("User registered")

		apperrors.WriteJSON(w, r, http.StatusCreated, SessionResponse{User: user, Token: token})
	}
}

// HandleLogin processes POST /auth/login
func HandleLogin(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email := strings.TrimSpace(req.Email)
		if email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		service := NewService(pool)
		user, err := service.Login(r.Context(), email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				// Unknown email and wrong password are indistinguishable.
				log.Debug().Msg("Login failed")
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Msg("Login query failed")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		token, err := CreateToken(user.ID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		if err := auditor.LogUserLogin(r.Context(), user.ID); err != nil {
			log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to write audit log")
		}

		log.Info().Str("user_id", user.ID.String()).Msg("User logged in")

		apperrors.WriteJSON(w, r, http.StatusOK, SessionResponse{User: user, Token: token})
	}
}

// HandleMe processes GET /auth/me
func HandleMe(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := GetUserID(r.Context())

		service := NewService(pool)
		user, err := service.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				apperrors.WriteUnauthorized(w, r, "Unauthorized")
				return
			}
			log.Error().Err(err).Msg("Failed to load user")
			apperrors.WriteInternalError(w, r, "Failed to load account")
			return
		}

		apperrors.WriteJSON(w, r, http.StatusOK, map[string]any{"user": user})
	}
}
