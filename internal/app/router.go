package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/super0605/naxum-api/internal/apperrors"
	"github.com/super0605/naxum-api/internal/audit"
	"github.com/super0605/naxum-api/internal/auth"
	"github.com/super0605/naxum-api/internal/config"
	"github.com/super0605/naxum-api/internal/invites"
	"github.com/super0605/naxum-api/internal/tasks"
	"github.com/super0605/naxum-api/internal/team"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	inviteTTL := time.Duration(cfg.InviteTTLDays) * 24 * time.Hour

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(auth.BearerMiddleware(cfg.JWTSecret))

	// Audit writer (shared across routes)
	auditor := audit.NewWriter(pool)

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// Authentication
	r.Route("/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", auth.HandleRegister(pool, auditor, cfg.JWTSecret, cfg.SessionDays))
		r.With(LoginRateLimitMiddleware(cfg.LoginRateLimitRPM)).
			Post("/login", auth.HandleLogin(pool, auditor, cfg.JWTSecret, cfg.SessionDays))
		r.With(auth.RequireAuth).Get("/me", auth.HandleMe(pool))
	})

	// Invitations
	r.Route("/invitations", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Post("/", invites.HandleCreate(pool, auditor, cfg.BaseURL, inviteTTL))
		r.Get("/", invites.HandleListSent(pool, inviteTTL))
		r.Get("/my", invites.HandleListReceived(pool, inviteTTL))
		r.Post("/check-status", invites.HandleCheckStatus(pool, inviteTTL))
		r.Post("/{id}/accept", invites.HandleRespond(pool, auditor, inviteTTL, invites.StatusAccepted))
		r.Post("/{id}/decline", invites.HandleRespond(pool, auditor, inviteTTL, invites.StatusDeclined))
	})

	// Team views
	r.Route("/team", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Get("/members", team.HandleListMembers(pool))
		r.Get("/hierarchy", team.HandleHierarchy(pool))
		r.Get("/stats", team.HandleTeamStats(pool))
	})

	// Tasks
	r.Route("/tasks", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Post("/", tasks.HandleCreate(pool, auditor))
		r.Get("/", tasks.HandleList(pool))
		r.Get("/by-member", team.HandleCompletionByMember(pool))
		r.Get("/{id}", tasks.HandleGet(pool))
		r.Patch("/{id}/complete", tasks.HandleComplete(pool, auditor))
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteJSON(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
