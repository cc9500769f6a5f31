package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventUserRegistered     = "user.registered"
	EventUserLogin          = "user.login"
	EventInvitationCreated  = "invitation.created"
	EventInvitationAccepted = "invitation.accepted"
	EventInvitationDeclined = "invitation.declined"
	EventTaskCreated        = "task.created"
	EventTaskCompleted      = "task.completed"
)

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// Log inserts an audit entry. Details are stored as a JSON document.
func (w *Writer) Log(ctx context.Context, userID uuid.UUID, event string, details map[string]interface{}) error {
	detailsJSON := []byte("{}")
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit details")
			return err
		}
		detailsJSON = b
	}

	query := `
		INSERT INTO audit_logs (id, user_id, event, details)
		VALUES ($1, $2, $3, $4)
	`

	_, err := w.pool.Exec(ctx, query, uuid.New(), userID, event, string(detailsJSON))
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

func (w *Writer) LogUserRegistered(ctx context.Context, userID uuid.UUID, email, role string) error {
	return w.Log(ctx, userID, EventUserRegistered, map[string]interface{}{
		"email": email,
		"role":  role,
	})
}

func (w *Writer) LogUserLogin(ctx context.Context, userID uuid.UUID) error {
	return w.Log(ctx, userID, EventUserLogin, nil)
}

func (w *Writer) LogInvitationCreated(ctx context.Context, inviterID, invitationID uuid.UUID) error {
	return w.Log(ctx, inviterID, EventInvitationCreated, map[string]interface{}{
		"invitation_id": invitationID.String(),
	})
}

func (w *Writer) LogInvitationAccepted(ctx context.Context, userID, invitationID uuid.UUID) error {
	return w.Log(ctx, userID, EventInvitationAccepted, map[string]interface{}{
		"invitation_id": invitationID.String(),
	})
}

func (w *Writer) LogInvitationDeclined(ctx context.Context, userID, invitationID uuid.UUID) error {
	return w.Log(ctx, userID, EventInvitationDeclined, map[string]interface{}{
		"invitation_id": invitationID.String(),
	})
}

func (w *Writer) LogTaskCreated(ctx context.Context, creatorID, taskID, assigneeID uuid.UUID) error {
	return w.Log(ctx, creatorID, EventTaskCreated, map[string]interface{}{
		"task_id":     taskID.String(),
		"assignee_id": assigneeID.String(),
	})
}

func (w *Writer) LogTaskCompleted(ctx context.Context, userID, taskID uuid.UUID) error {
	return w.Log(ctx, userID, EventTaskCompleted, map[string]interface{}{
		"task_id": taskID.String(),
	})
}
