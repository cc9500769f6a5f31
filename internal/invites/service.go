package invites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/super0605/naxum-api/internal/phone"
)

// Service provides invitation ledger operations
type Service struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewService creates a new invitation service
func NewService(pool *pgxpool.Pool, ttl time.Duration) *Service {
	return &Service{pool: pool, ttl: ttl}
}

const invitationColumns = `id, inviter_user_id, invitee_phone, invitee_name, status, token, created_at, expires_at`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID,
		&inv.InviterUserID,
		&inv.InviteePhone,
		&inv.InviteeName,
		&inv.Status,
		&inv.Token,
		&inv.CreatedAt,
		&inv.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

var (
	errTokenCollision  = errors.New("invitation token collision")
	errLostPendingRace = errors.New("lost race for the pending invitation slot")
)

// classifyInsertError maps the invitation INSERT's unique violations onto
// the two recoverable cases: a token collision, retried with a fresh
// token, and a lost race for the pending slot, answered with the winner's
// row. Anything else is a plain failure.
func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "invitations_token_key" {
			return errTokenCollision
		}
		return errLostPendingRace
	}
	return fmt.Errorf("failed to create invitation: %w", err)
}

// Create issues an invitation from a leader to a phone number. The
// operation is idempotent per (inviter, normalized phone): an existing
// open invitation is returned as-is and created is false. A phone that
// already belongs to a member, or that this inviter's invitation already
// reached ACCEPTED for, is a conflict.
func (s *Service) Create(ctx context.Context, inviterID uuid.UUID, inviteePhone string, inviteeName *string) (*Invitation, bool, error) {
	normalized := phone.Normalize(inviteePhone)

	// A unique violation aborts the whole transaction, so each token
	// attempt runs in a fresh one.
	for attempt := 0; attempt < 3; attempt++ {
		inv, created, err := s.tryCreate(ctx, inviterID, inviteePhone, normalized, inviteeName)
		switch {
		case errors.Is(err, errTokenCollision):
			continue
		case errors.Is(err, errLostPendingRace):
			// The winner's row is the idempotent answer.
			winner, err := scanInvitation(s.pool.QueryRow(ctx, `
				SELECT `+invitationColumns+`
				FROM invitations
				WHERE inviter_user_id = $1
				  AND invitee_phone_normalized = $2
				  AND status = 'PENDING'
			`, inviterID, normalized))
			if err != nil {
				return nil, false, fmt.Errorf("failed to load concurrent invitation: %w", err)
			}
			return winner, false, nil
		default:
			return inv, created, err
		}
	}

	return nil, false, fmt.Errorf("failed to create invitation: token collision retry exhausted")
}

func (s *Service) tryCreate(ctx context.Context, inviterID uuid.UUID, inviteePhone, normalized string, inviteeName *string) (inv *Invitation, created bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var inviterRole string
	err = tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, inviterID).Scan(&inviterRole)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotLeader
		}
		return nil, false, fmt.Errorf("failed to load inviter: %w", err)
	}
	if inviterRole != "LEADER" {
		return nil, false, ErrNotLeader
	}

	member, err := s.phoneBelongsToMember(ctx, tx, normalized)
	if err != nil {
		return nil, false, err
	}
	if member {
		return nil, false, ErrAlreadyMember
	}

	var accepted bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM invitations
			WHERE inviter_user_id = $1
			  AND invitee_phone_normalized = $2
			  AND status = 'ACCEPTED'
		)
	`, inviterID, normalized).Scan(&accepted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check accepted invitations: %w", err)
	}
	if accepted {
		return nil, false, ErrAlreadyMember
	}

	existing, err := s.lockPending(ctx, tx, inviterID, normalized)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.ExpiresAt.After(time.Now().UTC()) {
			if err := tx.Commit(ctx); err != nil {
				return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return existing, false, nil
		}

		// An expired open invitation still occupies the pending slot;
		// clear it so a fresh token can be issued.
		_, err = tx.Exec(ctx, `DELETE FROM invitations WHERE id = $1 AND status = 'PENDING'`, existing.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to clear expired invitation: %w", err)
		}
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, false, err
	}

	inv, err = scanInvitation(tx.QueryRow(ctx, `
		INSERT INTO invitations (
		  id, inviter_user_id, invitee_phone, invitee_phone_normalized, invitee_name, token, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+invitationColumns,
		uuid.New(), inviterID, inviteePhone, normalized, inviteeName, token, time.Now().UTC().Add(s.ttl)))
	if err != nil {
		return nil, false, classifyInsertError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inv, true, nil
}

func (s *Service) phoneBelongsToMember(ctx context.Context, tx pgx.Tx, normalized string) (bool, error) {
	suffix := phone.Suffix(normalized)
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE phone_normalized = $1
			   OR (length($1) >= 10 AND length(phone_normalized) >= 10 AND phone_suffix = $2)
		)
	`, normalized, suffix).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check member phone: %w", err)
	}
	return exists, nil
}

func (s *Service) lockPending(ctx context.Context, tx pgx.Tx, inviterID uuid.UUID, normalized string) (*Invitation, error) {
	inv, err := scanInvitation(tx.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE inviter_user_id = $1
		  AND invitee_phone_normalized = $2
		  AND status = 'PENDING'
		FOR UPDATE
	`, inviterID, normalized))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load pending invitation: %w", err)
	}
	return inv, nil
}

// ListSent returns the invitations a leader has issued, newest first.
func (s *Service) ListSent(ctx context.Context, inviterID uuid.UUID) ([]Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE inviter_user_id = $1
		ORDER BY created_at DESC
	`, inviterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	return collectInvitations(rows)
}

// ListReceived returns the invitations addressed to the caller's phone,
// open ones first. Matching is exact on the normalized number or on the
// national-number suffix, so formatting drift between the inviter's
// contact book and the registered phone does not hide invitations.
func (s *Service) ListReceived(ctx context.Context, callerID uuid.UUID) ([]Invitation, error) {
	var callerPhone string
	err := s.pool.QueryRow(ctx, `SELECT phone FROM users WHERE id = $1`, callerID).Scan(&callerPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to load caller: %w", err)
	}

	normalized := phone.Normalize(callerPhone)
	suffix := phone.Suffix(callerPhone)

	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE invitee_phone_normalized = $1
		   OR (length($1) >= 10 AND length(invitee_phone_normalized) >= 10
		       AND right(invitee_phone_normalized, 10) = $2)
		ORDER BY (status = 'PENDING') DESC, created_at DESC
	`, normalized, suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list received invitations: %w", err)
	}
	defer rows.Close()

	return collectInvitations(rows)
}

func collectInvitations(rows pgx.Rows) ([]Invitation, error) {
	var invitations []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}
	return invitations, nil
}

// Respond transitions a PENDING invitation to ACCEPTED or DECLINED on
// behalf of its invitee. Accepting also links the caller under the
// inviter when the caller is not yet affiliated; an affiliated member
// keeps their existing leader.
func (s *Service) Respond(ctx context.Context, invitationID, callerID uuid.UUID, newStatus Status) (*Invitation, error) {
	if newStatus != StatusAccepted && newStatus != StatusDeclined {
		return nil, fmt.Errorf("invalid target status: %s", newStatus)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inv, err := scanInvitation(tx.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1
		FOR UPDATE
	`, invitationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}

	var callerPhone string
	err = tx.QueryRow(ctx, `SELECT phone FROM users WHERE id = $1`, callerID).Scan(&callerPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotInvitee
		}
		return nil, fmt.Errorf("failed to load caller: %w", err)
	}
	if !phone.Match(inv.InviteePhone, callerPhone) {
		return nil, ErrNotInvitee
	}

	if inv.Status != StatusPending {
		return nil, ErrNotPending
	}
	if !inv.ExpiresAt.After(time.Now().UTC()) {
		// Past the redemption window the row is just waiting for the
		// retention sweep; answer as if it were already gone.
		return nil, ErrInviteNotFound
	}

	tag, err := tx.Exec(ctx, `
		UPDATE invitations
		SET status = $2, responded_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, invitationID, newStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotPending
	}

	if newStatus == StatusAccepted {
		_, err = tx.Exec(ctx, `
			UPDATE users
			SET invited_by_user_id = $2
			WHERE id = $1 AND invited_by_user_id IS NULL
		`, callerID, inv.InviterUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to link member to inviter: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	inv.Status = newStatus
	return inv, nil
}
