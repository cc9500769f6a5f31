package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/super0605/naxum-api/internal/phone"
)

var (
	// ErrEmailTaken is returned when the email is already registered
	ErrEmailTaken = errors.New("email already registered")

	// ErrPhoneTaken is returned when the phone is already registered
	ErrPhoneTaken = errors.New("phone number already registered")

	// ErrInvalidCredentials is returned on unknown email or wrong
	// password; callers must not learn which
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound is returned when a user id does not resolve
	ErrUserNotFound = errors.New("user not found")
)

// Service provides identity operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new identity service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// RegisterParams carries a validated registration request.
type RegisterParams struct {
	Email       string
	Phone       string
	Password    string
	Name        string
	Role        Role
	InviteToken string
}

// Register creates a user and, for a MEMBER carrying a redeemable invite
// token, accepts the invitation and links the member under the inviter in
// the same transaction. A token that is unknown, expired, consumed, or
// issued for a different phone does not fail registration; the user is
// created unaffiliated, matching the client's optional-token flow.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*User, error) {
	passwordHash, err := HashPassword(p.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	user := &User{
		ID:    uuid.New(),
		Email: p.Email,
		Phone: p.Phone,
		Name:  p.Name,
		Role:  p.Role,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO users (id, email, phone, phone_normalized, phone_suffix, password_hash, name, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, user.ID, p.Email, p.Phone, phone.Normalize(p.Phone), phone.Suffix(p.Phone), passwordHash, p.Name, p.Role).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			if pgErr.ConstraintName == "users_phone_normalized_key" {
				return nil, ErrPhoneTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	if p.Role == RoleMember && p.InviteToken != "" {
		inviterID, redeemed, err := s.redeemInviteToken(ctx, tx, user.ID, p.Phone, p.InviteToken)
		if err != nil {
			return nil, err
		}
		if redeemed {
			user.InvitedByUserID = &inviterID
		} else {
			log.Warn().
				Str("user_id", user.ID.String()).
				Msg("Invite token not redeemable; registering unaffiliated member")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return user, nil
}

// redeemInviteToken accepts the PENDING invitation matching the token and
// links the new member under the inviter. Returns redeemed=false, with no
// error, when the token cannot be honored for a business reason; only
// infrastructure failures abort the registration.
func (s *Service) redeemInviteToken(ctx context.Context, tx pgx.Tx, userID uuid.UUID, userPhone, token string) (uuid.UUID, bool, error) {
	var (
		invitationID uuid.UUID
		inviterID    uuid.UUID
		inviteePhone string
		status       string
		expiresAt    time.Time
	)
	err := tx.QueryRow(ctx, `
		SELECT id, inviter_user_id, invitee_phone, status, expires_at
		FROM invitations
		WHERE token = $1
		FOR UPDATE
	`, token).Scan(&invitationID, &inviterID, &inviteePhone, &status, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to load invitation: %w", err)
	}

	if status != "PENDING" || !expiresAt.After(time.Now().UTC()) {
		return uuid.Nil, false, nil
	}
	if !phone.Match(inviteePhone, userPhone) {
		return uuid.Nil, false, nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE invitations
		SET status = 'ACCEPTED', responded_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, invitationID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to accept invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET invited_by_user_id = $2 WHERE id = $1
	`, userID, inviterID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to link member to inviter: %w", err)
	}

	return inviterID, true, nil
}

// Login verifies credentials and returns the user.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	var user User
	var passwordHash string

	err := s.pool.QueryRow(ctx, `
		SELECT id, email, phone, name, role, invited_by_user_id, created_at, password_hash
		FROM users
		WHERE email = $1
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.Phone,
		&user.Name,
		&user.Role,
		&user.InvitedByUserID,
		&user.CreatedAt,
		&passwordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if err := VerifyPassword(passwordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// GetByID retrieves a user by id.
func (s *Service) GetByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	var user User

	err := s.pool.QueryRow(ctx, `
		SELECT id, email, phone, name, role, invited_by_user_id, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Phone,
		&user.Name,
		&user.Role,
		&user.InvitedByUserID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
