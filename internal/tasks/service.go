package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/super0605/naxum-api/internal/team"
)

// Service provides task ledger operations. Authorization is part of each
// operation: leaders act across their team, members only on themselves.
type Service struct {
	pool  *pgxpool.Pool
	teams *team.Service
}

// NewService creates a new task service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, teams: team.NewService(pool)}
}

const taskColumns = `
	t.id, t.title, t.description, t.status, t.assigned_to_user_id, t.created_by_user_id,
	t.created_at, t.completed_at,
	au.name, au.email, cu.name`

const taskJoins = `
	FROM tasks t
	INNER JOIN users au ON au.id = t.assigned_to_user_id
	INNER JOIN users cu ON cu.id = t.created_by_user_id`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var assigneeName, assigneeEmail, creatorName string
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.AssignedToUserID,
		&t.CreatedByUserID,
		&t.CreatedAt,
		&t.CompletedAt,
		&assigneeName,
		&assigneeEmail,
		&creatorName,
	)
	if err != nil {
		return nil, err
	}
	t.AssignedTo = &UserRef{ID: t.AssignedToUserID, Name: assigneeName, Email: assigneeEmail}
	t.CreatedBy = &UserRef{ID: t.CreatedByUserID, Name: creatorName}
	return &t, nil
}

// Create assigns a task. The (assignee, title) pair is unique among
// active tasks; the database index arbitrates concurrent creates so
// exactly one of two racing calls succeeds.
func (s *Service) Create(ctx context.Context, creatorID, assigneeID uuid.UUID, title string, description *string) (*Task, error) {
	title = strings.TrimSpace(title)

	if err := s.requireAuthorityOver(ctx, creatorID, assigneeID); err != nil {
		return nil, err
	}

	taskID := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, title, description, assigned_to_user_id, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5)
	`, taskID, title, description, assigneeID, creatorID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return nil, ErrDuplicateTask
			}
			if pgErr.Code == "23503" { // foreign_key_violation
				return nil, ErrAssigneeNotFound
			}
		}
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	return s.load(ctx, taskID)
}

// Get returns a task visible to the caller. Tasks outside the caller's
// scope read as not found rather than forbidden.
func (s *Service) Get(ctx context.Context, taskID, callerID uuid.UUID) (*Task, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if t.AssignedToUserID == callerID || t.CreatedByUserID == callerID {
		return t, nil
	}
	if err := s.requireAuthorityOver(ctx, callerID, t.AssignedToUserID); err != nil {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// List returns tasks in the caller's scope, optionally filtered by
// status and assignee. Leaders see their whole team's tasks plus their
// own; members see only tasks assigned to them.
func (s *Service) List(ctx context.Context, callerID uuid.UUID, filter ListFilter) ([]Task, error) {
	scope, err := s.visibleAssignees(ctx, callerID)
	if err != nil {
		return nil, err
	}

	if filter.AssignedToUserID != nil {
		requested := *filter.AssignedToUserID
		if !containsID(scope, requested) {
			return nil, ErrNotAuthorized
		}
		scope = []uuid.UUID{requested}
	}

	query := `SELECT ` + taskColumns + taskJoins + `
		WHERE t.assigned_to_user_id = ANY($1)`
	args := []any{scope}
	if filter.Status != nil {
		query += ` AND t.status = $2`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY t.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var result []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return result, nil
}

// Complete transitions a task OPEN -> COMPLETED on behalf of the
// assignee or a leader with authority over the assignee. The transition
// is a compare-and-swap: status and completedAt change together or not
// at all, and a second completion attempt conflicts.
func (s *Service) Complete(ctx context.Context, taskID, callerID uuid.UUID) (*Task, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if t.AssignedToUserID != callerID {
		if err := s.requireAuthorityOver(ctx, callerID, t.AssignedToUserID); err != nil {
			return nil, err
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'COMPLETED', completed_at = NOW()
		WHERE id = $1 AND status = 'OPEN'
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyCompleted
	}

	return s.load(ctx, taskID)
}

func (s *Service) load(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+taskJoins+` WHERE t.id = $1`, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return t, nil
}

// requireAuthorityOver verifies the caller may act on tasks assigned to
// the given user: self-assignment is always allowed, otherwise the
// caller must be a leader and the assignee one of their transitive
// reports.
func (s *Service) requireAuthorityOver(ctx context.Context, callerID, assigneeID uuid.UUID) error {
	if callerID == assigneeID {
		return nil
	}

	var callerRole string
	err := s.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, callerID).Scan(&callerRole)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotAuthorized
		}
		return fmt.Errorf("failed to load caller: %w", err)
	}
	if callerRole != "LEADER" {
		return ErrNotAuthorized
	}

	var assigneeExists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, assigneeID).Scan(&assigneeExists)
	if err != nil {
		return fmt.Errorf("failed to check assignee: %w", err)
	}
	if !assigneeExists {
		return ErrAssigneeNotFound
	}

	memberIDs, err := s.teams.MemberIDs(ctx, callerID)
	if err != nil {
		return err
	}
	if !containsID(memberIDs, assigneeID) {
		return ErrNotAuthorized
	}
	return nil
}

// visibleAssignees returns the assignee ids whose tasks the caller may
// read: the whole team plus self for leaders, self only for members.
func (s *Service) visibleAssignees(ctx context.Context, callerID uuid.UUID) ([]uuid.UUID, error) {
	var callerRole string
	err := s.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, callerID).Scan(&callerRole)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotAuthorized
		}
		return nil, fmt.Errorf("failed to load caller: %w", err)
	}

	if callerRole != "LEADER" {
		return []uuid.UUID{callerID}, nil
	}

	memberIDs, err := s.teams.MemberIDs(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return append(memberIDs, callerID), nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
