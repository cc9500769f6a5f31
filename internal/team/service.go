package team

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so hierarchy
// loads can run inside the stats snapshot transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service serves the team hierarchy derived from invitation edges.
// The edge set (users.invited_by_user_id) is the system of record; trees
// are recomputed per request, never persisted.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new team service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// loadTeamRows returns the leader and every transitive report, in
// breadth-first load order (parents before children, siblings by
// creation time). The CTE depth cap keeps corrupted edges from looping;
// BuildTree still verifies acyclicity.
func loadTeamRows(ctx context.Context, q querier, leaderID uuid.UUID) ([]MemberRow, error) {
	rows, err := q.Query(ctx, `
		WITH RECURSIVE team AS (
			SELECT id, name, email, role, invited_by_user_id, created_at, 0 AS depth
			FROM users
			WHERE id = $1
			UNION ALL
			SELECT u.id, u.name, u.email, u.role, u.invited_by_user_id, u.created_at, t.depth + 1
			FROM users u
			INNER JOIN team t ON u.invited_by_user_id = t.id
			WHERE t.depth < $2
		)
		SELECT id, name, email, role, invited_by_user_id, created_at
		FROM team
		ORDER BY depth ASC, created_at ASC
	`, leaderID, MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load team: %w", err)
	}
	defer rows.Close()

	var members []MemberRow
	for rows.Next() {
		var m MemberRow
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &m.InvitedByUserID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team rows: %w", err)
	}

	return members, nil
}

// GetHierarchy builds the tree rooted at the caller.
func (s *Service) GetHierarchy(ctx context.Context, leaderID uuid.UUID) (*TeamNode, error) {
	rows, err := loadTeamRows(ctx, s.pool, leaderID)
	if err != nil {
		return nil, err
	}
	return BuildTree(leaderID, rows)
}

// ListMembers returns the caller's direct and transitive reports in
// pre-order traversal order, the caller excluded.
func (s *Service) ListMembers(ctx context.Context, leaderID uuid.UUID) ([]TeamMember, error) {
	rows, err := loadTeamRows(ctx, s.pool, leaderID)
	if err != nil {
		return nil, err
	}

	root, err := BuildTree(leaderID, rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]MemberRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	members := make([]TeamMember, 0, len(rows)-1)
	for _, node := range Flatten(root) {
		if node.ID == leaderID {
			continue
		}
		r := byID[node.ID]
		members = append(members, TeamMember{
			ID:              r.ID,
			Name:            r.Name,
			Email:           r.Email,
			Role:            r.Role,
			InvitedByUserID: r.InvitedByUserID,
			CreatedAt:       r.CreatedAt,
		})
	}
	return members, nil
}

// MemberIDs returns the ids of the leader's transitive reports, leader
// excluded. Used by the task ledger for authorization scope.
func (s *Service) MemberIDs(ctx context.Context, leaderID uuid.UUID) ([]uuid.UUID, error) {
	return teamMemberIDs(ctx, s.pool, leaderID)
}
