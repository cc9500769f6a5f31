package team

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// statsActiveWindowDays defines the reporting window for activeMembers:
// a member counts as active when at least one task assigned to them was
// created or completed within the window.
const statsActiveWindowDays = 30

// TeamStats is the dashboard summary for a leader's team.
type TeamStats struct {
	TotalTeamSize  int `json:"totalTeamSize"`
	ActiveMembers  int `json:"activeMembers"`
	CompletionRate int `json:"completionRate"`
}

// MemberCompletion is one row of the per-member completion breakdown.
type MemberCompletion struct {
	MemberID       uuid.UUID `json:"memberId"`
	MemberName     string    `json:"memberName"`
	Total          int       `json:"total"`
	Completed      int       `json:"completed"`
	CompletionRate int       `json:"completionRate"`
}

// StatsService computes team statistics on demand from the ledgers.
// Each computation runs inside a repeatable-read transaction so one call
// never mixes pre- and post-commit task states.
type StatsService struct {
	pool *pgxpool.Pool
}

// NewStatsService creates a new stats service
func NewStatsService(pool *pgxpool.Pool) *StatsService {
	return &StatsService{pool: pool}
}

// GetTeamStats computes the leader's dashboard summary.
func (s *StatsService) GetTeamStats(ctx context.Context, leaderID uuid.UUID) (*TeamStats, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin stats transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	memberIDs, err := teamMemberIDs(ctx, tx, leaderID)
	if err != nil {
		return nil, err
	}

	stats := &TeamStats{TotalTeamSize: len(memberIDs)}
	if len(memberIDs) == 0 {
		return stats, tx.Commit(ctx)
	}

	err = tx.QueryRow(ctx, `
		SELECT COUNT(DISTINCT assigned_to_user_id)
		FROM tasks
		WHERE assigned_to_user_id = ANY($1)
		  AND (created_at >= NOW() - make_interval(days => $2)
		       OR completed_at >= NOW() - make_interval(days => $2))
	`, memberIDs, statsActiveWindowDays).Scan(&stats.ActiveMembers)
	if err != nil {
		return nil, fmt.Errorf("failed to count active members: %w", err)
	}

	var total, completed int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED')
		FROM tasks
		WHERE assigned_to_user_id = ANY($1)
	`, memberIDs).Scan(&total, &completed)
	if err != nil {
		return nil, fmt.Errorf("failed to count team tasks: %w", err)
	}
	stats.CompletionRate = ratePercent(completed, total)

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stats transaction: %w", err)
	}
	return stats, nil
}

// CompletionByMember computes the per-member breakdown, one row per team
// member in hierarchy order, zeros included for members without tasks.
func (s *StatsService) CompletionByMember(ctx context.Context, leaderID uuid.UUID) ([]MemberCompletion, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin stats transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := loadTeamRows(ctx, tx, leaderID)
	if err != nil {
		return nil, err
	}
	root, err := BuildTree(leaderID, rows)
	if err != nil {
		return nil, err
	}

	memberIDs := make([]uuid.UUID, 0, len(rows))
	names := make(map[uuid.UUID]string, len(rows))
	for _, r := range rows {
		names[r.ID] = r.Name
		if r.ID != leaderID {
			memberIDs = append(memberIDs, r.ID)
		}
	}

	type counts struct{ total, completed int }
	byMember := make(map[uuid.UUID]counts, len(memberIDs))
	if len(memberIDs) > 0 {
		taskRows, err := tx.Query(ctx, `
			SELECT assigned_to_user_id,
			       COUNT(*),
			       COUNT(*) FILTER (WHERE status = 'COMPLETED')
			FROM tasks
			WHERE assigned_to_user_id = ANY($1)
			GROUP BY assigned_to_user_id
		`, memberIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate member tasks: %w", err)
		}
		defer taskRows.Close()

		for taskRows.Next() {
			var id uuid.UUID
			var c counts
			if err := taskRows.Scan(&id, &c.total, &c.completed); err != nil {
				return nil, fmt.Errorf("failed to scan member task counts: %w", err)
			}
			byMember[id] = c
		}
		if err := taskRows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating member task counts: %w", err)
		}
	}

	result := make([]MemberCompletion, 0, len(memberIDs))
	for _, node := range Flatten(root) {
		if node.ID == leaderID {
			continue
		}
		c := byMember[node.ID]
		result = append(result, MemberCompletion{
			MemberID:       node.ID,
			MemberName:     names[node.ID],
			Total:          c.total,
			Completed:      c.completed,
			CompletionRate: ratePercent(c.completed, c.total),
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stats transaction: %w", err)
	}
	return result, nil
}

func teamMemberIDs(ctx context.Context, q querier, leaderID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := loadTeamRows(ctx, q, leaderID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrLeaderNotFound
	}

	ids := make([]uuid.UUID, 0, len(rows)-1)
	for _, r := range rows {
		if r.ID != leaderID {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// ratePercent returns completed/total as an integer percentage, 0 when
// total is 0.
func ratePercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}
