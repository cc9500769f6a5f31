package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/super0605/naxum-api/internal/auth"
	"github.com/super0605/naxum-api/internal/invites"
	"github.com/super0605/naxum-api/internal/retention"
	"github.com/super0605/naxum-api/internal/tasks"
	"github.com/super0605/naxum-api/internal/team"
)

const testInviteTTL = 7 * 24 * time.Hour

func mustRegister(t *testing.T, pool *pgxpool.Pool, email, phoneNumber string, role auth.Role) *auth.User {
	t.Helper()

	user, err := auth.NewService(pool).Register(context.Background(), auth.RegisterParams{
		Email:    email,
		Phone:    phoneNumber,
		Password: "password123",
		Name:     email,
		Role:     role,
	})
	require.NoError(t, err)
	return user
}

func TestIntegration_ConcurrentInvitationCreate_SingleRow(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	leader := mustRegister(t, pool, "leader@example.com", "+1 303 555 0100", auth.RoleLeader)
	service := invites.NewService(pool, testInviteTTL)

	const workers = 4
	results := make([]*invites.Invitation, workers)
	createdFlags := make([]bool, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], createdFlags[i], errs[i] = service.Create(context.Background(), leader.ID, "+1 202 555 0144", nil)
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].ID, results[i].ID, "all callers must converge on one invitation")
		if createdFlags[i] {
			createdCount++
		}
	}
	require.Equal(t, 1, createdCount, "exactly one caller creates the row")

	var rows int
	err := pool.QueryRow(context.Background(), `
		SELECT COUNT(*) FROM invitations
		WHERE inviter_user_id = $1 AND status = 'PENDING'
	`, leader.ID).Scan(&rows)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
}

func TestIntegration_ConcurrentRespond_SingleTransition(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	leader := mustRegister(t, pool, "leader@example.com", "+1 303 555 0100", auth.RoleLeader)

	service := invites.NewService(pool, testInviteTTL)
	inv, created, err := service.Create(context.Background(), leader.ID, "+1 202 555 0144", nil)
	require.NoError(t, err)
	require.True(t, created)

	invitee := mustRegister(t, pool, "invitee@example.com", "+1 202 555 0144", auth.RoleMember)

	// Accept and decline race; PENDING may transition exactly once.
	outcomes := []invites.Status{invites.StatusAccepted, invites.StatusDeclined}
	errs := make([]error, len(outcomes))

	var wg sync.WaitGroup
	for i, status := range outcomes {
		wg.Add(1)
		go func(i int, status invites.Status) {
			defer wg.Done()
			_, errs[i] = service.Respond(context.Background(), inv.ID, invitee.ID, status)
		}(i, status)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, invites.ErrNotPending)
		}
	}
	require.Equal(t, 1, successes)

	var status string
	err = pool.QueryRow(context.Background(), `SELECT status FROM invitations WHERE id = $1`, inv.ID).Scan(&status)
	require.NoError(t, err)
	require.Contains(t, []string{"ACCEPTED", "DECLINED"}, status)
}

func TestIntegration_RespondExpiredInvitation_NotFound(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	leader := mustRegister(t, pool, "leader@example.com", "+1 303 555 0100", auth.RoleLeader)

	// A negative TTL issues an invitation whose redemption window is
	// already closed when the invitee responds.
	expired := invites.NewService(pool, -time.Hour)
	inv, created, err := expired.Create(context.Background(), leader.ID, "+1 202 555 0144", nil)
	require.NoError(t, err)
	require.True(t, created)

	invitee := mustRegister(t, pool, "invitee@example.com", "+1 202 555 0144", auth.RoleMember)

	service := invites.NewService(pool, testInviteTTL)
	_, err = service.Respond(context.Background(), inv.ID, invitee.ID, invites.StatusAccepted)
	require.ErrorIs(t, err, invites.ErrInviteNotFound)

	var status string
	err = pool.QueryRow(context.Background(), `SELECT status FROM invitations WHERE id = $1`, inv.ID).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, "PENDING", status)
}

func TestIntegration_ConcurrentDuplicateTaskCreate(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	leader := mustRegister(t, pool, "leader@example.com", "+1 303 555 0100", auth.RoleLeader)
	service := tasks.NewService(pool)

	const workers = 4
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Create(context.Background(), leader.ID, leader.ID, "Weekly report", nil)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, tasks.ErrDuplicateTask)
		}
	}
	require.Equal(t, 1, successes)
}

func TestIntegration_ConcurrentComplete_SingleWinner(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	leader := mustRegister(t, pool, "leader@example.com", "+1 303 555 0100", auth.RoleLeader)
	service := tasks.NewService(pool)

	task, err := service.Create(context.Background(), leader.ID, leader.ID, "Close the books", nil)
	require.NoError(t, err)

	const workers = 4
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Complete(context.Background(), task.ID, leader.ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, tasks.ErrAlreadyCompleted)
		}
	}
	require.Equal(t, 1, successes)
}

func TestIntegration_StatsWithNoTasks(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	leader := mustRegister(t, pool, "leader@example.com", "+1 303 555 0100", auth.RoleLeader)

	stats, err := team.NewStatsService(pool).GetTeamStats(context.Background(), leader.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stats.TotalTeamSize)
	require.Equal(t, 0, stats.ActiveMembers)
	require.Equal(t, 0, stats.CompletionRate)
}

func TestIntegration_ActiveMemberWindow(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	leader := mustRegister(t, pool, "leader@example.com", "+1 303 555 0100", auth.RoleLeader)
	member := mustRegister(t, pool, "member@example.com", "+1 202 555 0144", auth.RoleMember)
	_, err := pool.Exec(ctx, `UPDATE users SET invited_by_user_id = $2 WHERE id = $1`, member.ID, leader.ID)
	require.NoError(t, err)

	// A task created outside the 30-day window does not make its
	// assignee active.
	taskID := uuid.New()
	_, err = pool.Exec(ctx, `
		INSERT INTO tasks (id, title, status, assigned_to_user_id, created_by_user_id, created_at)
		VALUES ($1, 'Quarterly recap', 'OPEN', $2, $3, NOW() - INTERVAL '40 days')
	`, taskID, member.ID, leader.ID)
	require.NoError(t, err)

	stats, err := team.NewStatsService(pool).GetTeamStats(ctx, leader.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalTeamSize)
	require.Equal(t, 0, stats.ActiveMembers)

	// Completing it now brings the member back into the window.
	_, err = pool.Exec(ctx, `UPDATE tasks SET status = 'COMPLETED', completed_at = NOW() WHERE id = $1`, taskID)
	require.NoError(t, err)

	stats, err = team.NewStatsService(pool).GetTeamStats(ctx, leader.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ActiveMembers)
	require.Equal(t, 100, stats.CompletionRate)
}

func TestIntegration_RetentionPurgesStaleInvitations(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	leader := mustRegister(t, pool, "leader@example.com", "+1 303 555 0100", auth.RoleLeader)
	ctx := context.Background()

	seq := 0
	insert := func(status string, expiresAt, respondedAt any) uuid.UUID {
		seq++
		id := uuid.New()
		number := fmt.Sprintf("1555010%04d", seq)
		_, err := pool.Exec(ctx, `
			INSERT INTO invitations (
			  id, inviter_user_id, invitee_phone, invitee_phone_normalized, status, token, expires_at, responded_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, leader.ID, "+"+number, number, status, "nxi_"+id.String(), expiresAt, respondedAt)
		require.NoError(t, err)
		return id
	}

	now := time.Now().UTC()
	expiredPending := insert("PENDING", now.Add(-time.Hour), nil)
	livePending := insert("PENDING", now.Add(24*time.Hour), nil)
	oldDeclined := insert("DECLINED", now.Add(24*time.Hour), now.Add(-120*24*time.Hour))
	recentDeclined := insert("DECLINED", now.Add(24*time.Hour), now.Add(-time.Hour))

	require.NoError(t, retention.RunRetentionJob(ctx, pool, 90))

	remaining := map[uuid.UUID]bool{}
	rows, err := pool.Query(ctx, `SELECT id FROM invitations`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		require.NoError(t, rows.Scan(&id))
		remaining[id] = true
	}
	require.NoError(t, rows.Err())

	require.False(t, remaining[expiredPending], "expired pending invitation should be purged")
	require.False(t, remaining[oldDeclined], "old declined invitation should be purged")
	require.True(t, remaining[livePending], "live pending invitation must survive")
	require.True(t, remaining[recentDeclined], "recent declined invitation must survive")
}
