package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PurgeExpiredInvitations deletes PENDING invitations whose redemption
// window has closed. Their tokens can no longer be redeemed, and removing
// the rows frees the pending slot so the contact can be re-invited.
// The function is idempotent - safe to run repeatedly.
//
// Returns the number of rows deleted.
func PurgeExpiredInvitations(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	query := `
		DELETE FROM invitations
		WHERE status = 'PENDING'
		  AND expires_at < NOW()
	`

	tag, err := pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired invitations: %w", err)
	}

	return tag.RowsAffected(), nil
}

// PurgeOldDeclinedInvitations deletes DECLINED invitations older than the
// specified days. A purged declined row reads as NOT_INVITED in contact
// status checks; both answers permit re-inviting, so behavior is stable.
// ACCEPTED invitations are kept: the hierarchy derives from user edges,
// but the accepted row records how the member joined.
//
// Returns the number of rows deleted.
func PurgeOldDeclinedInvitations(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (int64, error) {
	query := `
		DELETE FROM invitations
		WHERE status = 'DECLINED'
		  AND responded_at < NOW() - INTERVAL '1 day' * $1
	`

	tag, err := pool.Exec(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to purge declined invitations: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunRetentionJob executes both retention operations and logs the results.
// This is the main entry point called by the cron scheduler.
func RunRetentionJob(ctx context.Context, pool *pgxpool.Pool, declinedDays int) error {
	log.Info().
		Int("declined_retention_days", declinedDays).
		Msg("Starting retention job")

	startTime := time.Now()

	expiredPurged, err := PurgeExpiredInvitations(ctx, pool)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge expired invitations")
		return fmt.Errorf("expired invitation cleanup failed: %w", err)
	}

	declinedPurged, err := PurgeOldDeclinedInvitations(ctx, pool, declinedDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge declined invitations")
		return fmt.Errorf("declined invitation cleanup failed: %w", err)
	}

	duration := time.Since(startTime)

	log.Info().
		Int64("expired_invitations_purged", expiredPurged).
		Int64("declined_invitations_purged", declinedPurged).
		Dur("duration", duration).
		Msg("Retention job completed")

	return nil
}
