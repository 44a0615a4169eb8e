package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ocgroups/meetsync/internal/models"
)

// NextOverdueMeeting returns the unchecked meeting of a live event or
// session whose end lies furthest in the past. Event meetings come before
// session meetings ending at the same instant. It returns nil when no
// meeting is overdue.
func (r *PostgresMeetingRepository) NextOverdueMeeting(ctx context.Context) (*models.OverdueMeeting, error) {
	overdue, err := r.ListOverdueMeetings(ctx, 1)
	if err != nil || len(overdue) == 0 {
		return nil, err
	}
	return overdue[0], nil
}

// ListOverdueMeetings returns up to limit overdue meetings in the order
// NextOverdueMeeting would return them.
func (r *PostgresMeetingRepository) ListOverdueMeetings(ctx context.Context, limit int) ([]*models.OverdueMeeting, error) {
	query := `SELECT id, provider_id, provider_meeting_id, ends_at FROM (
	              SELECT m.id, m.provider_id, m.provider_meeting_id, e.ends_at, 0 AS owner_rank
	              FROM meetings m
	              JOIN events e ON e.id = m.event_id
	              WHERE m.auto_end_check_at IS NULL
	                AND e.published AND NOT e.canceled AND NOT e.deleted
	                AND e.meeting_requested
	                AND e.ends_at < NOW()
	              UNION ALL
	              SELECT m.id, m.provider_id, m.provider_meeting_id, s.ends_at, 1 AS owner_rank
	              FROM meetings m
	              JOIN sessions s ON s.id = m.session_id
	              JOIN events e ON e.id = s.event_id
	              WHERE m.auto_end_check_at IS NULL
	                AND e.published AND NOT e.canceled AND NOT e.deleted
	                AND s.meeting_requested
	                AND s.ends_at < NOW()
	          ) overdue
	          ORDER BY ends_at ASC, owner_rank ASC, id
	          LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue meetings: %w", err)
	}
	defer rows.Close()

	var overdue []*models.OverdueMeeting
	for rows.Next() {
		var m models.OverdueMeeting
		if err := rows.Scan(&m.MeetingID, &m.ProviderID, &m.ProviderMeetingID, &m.EndsAt); err != nil {
			return nil, fmt.Errorf("failed to scan overdue meeting: %w", err)
		}
		overdue = append(overdue, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overdue meetings: %w", err)
	}
	return overdue, nil
}

// AutoEndPending reports whether the meeting still exists and has no
// auto-end check recorded.
func (r *PostgresMeetingRepository) AutoEndPending(ctx context.Context, meetingID uuid.UUID) (bool, error) {
	var pending bool
	err := r.pool.QueryRow(ctx,
		`SELECT auto_end_check_at IS NULL FROM meetings WHERE id = $1`, meetingID,
	).Scan(&pending)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check auto-end state: %w", err)
	}
	return pending, nil
}

// RecordAutoEndOutcome stamps the meeting as checked so it is never returned
// by NextOverdueMeeting again. Unknown meetings are ignored.
func (r *PostgresMeetingRepository) RecordAutoEndOutcome(ctx context.Context, meetingID uuid.UUID, outcome models.AutoEndOutcome) error {
	if !outcome.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	query := `UPDATE meetings SET auto_end_check_at = $1, auto_end_check_outcome = $2 WHERE id = $3`
	if _, err := r.pool.Exec(ctx, query, time.Now(), string(outcome), meetingID); err != nil {
		return fmt.Errorf("failed to record auto-end outcome: %w", err)
	}
	return nil
}

// RearmErrored puts events and sessions parked with a meeting error back on
// the queue once their last attempt is older than olderThan.
func (r *PostgresMeetingRepository) RearmErrored(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	var total int64

	for _, table := range []string{"events", "sessions"} {
		query := `UPDATE ` + table + `
		          SET meeting_in_sync = FALSE, updated_at = NOW()
		          WHERE meeting_error IS NOT NULL AND meeting_in_sync = TRUE AND updated_at < $1`
		result, err := r.pool.Exec(ctx, query, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to rearm %s: %w", table, err)
		}
		total += result.RowsAffected()
	}
	return total, nil
}
