package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ocgroups/meetsync/internal/models"
)

type PostgresMeetingRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMeetingRepository(pool *pgxpool.Pool) *PostgresMeetingRepository {
	return &PostgresMeetingRepository{pool: pool}
}

func (r *PostgresMeetingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	query := `SELECT id, provider_id, provider_meeting_id, join_url, password, host_id, recording_url,
	                 auto_end_check_at, auto_end_check_outcome, event_id, session_id, created_at
	          FROM meetings
	          WHERE id = $1`

	var (
		meeting models.Meeting
		outcome *string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&meeting.ID,
		&meeting.ProviderID,
		&meeting.ProviderMeetingID,
		&meeting.JoinURL,
		&meeting.Password,
		&meeting.HostID,
		&meeting.RecordingURL,
		&meeting.AutoEndCheckAt,
		&outcome,
		&meeting.EventID,
		&meeting.SessionID,
		&meeting.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	if outcome != nil {
		o := models.AutoEndOutcome(*outcome)
		meeting.AutoEndCheckOutcome = &o
	}
	return &meeting, nil
}

// GetByOwner returns the meeting linked to an event or session.
func (r *PostgresMeetingRepository) GetByOwner(ctx context.Context, ref models.MeetingRef) (*models.Meeting, error) {
	var (
		query string
		id    uuid.UUID
	)
	switch {
	case ref.EventID != nil && ref.SessionID == nil:
		query, id = `SELECT id FROM meetings WHERE event_id = $1`, *ref.EventID
	case ref.SessionID != nil && ref.EventID == nil:
		query, id = `SELECT id FROM meetings WHERE session_id = $1`, *ref.SessionID
	default:
		return nil, ErrInvalidOwner
	}

	var meetingID uuid.UUID
	err := r.pool.QueryRow(ctx, query, id).Scan(&meetingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting by owner: %w", err)
	}
	return r.GetByID(ctx, meetingID)
}

// ApplyMeetingCreated stores a meeting created on the provider and marks its
// owner in sync. Exactly one of EventID and SessionID must be set. It fails
// with ErrMeetingExists if the owner already has a meeting.
func (r *PostgresMeetingRepository) ApplyMeetingCreated(ctx context.Context, meeting *models.Meeting) error {
	if (meeting.EventID == nil) == (meeting.SessionID == nil) {
		return ErrInvalidOwner
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `INSERT INTO meetings (provider_id, provider_meeting_id, join_url, password, host_id, event_id, session_id)
		          VALUES ($1, $2, $3, $4, $5, $6, $7)
		          RETURNING id, created_at`

		err := tx.QueryRow(ctx, query,
			meeting.ProviderID,
			meeting.ProviderMeetingID,
			meeting.JoinURL,
			meeting.Password,
			meeting.HostID,
			meeting.EventID,
			meeting.SessionID,
		).Scan(&meeting.ID, &meeting.CreatedAt)
		if isUniqueViolation(err) {
			return ErrMeetingExists
		}
		if err != nil {
			return fmt.Errorf("failed to create meeting: %w", err)
		}

		return markOwnerSynced(ctx, tx, models.MeetingRef{EventID: meeting.EventID, SessionID: meeting.SessionID})
	})
}

// ApplyMeetingUpdated marks the owner in sync after the provider meeting was
// reconfigured.
func (r *PostgresMeetingRepository) ApplyMeetingUpdated(ctx context.Context, ref models.MeetingRef) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return markOwnerSynced(ctx, tx, ref)
	})
}

// ApplyMeetingDeleted removes the local meeting, if any, and marks the owner,
// if it still exists, in sync.
func (r *PostgresMeetingRepository) ApplyMeetingDeleted(ctx context.Context, ref models.MeetingRef) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if ref.MeetingID != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, *ref.MeetingID); err != nil {
				return fmt.Errorf("failed to delete meeting: %w", err)
			}
		}
		return markOwnerSynced(ctx, tx, ref)
	})
}

// ApplyMeetingError stores a provider failure on the owner and parks it in
// sync until it is re-armed. An orphaned meeting has nothing to report the
// error on, so its row is removed instead.
func (r *PostgresMeetingRepository) ApplyMeetingError(ctx context.Context, ref models.MeetingRef, message string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		table, ownerID, ok := ownerTable(ref)
		if ok {
			query := `UPDATE ` + table + `
			          SET meeting_error = $1, meeting_in_sync = TRUE, updated_at = NOW()
			          WHERE id = $2`
			result, err := tx.Exec(ctx, query, message, ownerID)
			if err != nil {
				return fmt.Errorf("failed to record meeting error: %w", err)
			}
			if result.RowsAffected() > 0 {
				return nil
			}
		}

		if ref.MeetingID != nil {
			query := `DELETE FROM meetings WHERE id = $1 AND event_id IS NULL AND session_id IS NULL`
			if _, err := tx.Exec(ctx, query, *ref.MeetingID); err != nil {
				return fmt.Errorf("failed to delete orphaned meeting: %w", err)
			}
		}
		return nil
	})
}

// ApplyRecordingURL stores the recording location of a meeting. Unknown
// meetings are ignored.
func (r *PostgresMeetingRepository) ApplyRecordingURL(ctx context.Context, providerID, providerMeetingID, url string) error {
	query := `UPDATE meetings SET recording_url = $1 WHERE provider_id = $2 AND provider_meeting_id = $3`

	if _, err := r.pool.Exec(ctx, query, url, providerID, providerMeetingID); err != nil {
		return fmt.Errorf("failed to update recording url: %w", err)
	}
	return nil
}

func ownerTable(ref models.MeetingRef) (string, uuid.UUID, bool) {
	switch {
	case ref.EventID != nil:
		return "events", *ref.EventID, true
	case ref.SessionID != nil:
		return "sessions", *ref.SessionID, true
	}
	return "", uuid.Nil, false
}

// markOwnerSynced clears the owner's pending state and error. A missing owner
// is not an error.
func markOwnerSynced(ctx context.Context, tx pgx.Tx, ref models.MeetingRef) error {
	table, ownerID, ok := ownerTable(ref)
	if !ok {
		return nil
	}
	query := `UPDATE ` + table + `
	          SET meeting_in_sync = TRUE, meeting_error = NULL, updated_at = NOW()
	          WHERE id = $1`
	if _, err := tx.Exec(ctx, query, ownerID); err != nil {
		return fmt.Errorf("failed to mark %s in sync: %w", table, err)
	}
	return nil
}
