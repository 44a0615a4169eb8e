package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ocgroups/meetsync/internal/models"
	"github.com/ocgroups/meetsync/internal/syncstate"
)

// EventStatus holds the event flags that decide whether meetings should exist.
type EventStatus struct {
	Published bool
	Canceled  bool
	Deleted   bool
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	eventColumns = `id, name, starts_at, ends_at, timezone, published, canceled, deleted,
	                meeting_requested, meeting_provider_id, meeting_hosts, speakers,
	                meeting_requires_password, meeting_error, meeting_in_sync, created_at, updated_at`

	sessionColumns = `id, event_id, name, kind, starts_at, ends_at, meeting_requested,
	                  meeting_provider_id, meeting_hosts, meeting_requires_password,
	                  meeting_error, meeting_in_sync, created_at, updated_at`
)

// PostgresOwnerRepository persists the meeting fields of events and sessions.
// Every write recomputes the sync state so the queue sees the change.
type PostgresOwnerRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOwnerRepository(pool *pgxpool.Pool) *PostgresOwnerRepository {
	return &PostgresOwnerRepository{pool: pool}
}

func (r *PostgresOwnerRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	event.MeetingSync = syncstate.Classify(nil, event.Snapshot())

	query := `INSERT INTO events (name, starts_at, ends_at, timezone, published, canceled, deleted,
	                              meeting_requested, meeting_provider_id, meeting_hosts, speakers,
	                              meeting_requires_password, meeting_in_sync)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		event.Name,
		event.StartsAt,
		event.EndsAt,
		event.Timezone,
		event.Published,
		event.Canceled,
		event.Deleted,
		event.MeetingRequested,
		event.MeetingProviderID,
		event.MeetingHosts,
		event.Speakers,
		event.MeetingRequiresPassword,
		event.MeetingSync.Nullable(),
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *PostgresOwnerRepository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return getEvent(ctx, r.pool, id, false)
}

// UpdateEvent saves the meeting-related fields of an event. Publication
// state is changed through SetEventStatus.
func (r *PostgresOwnerRepository) UpdateEvent(ctx context.Context, event *models.Event) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		before, err := getEvent(ctx, tx, event.ID, true)
		if err != nil {
			return err
		}

		event.MeetingSync = syncstate.Next(before.MeetingSync, before.Snapshot(), event.Snapshot())

		query := `UPDATE events
		          SET name = $1, starts_at = $2, ends_at = $3, timezone = $4,
		              meeting_requested = $5, meeting_provider_id = $6, meeting_hosts = $7,
		              speakers = $8, meeting_requires_password = $9, meeting_in_sync = $10,
		              updated_at = NOW()
		          WHERE id = $11
		          RETURNING published, canceled, deleted, updated_at`

		err = tx.QueryRow(ctx, query,
			event.Name,
			event.StartsAt,
			event.EndsAt,
			event.Timezone,
			event.MeetingRequested,
			event.MeetingProviderID,
			event.MeetingHosts,
			event.Speakers,
			event.MeetingRequiresPassword,
			event.MeetingSync.Nullable(),
			event.ID,
		).Scan(&event.Published, &event.Canceled, &event.Deleted, &event.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}

		if syncstate.ParentChanged(before, event) {
			query := `UPDATE sessions SET meeting_in_sync = FALSE, updated_at = NOW()
			          WHERE event_id = $1 AND meeting_requested`
			if _, err := tx.Exec(ctx, query, event.ID); err != nil {
				return fmt.Errorf("failed to flag sessions out of sync: %w", err)
			}
		}
		return nil
	})
}

// SetEventStatus publishes, unpublishes, cancels or soft-deletes an event.
// When the change decides whether a meeting should exist, the event and its
// sessions are flagged for the queue.
func (r *PostgresOwnerRepository) SetEventStatus(ctx context.Context, id uuid.UUID, status EventStatus) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		before, err := getEvent(ctx, tx, id, true)
		if err != nil {
			return err
		}

		after := *before
		after.Published = status.Published
		after.Canceled = status.Canceled
		after.Deleted = status.Deleted

		sync := before.MeetingSync
		if before.MeetingEligible() != after.MeetingEligible() && (before.MeetingRequested || sync != models.NeverRequested) {
			sync = models.PendingAction
		}

		query := `UPDATE events
		          SET published = $1, canceled = $2, deleted = $3, meeting_in_sync = $4, updated_at = NOW()
		          WHERE id = $5`
		if _, err := tx.Exec(ctx, query, status.Published, status.Canceled, status.Deleted, sync.Nullable(), id); err != nil {
			return fmt.Errorf("failed to update event status: %w", err)
		}

		if before.Live() != after.Live() {
			query := `UPDATE sessions SET meeting_in_sync = FALSE, updated_at = NOW()
			          WHERE event_id = $1 AND (meeting_requested OR meeting_in_sync IS NOT NULL)`
			if _, err := tx.Exec(ctx, query, id); err != nil {
				return fmt.Errorf("failed to flag sessions out of sync: %w", err)
			}
		}
		return nil
	})
}

// HardDeleteEvent removes the event and its sessions. Their meetings stay
// behind as orphans for the queue to tear down.
func (r *PostgresOwnerRepository) HardDeleteEvent(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresOwnerRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if !session.Kind.SupportsMeeting() {
		session.MeetingRequested = false
	}
	session.MeetingSync = syncstate.Classify(nil, session.Snapshot(nil))

	query := `INSERT INTO sessions (event_id, name, kind, starts_at, ends_at, meeting_requested,
	                                meeting_provider_id, meeting_hosts, meeting_requires_password, meeting_in_sync)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		session.EventID,
		session.Name,
		string(session.Kind),
		session.StartsAt,
		session.EndsAt,
		session.MeetingRequested,
		session.MeetingProviderID,
		session.MeetingHosts,
		session.MeetingRequiresPassword,
		session.MeetingSync.Nullable(),
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *PostgresOwnerRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return getSession(ctx, r.pool, id, false)
}

func (r *PostgresOwnerRepository) UpdateSession(ctx context.Context, session *models.Session) error {
	if !session.Kind.SupportsMeeting() {
		session.MeetingRequested = false
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		before, err := getSession(ctx, tx, session.ID, true)
		if err != nil {
			return err
		}
		parent, err := getEvent(ctx, tx, before.EventID, false)
		if err != nil {
			return err
		}

		session.EventID = before.EventID
		session.MeetingSync = syncstate.Next(before.MeetingSync, before.Snapshot(parent), session.Snapshot(parent))

		query := `UPDATE sessions
		          SET name = $1, kind = $2, starts_at = $3, ends_at = $4, meeting_requested = $5,
		              meeting_provider_id = $6, meeting_hosts = $7, meeting_requires_password = $8,
		              meeting_in_sync = $9, updated_at = NOW()
		          WHERE id = $10
		          RETURNING updated_at`

		err = tx.QueryRow(ctx, query,
			session.Name,
			string(session.Kind),
			session.StartsAt,
			session.EndsAt,
			session.MeetingRequested,
			session.MeetingProviderID,
			session.MeetingHosts,
			session.MeetingRequiresPassword,
			session.MeetingSync.Nullable(),
			session.ID,
		).Scan(&session.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
}

func (r *PostgresOwnerRepository) HardDeleteSession(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func getEvent(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		event models.Event
		sync  *bool
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.Name,
		&event.StartsAt,
		&event.EndsAt,
		&event.Timezone,
		&event.Published,
		&event.Canceled,
		&event.Deleted,
		&event.MeetingRequested,
		&event.MeetingProviderID,
		&event.MeetingHosts,
		&event.Speakers,
		&event.MeetingRequiresPassword,
		&event.MeetingError,
		&sync,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	event.MeetingSync = models.SyncStateFromNullable(sync)
	return &event, nil
}

func getSession(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		session models.Session
		kind    string
		sync    *bool
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.EventID,
		&session.Name,
		&kind,
		&session.StartsAt,
		&session.EndsAt,
		&session.MeetingRequested,
		&session.MeetingProviderID,
		&session.MeetingHosts,
		&session.MeetingRequiresPassword,
		&session.MeetingError,
		&sync,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.Kind = models.SessionKind(kind)
	session.MeetingSync = models.SyncStateFromNullable(sync)
	return &session, nil
}
