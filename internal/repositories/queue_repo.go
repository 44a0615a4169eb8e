package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ocgroups/meetsync/internal/models"
)

// queueScanLimit bounds how many candidates of one class are read per call.
// Candidates claimed by other workers are skipped, so it only needs to exceed
// the number of concurrent workers.
const queueScanLimit = 20

const (
	eventEligible = `(e.meeting_requested AND e.published AND NOT e.canceled AND NOT e.deleted
		AND e.starts_at IS NOT NULL AND e.ends_at IS NOT NULL AND e.meeting_provider_id IS NOT NULL)`

	sessionEligible = `(s.meeting_requested AND s.kind <> 'in-person'
		AND e.published AND NOT e.canceled AND NOT e.deleted
		AND s.starts_at IS NOT NULL AND s.ends_at IS NOT NULL AND s.meeting_provider_id IS NOT NULL)`
)

type queueClass struct {
	name  string
	query string
	scan  func(row pgx.Row) (*models.WorkItem, error)
}

// queueClasses lists the kinds of pending work from highest to lowest
// priority: creates and updates before deletes, events before sessions,
// orphaned meetings last. Every query takes a row limit and an optional id
// filter, and orders by creation so the oldest pending work comes first.
var queueClasses = []queueClass{
	{
		name: "event_upsert",
		query: `SELECT e.id, m.id, m.provider_meeting_id, m.join_url, m.password, m.provider_id,
		               e.meeting_provider_id, e.name, e.timezone, e.starts_at,
		               EXTRACT(EPOCH FROM e.ends_at - e.starts_at)::BIGINT,
		               e.meeting_hosts, e.speakers, e.meeting_requires_password
		          FROM events e
		          LEFT JOIN meetings m ON m.event_id = e.id
		         WHERE e.meeting_in_sync = FALSE AND ` + eventEligible + `
		           AND ($2::UUID IS NULL OR e.id = $2)
		         ORDER BY e.created_at, e.id
		         LIMIT $1`,
		scan: scanUpsertItem(func(item *models.WorkItem, id uuid.UUID) { item.EventID = &id }),
	},
	{
		name: "session_upsert",
		query: `SELECT s.id, m.id, m.provider_meeting_id, m.join_url, m.password, m.provider_id,
		               s.meeting_provider_id, s.name, e.timezone, s.starts_at,
		               EXTRACT(EPOCH FROM s.ends_at - s.starts_at)::BIGINT,
		               s.meeting_hosts, e.meeting_hosts, s.meeting_requires_password
		          FROM sessions s
		          JOIN events e ON e.id = s.event_id
		          LEFT JOIN meetings m ON m.session_id = s.id
		         WHERE s.meeting_in_sync = FALSE AND ` + sessionEligible + `
		           AND ($2::UUID IS NULL OR s.id = $2)
		         ORDER BY s.created_at, s.id
		         LIMIT $1`,
		scan: scanUpsertItem(func(item *models.WorkItem, id uuid.UUID) { item.SessionID = &id }),
	},
	{
		name: "event_delete",
		query: `SELECT e.id, m.id, m.provider_meeting_id, m.provider_id, COALESCE(m.provider_id, e.meeting_provider_id)
		          FROM events e
		          LEFT JOIN meetings m ON m.event_id = e.id
		         WHERE e.meeting_in_sync = FALSE AND NOT ` + eventEligible + `
		           AND ($2::UUID IS NULL OR e.id = $2)
		         ORDER BY e.created_at, e.id
		         LIMIT $1`,
		scan: scanDeleteItem(func(item *models.WorkItem, id uuid.UUID) { item.EventID = &id }),
	},
	{
		name: "session_delete",
		query: `SELECT s.id, m.id, m.provider_meeting_id, m.provider_id, COALESCE(m.provider_id, s.meeting_provider_id)
		          FROM sessions s
		          JOIN events e ON e.id = s.event_id
		          LEFT JOIN meetings m ON m.session_id = s.id
		         WHERE s.meeting_in_sync = FALSE AND NOT ` + sessionEligible + `
		           AND ($2::UUID IS NULL OR s.id = $2)
		         ORDER BY s.created_at, s.id
		         LIMIT $1`,
		scan: scanDeleteItem(func(item *models.WorkItem, id uuid.UUID) { item.SessionID = &id }),
	},
	{
		name: "orphan_delete",
		query: `SELECT m.id, m.provider_meeting_id, m.provider_id
		          FROM meetings m
		         WHERE m.event_id IS NULL AND m.session_id IS NULL
		           AND ($2::UUID IS NULL OR m.id = $2)
		         ORDER BY m.created_at, m.id
		         LIMIT $1`,
		scan: scanOrphanItem,
	},
}

type PostgresMeetingQueue struct {
	pool    *pgxpool.Pool
	claimer Claimer
}

func NewPostgresMeetingQueue(pool *pgxpool.Pool, claimer Claimer) *PostgresMeetingQueue {
	return &PostgresMeetingQueue{pool: pool, claimer: claimer}
}

// NextOutOfSyncItem returns the highest priority pending item that no other
// worker holds, claiming it for the caller. It returns nil when nothing is
// pending. The item keeps being returned by later calls until its owner is
// marked in sync (or the orphan removed), and the caller must Release it
// after writing the outcome back.
func (q *PostgresMeetingQueue) NextOutOfSyncItem(ctx context.Context) (*models.WorkItem, error) {
	for _, class := range queueClasses {
		candidates, err := q.fetch(ctx, class, queueScanLimit, nil)
		if err != nil {
			return nil, err
		}

		for _, item := range candidates {
			key := item.ClaimKey()
			ok, err := q.claimer.Claim(ctx, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			// Another worker may have finished the item between our read and
			// the claim; read it again now that we hold it.
			id := classRowID(item)
			fresh, err := q.fetch(ctx, class, 1, &id)
			if err != nil {
				q.claimer.Release(ctx, key)
				return nil, err
			}
			if len(fresh) == 0 {
				if err := q.claimer.Release(ctx, key); err != nil {
					return nil, err
				}
				continue
			}
			return fresh[0], nil
		}
	}
	return nil, nil
}

// Release gives up the caller's claim on an item.
func (q *PostgresMeetingQueue) Release(ctx context.Context, item *models.WorkItem) error {
	return q.claimer.Release(ctx, item.ClaimKey())
}

func (q *PostgresMeetingQueue) fetch(ctx context.Context, class queueClass, limit int, id *uuid.UUID) ([]*models.WorkItem, error) {
	rows, err := q.pool.Query(ctx, class.query, limit, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s work: %w", class.name, err)
	}
	defer rows.Close()

	var items []*models.WorkItem
	for rows.Next() {
		item, err := class.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s work: %w", class.name, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s work: %w", class.name, err)
	}
	return items, nil
}

// classRowID returns the id a class query filters on.
func classRowID(item *models.WorkItem) uuid.UUID {
	switch {
	case item.EventID != nil:
		return *item.EventID
	case item.SessionID != nil:
		return *item.SessionID
	}
	return *item.MeetingID
}

func scanUpsertItem(setOwner func(*models.WorkItem, uuid.UUID)) func(pgx.Row) (*models.WorkItem, error) {
	return func(row pgx.Row) (*models.WorkItem, error) {
		var (
			ownerID          uuid.UUID
			item             models.WorkItem
			topic, timezone  string
			startsAt         time.Time
			duration         int64
			hosts, extra     []string
			passwordRequired bool
		)
		err := row.Scan(
			&ownerID,
			&item.MeetingID,
			&item.ProviderMeetingID,
			&item.JoinURL,
			&item.Password,
			&item.MeetingProviderID,
			&item.ProviderID,
			&topic,
			&timezone,
			&startsAt,
			&duration,
			&hosts,
			&extra,
			&passwordRequired,
		)
		if err != nil {
			return nil, err
		}

		setOwner(&item, ownerID)
		item.Action = models.WorkActionCreate
		if item.MeetingID != nil {
			item.Action = models.WorkActionUpdate
		}
		item.Topic = &topic
		item.Timezone = &timezone
		item.StartsAt = &startsAt
		item.DurationSeconds = &duration
		item.Hosts = mergeHosts(hosts, extra)
		item.PasswordRequired = &passwordRequired
		return &item, nil
	}
}

func scanDeleteItem(setOwner func(*models.WorkItem, uuid.UUID)) func(pgx.Row) (*models.WorkItem, error) {
	return func(row pgx.Row) (*models.WorkItem, error) {
		var (
			ownerID uuid.UUID
			item    models.WorkItem
		)
		if err := row.Scan(&ownerID, &item.MeetingID, &item.ProviderMeetingID, &item.MeetingProviderID, &item.ProviderID); err != nil {
			return nil, err
		}
		setOwner(&item, ownerID)
		item.Action = models.WorkActionDelete
		return &item, nil
	}
}

func scanOrphanItem(row pgx.Row) (*models.WorkItem, error) {
	var (
		meetingID         uuid.UUID
		providerMeetingID string
		providerID        string
	)
	if err := row.Scan(&meetingID, &providerMeetingID, &providerID); err != nil {
		return nil, err
	}
	return &models.WorkItem{
		Action:            models.WorkActionDelete,
		MeetingID:         &meetingID,
		ProviderMeetingID: &providerMeetingID,
		MeetingProviderID: &providerID,
		ProviderID:        &providerID,
	}, nil
}

// mergeHosts joins host lists keeping first-seen order and dropping duplicates.
func mergeHosts(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, host := range list {
			if host == "" {
				continue
			}
			if _, ok := seen[host]; ok {
				continue
			}
			seen[host] = struct{}{}
			out = append(out, host)
		}
	}
	return out
}
