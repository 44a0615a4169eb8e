package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ocgroups/meetsync/internal/hostalloc"
)

// AvailableHost picks a host account from candidates for the window
// [start, end). It returns false, without error, when the window is empty or
// every candidate is at maxConcurrent. The slot is not reserved: the caller
// should create the meeting promptly after allocation.
func (r *PostgresMeetingRepository) AvailableHost(ctx context.Context, candidates []string, maxConcurrent int, start, end time.Time) (string, bool, error) {
	if !end.After(start) || len(candidates) == 0 {
		return "", false, nil
	}

	now := time.Now()
	since := now
	if start.Before(since) {
		since = start
	}

	// Meetings still busy (including the buffer) at the earlier of now and
	// the requested start are the only ones that can overlap or be in the future.
	query := `SELECT m.host_id, COALESCE(e.starts_at, s.starts_at), COALESCE(e.ends_at, s.ends_at)
	          FROM meetings m
	          LEFT JOIN events e ON e.id = m.event_id
	          LEFT JOIN sessions s ON s.id = m.session_id
	          WHERE m.host_id = ANY($1)
	            AND COALESCE(e.starts_at, s.starts_at) IS NOT NULL
	            AND COALESCE(e.ends_at, s.ends_at) IS NOT NULL
	            AND COALESCE(e.ends_at, s.ends_at) > $2`

	rows, err := r.pool.Query(ctx, query, candidates, since.Add(-hostalloc.BusyBuffer))
	if err != nil {
		return "", false, fmt.Errorf("failed to query host bookings: %w", err)
	}
	defer rows.Close()

	var bookings []hostalloc.Booking
	for rows.Next() {
		var b hostalloc.Booking
		if err := rows.Scan(&b.HostID, &b.StartsAt, &b.EndsAt); err != nil {
			return "", false, fmt.Errorf("failed to scan host booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("error iterating host bookings: %w", err)
	}

	host, ok := hostalloc.Select(candidates, maxConcurrent, start, end, now, bookings)
	return host, ok, nil
}
