package repositories

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ocgroups/meetsync/internal/database"
	"github.com/ocgroups/meetsync/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// getTestPool connects to TEST_DATABASE_URL, migrates it and empties the
// meeting tables. Tests using it must not run in parallel.
func getTestPool(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	require.NoError(t, database.Migrate(url, logger), "Failed to migrate test database")

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)

	cleanupTestData(t, pool)
	return pool
}

func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	_, err := pool.Exec(context.Background(), `TRUNCATE meetings, sessions, events`)
	require.NoError(t, err, "Failed to clean up test data")
}

// tomorrowAt returns hour:minute UTC of the next day, truncated to the
// microsecond precision Postgres stores.
func tomorrowAt(hour, minute int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)
}

func newTestEvent(t *testing.T, owners *PostgresOwnerRepository, name string, opts ...func(*models.Event)) *models.Event {
	start := tomorrowAt(10, 0)
	end := start.Add(time.Hour)
	provider := "zoom"

	event := &models.Event{
		Name:              name,
		StartsAt:          &start,
		EndsAt:            &end,
		Timezone:          "Europe/Madrid",
		Published:         true,
		MeetingRequested:  true,
		MeetingProviderID: &provider,
		MeetingHosts:      []string{"alice@example.com"},
	}
	for _, opt := range opts {
		opt(event)
	}
	require.NoError(t, owners.CreateEvent(context.Background(), event))
	return event
}

func newTestSession(t *testing.T, owners *PostgresOwnerRepository, event *models.Event, name string, opts ...func(*models.Session)) *models.Session {
	start := tomorrowAt(10, 0)
	end := start.Add(30 * time.Minute)
	provider := "zoom"

	session := &models.Session{
		EventID:           event.ID,
		Name:              name,
		Kind:              models.SessionKindVirtual,
		StartsAt:          &start,
		EndsAt:            &end,
		MeetingRequested:  true,
		MeetingProviderID: &provider,
	}
	for _, opt := range opts {
		opt(session)
	}
	require.NoError(t, owners.CreateSession(context.Background(), session))
	return session
}

// createMeeting records a provider meeting for the owner as the sync worker would.
func createMeeting(t *testing.T, meetings *PostgresMeetingRepository, eventID, sessionID *uuid.UUID, host string) *models.Meeting {
	meeting := &models.Meeting{
		ProviderID:        "zoom",
		ProviderMeetingID: "pm-" + uuid.NewString(),
		JoinURL:           "https://meet.example.com/j/1",
		EventID:           eventID,
		SessionID:         sessionID,
	}
	if host != "" {
		meeting.HostID = &host
	}
	require.NoError(t, meetings.ApplyMeetingCreated(context.Background(), meeting))
	return meeting
}
