package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ocgroups/meetsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeetingRepository_CreateMarksOwnerInSync(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	ctx := context.Background()

	event := newTestEvent(t, owners, "town hall")
	assert.Equal(t, models.PendingAction, event.MeetingSync)

	meeting := createMeeting(t, meetings, &event.ID, nil, "host-1")
	assert.NotEqual(t, uuid.Nil, meeting.ID)

	stored, err := owners.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InSync, stored.MeetingSync)
	assert.Nil(t, stored.MeetingError)

	byOwner, err := meetings.GetByOwner(ctx, models.MeetingRef{EventID: &event.ID})
	require.NoError(t, err)
	assert.Equal(t, meeting.ID, byOwner.ID)
	assert.Equal(t, "host-1", *byOwner.HostID)
}

func TestMeetingRepository_CreateTwiceFails(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)

	event := newTestEvent(t, owners, "town hall")
	createMeeting(t, meetings, &event.ID, nil, "")

	err := meetings.ApplyMeetingCreated(context.Background(), &models.Meeting{
		ProviderID:        "zoom",
		ProviderMeetingID: "pm-dup",
		JoinURL:           "https://meet.example.com/j/dup",
		EventID:           &event.ID,
	})
	assert.ErrorIs(t, err, ErrMeetingExists)
}

func TestMeetingRepository_CreateRequiresSingleOwner(t *testing.T) {
	pool := getTestPool(t)
	meetings := NewPostgresMeetingRepository(pool)

	err := meetings.ApplyMeetingCreated(context.Background(), &models.Meeting{ProviderID: "zoom"})
	assert.ErrorIs(t, err, ErrInvalidOwner)
}

func TestMeetingRepository_GetByIDNotFound(t *testing.T) {
	pool := getTestPool(t)
	meetings := NewPostgresMeetingRepository(pool)

	_, err := meetings.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMeetingRepository_UnpublishTearsDownEventAndSessions(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	queue := NewPostgresMeetingQueue(pool, NewLocalClaimer(time.Minute))
	ctx := context.Background()

	event := newTestEvent(t, owners, "summit")
	session := newTestSession(t, owners, event, "panel")
	eventMeeting := createMeeting(t, meetings, &event.ID, nil, "")
	sessionMeeting := createMeeting(t, meetings, nil, &session.ID, "")

	require.NoError(t, owners.SetEventStatus(ctx, event.ID, EventStatus{Published: false}))

	item, err := queue.NextOutOfSyncItem(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.WorkActionDelete, item.Action)
	assert.Equal(t, event.ID, *item.EventID)
	assert.Equal(t, eventMeeting.ID, *item.MeetingID)
	require.NoError(t, meetings.ApplyMeetingDeleted(ctx, item.Ref()))
	require.NoError(t, queue.Release(ctx, item))

	item, err = queue.NextOutOfSyncItem(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.WorkActionDelete, item.Action)
	assert.Equal(t, session.ID, *item.SessionID)
	assert.Equal(t, sessionMeeting.ID, *item.MeetingID)
	require.NoError(t, meetings.ApplyMeetingDeleted(ctx, item.Ref()))
	require.NoError(t, queue.Release(ctx, item))

	_, err = meetings.GetByID(ctx, eventMeeting.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = meetings.GetByID(ctx, sessionMeeting.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := owners.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InSync, stored.MeetingSync)

	none, err := queue.NextOutOfSyncItem(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMeetingRepository_HardDeleteLeavesOrphan(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	ctx := context.Background()

	event := newTestEvent(t, owners, "gone")
	session := newTestSession(t, owners, event, "gone too")
	eventMeeting := createMeeting(t, meetings, &event.ID, nil, "")
	sessionMeeting := createMeeting(t, meetings, nil, &session.ID, "")

	require.NoError(t, owners.HardDeleteEvent(ctx, event.ID))

	for _, id := range []uuid.UUID{eventMeeting.ID, sessionMeeting.ID} {
		meeting, err := meetings.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, meeting.Orphaned())
	}

	assert.ErrorIs(t, owners.HardDeleteEvent(ctx, event.ID), ErrNotFound)
}

func TestMeetingRepository_ErrorParksOwnerUntilRearmed(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	queue := NewPostgresMeetingQueue(pool, NewLocalClaimer(time.Minute))
	ctx := context.Background()

	event := newTestEvent(t, owners, "flaky")

	require.NoError(t, meetings.ApplyMeetingError(ctx, models.MeetingRef{EventID: &event.ID}, "no host available"))

	stored, err := owners.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InSync, stored.MeetingSync)
	require.NotNil(t, stored.MeetingError)
	assert.Equal(t, "no host available", *stored.MeetingError)

	item, err := queue.NextOutOfSyncItem(ctx)
	require.NoError(t, err)
	assert.Nil(t, item, "an errored owner must not be retried before it is re-armed")

	n, err := meetings.RearmErrored(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "recent errors are left alone")

	n, err = meetings.RearmErrored(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	item, err = queue.NextOutOfSyncItem(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, event.ID, *item.EventID)

	createMeeting(t, meetings, &event.ID, nil, "")
	stored, err = owners.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.MeetingError, "a successful sync clears the error")
}

func TestMeetingRepository_ErrorOnOrphanRemovesIt(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	ctx := context.Background()

	event := newTestEvent(t, owners, "gone")
	meeting := createMeeting(t, meetings, &event.ID, nil, "")
	require.NoError(t, owners.HardDeleteEvent(ctx, event.ID))

	require.NoError(t, meetings.ApplyMeetingError(ctx, models.MeetingRef{MeetingID: &meeting.ID}, "provider down"))

	_, err := meetings.GetByID(ctx, meeting.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMeetingRepository_RecordingURL(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	ctx := context.Background()

	event := newTestEvent(t, owners, "recorded")
	meeting := createMeeting(t, meetings, &event.ID, nil, "")

	require.NoError(t, meetings.ApplyRecordingURL(ctx, "zoom", meeting.ProviderMeetingID, "https://rec.example.com/1"))
	require.NoError(t, meetings.ApplyRecordingURL(ctx, "zoom", "unknown", "https://rec.example.com/2"))

	stored, err := meetings.GetByID(ctx, meeting.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RecordingURL)
	assert.Equal(t, "https://rec.example.com/1", *stored.RecordingURL)
}

func TestAutoEnd_OldestOverdueFirst(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	ctx := context.Background()

	endedAgo := func(d time.Duration) func(*models.Event) {
		return func(e *models.Event) {
			end := time.Now().Add(-d).Truncate(time.Microsecond)
			start := end.Add(-time.Hour)
			e.StartsAt, e.EndsAt = &start, &end
		}
	}

	recent := newTestEvent(t, owners, "recent", endedAgo(25*time.Minute))
	old := newTestEvent(t, owners, "old", endedAgo(90*time.Minute))
	upcoming := newTestEvent(t, owners, "upcoming")
	recentMeeting := createMeeting(t, meetings, &recent.ID, nil, "")
	oldMeeting := createMeeting(t, meetings, &old.ID, nil, "")
	createMeeting(t, meetings, &upcoming.ID, nil, "")

	overdue, err := meetings.NextOverdueMeeting(ctx)
	require.NoError(t, err)
	require.NotNil(t, overdue)
	assert.Equal(t, oldMeeting.ID, overdue.MeetingID)
	assert.Equal(t, oldMeeting.ProviderMeetingID, overdue.ProviderMeetingID)
	require.NoError(t, meetings.RecordAutoEndOutcome(ctx, overdue.MeetingID, models.AutoEndOutcomeAutoEnded))

	overdue, err = meetings.NextOverdueMeeting(ctx)
	require.NoError(t, err)
	require.NotNil(t, overdue)
	assert.Equal(t, recentMeeting.ID, overdue.MeetingID)
	require.NoError(t, meetings.RecordAutoEndOutcome(ctx, overdue.MeetingID, models.AutoEndOutcomeAlreadyNotRunning))

	overdue, err = meetings.NextOverdueMeeting(ctx)
	require.NoError(t, err)
	assert.Nil(t, overdue)

	stored, err := meetings.GetByID(ctx, oldMeeting.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AutoEndCheckAt)
	assert.Equal(t, models.AutoEndOutcomeAutoEnded, *stored.AutoEndCheckOutcome)
}

func TestAutoEnd_PendingUntilRecorded(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	ctx := context.Background()

	end := time.Now().Add(-time.Hour).Truncate(time.Microsecond)
	start := end.Add(-time.Hour)
	event := newTestEvent(t, owners, "overran", func(e *models.Event) { e.StartsAt, e.EndsAt = &start, &end })
	meeting := createMeeting(t, meetings, &event.ID, nil, "")

	listed, err := meetings.ListOverdueMeetings(ctx, 20)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, meeting.ID, listed[0].MeetingID)

	pending, err := meetings.AutoEndPending(ctx, meeting.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, meetings.RecordAutoEndOutcome(ctx, meeting.ID, models.AutoEndOutcomeAutoEnded))

	pending, err = meetings.AutoEndPending(ctx, meeting.ID)
	require.NoError(t, err)
	assert.False(t, pending, "a checked meeting must not be ended again")

	pending, err = meetings.AutoEndPending(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestAutoEnd_SkipsCanceledEvents(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	ctx := context.Background()

	end := time.Now().Add(-time.Hour).Truncate(time.Microsecond)
	start := end.Add(-time.Hour)
	event := newTestEvent(t, owners, "canceled", func(e *models.Event) { e.StartsAt, e.EndsAt = &start, &end })
	createMeeting(t, meetings, &event.ID, nil, "")
	require.NoError(t, owners.SetEventStatus(ctx, event.ID, EventStatus{Published: true, Canceled: true}))

	overdue, err := meetings.NextOverdueMeeting(ctx)
	require.NoError(t, err)
	assert.Nil(t, overdue)
}

func TestAutoEnd_RejectsUnknownOutcome(t *testing.T) {
	pool := getTestPool(t)
	meetings := NewPostgresMeetingRepository(pool)

	err := meetings.RecordAutoEndOutcome(context.Background(), uuid.New(), models.AutoEndOutcome("exploded"))
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestAvailableHost_RespectsBuffer(t *testing.T) {
	pool := getTestPool(t)
	owners := NewPostgresOwnerRepository(pool)
	meetings := NewPostgresMeetingRepository(pool)
	ctx := context.Background()

	// host-1 is booked 10:00-11:00 tomorrow.
	event := newTestEvent(t, owners, "booked")
	createMeeting(t, meetings, &event.ID, nil, "host-1")

	host, ok, err := meetings.AvailableHost(ctx, []string{"host-1"}, 1, tomorrowAt(11, 5), tomorrowAt(12, 0))
	require.NoError(t, err)
	assert.False(t, ok, "11:05 falls inside the post-meeting buffer")
	assert.Empty(t, host)

	host, ok, err = meetings.AvailableHost(ctx, []string{"host-1"}, 1, tomorrowAt(11, 15), tomorrowAt(12, 0))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "host-1", host)

	host, ok, err = meetings.AvailableHost(ctx, []string{"host-1", "host-2"}, 1, tomorrowAt(10, 30), tomorrowAt(11, 30))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "host-2", host)

	host, ok, err = meetings.AvailableHost(ctx, []string{"host-1"}, 2, tomorrowAt(10, 30), tomorrowAt(11, 30))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "host-1", host)
}
