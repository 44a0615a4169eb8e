package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ocgroups/meetsync/internal/models"
)

// MeetingQueue yields pending synchronization work, one item per call.
type MeetingQueue interface {
	NextOutOfSyncItem(ctx context.Context) (*models.WorkItem, error)
	Release(ctx context.Context, item *models.WorkItem) error
}

// HostAllocator picks a provider host account for a meeting window.
type HostAllocator interface {
	AvailableHost(ctx context.Context, candidates []string, maxConcurrent int, start, end time.Time) (string, bool, error)
}

// MeetingApplier records the outcome of provider calls.
type MeetingApplier interface {
	ApplyMeetingCreated(ctx context.Context, meeting *models.Meeting) error
	ApplyMeetingUpdated(ctx context.Context, ref models.MeetingRef) error
	ApplyMeetingDeleted(ctx context.Context, ref models.MeetingRef) error
	ApplyMeetingError(ctx context.Context, ref models.MeetingRef, message string) error
	ApplyRecordingURL(ctx context.Context, providerID, providerMeetingID, url string) error
}

// AutoEndMonitor finds meetings that overran their schedule.
type AutoEndMonitor interface {
	NextOverdueMeeting(ctx context.Context) (*models.OverdueMeeting, error)
	ListOverdueMeetings(ctx context.Context, limit int) ([]*models.OverdueMeeting, error)
	AutoEndPending(ctx context.Context, meetingID uuid.UUID) (bool, error)
	RecordAutoEndOutcome(ctx context.Context, meetingID uuid.UUID, outcome models.AutoEndOutcome) error
}

// Rearmer puts owners parked with a meeting error back on the queue.
type Rearmer interface {
	RearmErrored(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OwnerRepository persists events and sessions, keeping their sync state
// consistent with every change that affects the provider meeting.
type OwnerRepository interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	UpdateEvent(ctx context.Context, event *models.Event) error
	SetEventStatus(ctx context.Context, id uuid.UUID, status EventStatus) error
	HardDeleteEvent(ctx context.Context, id uuid.UUID) error

	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	HardDeleteSession(ctx context.Context, id uuid.UUID) error
}

// Claimer grants a worker exclusive use of a queue item for a limited time.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
