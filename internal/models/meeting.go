package models

import (
	"time"

	"github.com/google/uuid"
)

type Meeting struct {
	ID                  uuid.UUID       `json:"id"`
	ProviderID          string          `json:"provider_id"`
	ProviderMeetingID   string          `json:"provider_meeting_id"`
	JoinURL             string          `json:"join_url"`
	Password            *string         `json:"-"`
	HostID              *string         `json:"host_id,omitempty"`
	RecordingURL        *string         `json:"recording_url,omitempty"`
	AutoEndCheckAt      *time.Time      `json:"auto_end_check_at,omitempty"`
	AutoEndCheckOutcome *AutoEndOutcome `json:"auto_end_check_outcome,omitempty"`
	EventID             *uuid.UUID      `json:"event_id,omitempty"`
	SessionID           *uuid.UUID      `json:"session_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Orphaned reports whether the owning event or session was hard-deleted.
func (m *Meeting) Orphaned() bool {
	return m.EventID == nil && m.SessionID == nil
}

// MeetingRef points at a meeting and its owner. Any field may be nil: an
// orphan has no owner, and a pending teardown may have no meeting row.
type MeetingRef struct {
	MeetingID *uuid.UUID `json:"meeting_id,omitempty"`
	EventID   *uuid.UUID `json:"event_id,omitempty"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
}

type AutoEndOutcome string

const (
	AutoEndOutcomeAutoEnded         AutoEndOutcome = "auto_ended"
	AutoEndOutcomeAlreadyNotRunning AutoEndOutcome = "already_not_running"
	AutoEndOutcomeError             AutoEndOutcome = "error"
	AutoEndOutcomeNotFound          AutoEndOutcome = "not_found"
)

func (o AutoEndOutcome) Valid() bool {
	switch o {
	case AutoEndOutcomeAutoEnded, AutoEndOutcomeAlreadyNotRunning, AutoEndOutcomeError, AutoEndOutcomeNotFound:
		return true
	}
	return false
}

// OverdueMeeting is a meeting whose scheduled end passed without an auto-end check.
type OverdueMeeting struct {
	MeetingID         uuid.UUID `json:"meeting_id"`
	ProviderID        string    `json:"provider_id"`
	ProviderMeetingID string    `json:"provider_meeting_id"`
	EndsAt            time.Time `json:"ends_at"`
}
