package models

import (
	"time"

	"github.com/google/uuid"
)

type WorkAction string

const (
	WorkActionCreate WorkAction = "create"
	WorkActionUpdate WorkAction = "update"
	WorkActionDelete WorkAction = "delete"
)

// WorkItem is one unit of pending meeting synchronization work.
type WorkItem struct {
	Action            WorkAction `json:"action"`
	EventID           *uuid.UUID `json:"event_id,omitempty"`
	SessionID         *uuid.UUID `json:"session_id,omitempty"`
	MeetingID         *uuid.UUID `json:"meeting_id,omitempty"`
	ProviderMeetingID *string    `json:"provider_meeting_id,omitempty"`
	JoinURL           *string    `json:"join_url,omitempty"`
	Password          *string    `json:"-"`
	// MeetingProviderID is the provider hosting the linked meeting, which
	// differs from ProviderID after the organizer switched providers.
	MeetingProviderID *string    `json:"meeting_provider_id,omitempty"`
	ProviderID        *string    `json:"provider_id,omitempty"`
	Topic             *string    `json:"topic,omitempty"`
	Timezone          *string    `json:"timezone,omitempty"`
	StartsAt          *time.Time `json:"starts_at,omitempty"`
	DurationSeconds   *int64     `json:"duration_seconds,omitempty"`
	Hosts             []string   `json:"hosts,omitempty"`
	PasswordRequired  *bool      `json:"password_required,omitempty"`
}

func (w *WorkItem) Delete() bool {
	return w.Action == WorkActionDelete
}

// Ref returns the meeting and owner the item refers to.
func (w *WorkItem) Ref() MeetingRef {
	return MeetingRef{MeetingID: w.MeetingID, EventID: w.EventID, SessionID: w.SessionID}
}

// ClaimKey identifies the item for cross-worker claiming.
func (w *WorkItem) ClaimKey() string {
	switch {
	case w.EventID != nil:
		return "event:" + w.EventID.String()
	case w.SessionID != nil:
		return "session:" + w.SessionID.String()
	case w.MeetingID != nil:
		return "meeting:" + w.MeetingID.String()
	}
	return ""
}

// EndsAt returns the scheduled end derived from start and duration.
func (w *WorkItem) EndsAt() *time.Time {
	if w.StartsAt == nil || w.DurationSeconds == nil {
		return nil
	}
	end := w.StartsAt.Add(time.Duration(*w.DurationSeconds) * time.Second)
	return &end
}
