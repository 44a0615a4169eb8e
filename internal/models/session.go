package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionKind string

const (
	SessionKindInPerson SessionKind = "in-person"
	SessionKindVirtual  SessionKind = "virtual"
	SessionKindHybrid   SessionKind = "hybrid"
)

// SupportsMeeting reports whether sessions of this kind may carry a provider meeting.
func (k SessionKind) SupportsMeeting() bool {
	return k == SessionKindVirtual || k == SessionKindHybrid
}

type Session struct {
	ID                      uuid.UUID   `json:"id"`
	EventID                 uuid.UUID   `json:"event_id"`
	Name                    string      `json:"name"`
	Kind                    SessionKind `json:"kind"`
	StartsAt                *time.Time  `json:"starts_at,omitempty"`
	EndsAt                  *time.Time  `json:"ends_at,omitempty"`
	MeetingRequested        bool        `json:"meeting_requested"`
	MeetingProviderID       *string     `json:"meeting_provider_id,omitempty"`
	MeetingHosts            []string    `json:"meeting_hosts"`
	MeetingRequiresPassword bool        `json:"meeting_requires_password"`
	MeetingError            *string     `json:"meeting_error,omitempty"`
	MeetingSync             SyncState   `json:"-"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// Snapshot captures the session fields that shape the provider meeting. The
// timezone and parent host list come from the owning event.
func (s *Session) Snapshot(parent *Event) *MeetingSnapshot {
	snap := &MeetingSnapshot{
		Requested:        s.MeetingRequested,
		Name:             s.Name,
		StartsAt:         s.StartsAt,
		EndsAt:           s.EndsAt,
		ProviderID:       derefString(s.MeetingProviderID),
		Hosts:            s.MeetingHosts,
		PasswordRequired: s.MeetingRequiresPassword,
		Kind:             s.Kind,
	}
	if parent != nil {
		snap.Timezone = parent.Timezone
		snap.ParentHosts = parent.MeetingHosts
	}
	return snap
}
