package models

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID                      uuid.UUID  `json:"id"`
	Name                    string     `json:"name"`
	StartsAt                *time.Time `json:"starts_at,omitempty"`
	EndsAt                  *time.Time `json:"ends_at,omitempty"`
	Timezone                string     `json:"timezone"`
	Published               bool       `json:"published"`
	Canceled                bool       `json:"canceled"`
	Deleted                 bool       `json:"deleted"`
	MeetingRequested        bool       `json:"meeting_requested"`
	MeetingProviderID       *string    `json:"meeting_provider_id,omitempty"`
	MeetingHosts            []string   `json:"meeting_hosts"`
	Speakers                []string   `json:"speakers"`
	MeetingRequiresPassword bool       `json:"meeting_requires_password"`
	MeetingError            *string    `json:"meeting_error,omitempty"`
	MeetingSync             SyncState  `json:"-"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// Live reports whether the event is visible to attendees.
func (e *Event) Live() bool {
	return e.Published && !e.Canceled && !e.Deleted
}

// MeetingEligible reports whether a provider meeting should exist for the event.
func (e *Event) MeetingEligible() bool {
	return e.Live() && e.MeetingRequested && e.StartsAt != nil && e.EndsAt != nil && e.MeetingProviderID != nil
}

// Snapshot captures the fields that shape the provider meeting.
func (e *Event) Snapshot() *MeetingSnapshot {
	return &MeetingSnapshot{
		Requested:        e.MeetingRequested,
		Name:             e.Name,
		StartsAt:         e.StartsAt,
		EndsAt:           e.EndsAt,
		Timezone:         e.Timezone,
		ProviderID:       derefString(e.MeetingProviderID),
		Hosts:            e.MeetingHosts,
		PasswordRequired: e.MeetingRequiresPassword,
		Speakers:         e.Speakers,
		Kind:             SessionKindVirtual,
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
