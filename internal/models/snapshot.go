package models

import "time"

// MeetingSnapshot holds the event or session fields that affect how a
// provider meeting is configured.
type MeetingSnapshot struct {
	Requested        bool
	Name             string
	StartsAt         *time.Time
	EndsAt           *time.Time
	Timezone         string
	ProviderID       string
	Hosts            []string
	PasswordRequired bool

	// Event only.
	Speakers []string

	// Session only.
	ParentHosts []string
	Kind        SessionKind
}
