// Package provider defines what the sync workers need from a
// video-conferencing service.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrMeetingNotFound is returned when the provider has no such meeting.
var ErrMeetingNotFound = errors.New("provider meeting not found")

// MeetingRequest describes the meeting the provider should host.
type MeetingRequest struct {
	Topic            string    `json:"topic"`
	Timezone         string    `json:"timezone"`
	StartsAt         time.Time `json:"start_time"`
	DurationSeconds  int64     `json:"duration_seconds"`
	HostID           string    `json:"host_id,omitempty"`
	AlternativeHosts []string  `json:"alternative_hosts,omitempty"`
	PasswordRequired bool      `json:"password_required"`
	// Password keeps the existing password on updates.
	Password string `json:"password,omitempty"`
}

type CreatedMeeting struct {
	ProviderMeetingID string `json:"id"`
	JoinURL           string `json:"join_url"`
	Password          string `json:"password,omitempty"`
}

type EndResult string

const (
	EndResultEnded      EndResult = "ended"
	EndResultNotRunning EndResult = "not_running"
)

type Provider interface {
	CreateMeeting(ctx context.Context, req MeetingRequest) (*CreatedMeeting, error)
	UpdateMeeting(ctx context.Context, providerMeetingID string, req MeetingRequest) error
	DeleteMeeting(ctx context.Context, providerMeetingID string) error
	EndMeeting(ctx context.Context, providerMeetingID string) (EndResult, error)
}

// Registry maps provider ids to their clients.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(id string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = p
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("unknown meeting provider %q", id)
	}
	return p, nil
}
