package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ocgroups/meetsync/internal/models"
	"github.com/ocgroups/meetsync/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

type fakeQueue struct {
	items    []*models.WorkItem
	released []*models.WorkItem
	err      error
}

func (q *fakeQueue) NextOutOfSyncItem(context.Context) (*models.WorkItem, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.items) == 0 {
		return nil, nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

func (q *fakeQueue) Release(_ context.Context, item *models.WorkItem) error {
	q.released = append(q.released, item)
	return nil
}

type fakeAllocator struct {
	host       string
	ok         bool
	err        error
	candidates []string
}

func (a *fakeAllocator) AvailableHost(_ context.Context, candidates []string, _ int, _, _ time.Time) (string, bool, error) {
	a.candidates = candidates
	return a.host, a.ok, a.err
}

type appliedError struct {
	ref     models.MeetingRef
	message string
}

type fakeApplier struct {
	created    []*models.Meeting
	updated    []models.MeetingRef
	deleted    []models.MeetingRef
	errored    []appliedError
	recordings map[string]string
	createErr  error
}

func (a *fakeApplier) ApplyMeetingCreated(_ context.Context, m *models.Meeting) error {
	if a.createErr != nil {
		return a.createErr
	}
	a.created = append(a.created, m)
	return nil
}

func (a *fakeApplier) ApplyMeetingUpdated(_ context.Context, ref models.MeetingRef) error {
	a.updated = append(a.updated, ref)
	return nil
}

func (a *fakeApplier) ApplyMeetingDeleted(_ context.Context, ref models.MeetingRef) error {
	a.deleted = append(a.deleted, ref)
	return nil
}

func (a *fakeApplier) ApplyMeetingError(_ context.Context, ref models.MeetingRef, message string) error {
	a.errored = append(a.errored, appliedError{ref: ref, message: message})
	return nil
}

func (a *fakeApplier) ApplyRecordingURL(_ context.Context, providerID, providerMeetingID, url string) error {
	if a.recordings == nil {
		a.recordings = make(map[string]string)
	}
	a.recordings[providerID+"/"+providerMeetingID] = url
	return nil
}

type fakeProvider struct {
	mu        sync.Mutex
	created   []provider.MeetingRequest
	updated   map[string]provider.MeetingRequest
	deleted   []string
	ended     []string
	createErr error
	updateErr error
	deleteErr error
	endResult provider.EndResult
	endErr    error
}

func (p *fakeProvider) CreateMeeting(_ context.Context, req provider.MeetingRequest) (*provider.CreatedMeeting, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	return &provider.CreatedMeeting{
		ProviderMeetingID: "pm-1",
		JoinURL:           "https://meet.example.com/j/pm-1",
		Password:          "secret",
	}, nil
}

func (p *fakeProvider) UpdateMeeting(_ context.Context, id string, req provider.MeetingRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	if p.updated == nil {
		p.updated = make(map[string]provider.MeetingRequest)
	}
	p.updated[id] = req
	return nil
}

func (p *fakeProvider) DeleteMeeting(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return p.deleteErr
}

func (p *fakeProvider) EndMeeting(_ context.Context, id string) (provider.EndResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, id)
	return p.endResult, p.endErr
}

func newRegistry(p provider.Provider) *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register("zoom", p)
	return registry
}

// fakeMonitor lists overdue meetings from its own snapshot, which may be
// stale, while outcomes live in a store that can be shared between monitors.
type fakeMonitor struct {
	overdue  []*models.OverdueMeeting
	outcomes *outcomeStore
	stale    bool
}

type outcomeStore struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]models.AutoEndOutcome
}

func (s *outcomeStore) get(id uuid.UUID) (models.AutoEndOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[id]
	return o, ok
}

func (s *outcomeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

func newFakeMonitor(overdue ...*models.OverdueMeeting) *fakeMonitor {
	return &fakeMonitor{overdue: overdue, outcomes: &outcomeStore{outcomes: make(map[uuid.UUID]models.AutoEndOutcome)}}
}

func (m *fakeMonitor) ListOverdueMeetings(_ context.Context, limit int) ([]*models.OverdueMeeting, error) {
	var out []*models.OverdueMeeting
	for _, o := range m.overdue {
		if _, done := m.outcomes.get(o.MeetingID); done && !m.stale {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *fakeMonitor) NextOverdueMeeting(ctx context.Context) (*models.OverdueMeeting, error) {
	list, err := m.ListOverdueMeetings(ctx, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (m *fakeMonitor) AutoEndPending(_ context.Context, id uuid.UUID) (bool, error) {
	for _, o := range m.overdue {
		if o.MeetingID == id {
			_, done := m.outcomes.get(id)
			return !done, nil
		}
	}
	return false, nil
}

func (m *fakeMonitor) RecordAutoEndOutcome(_ context.Context, id uuid.UUID, outcome models.AutoEndOutcome) error {
	if !outcome.Valid() {
		return errors.New("invalid outcome")
	}
	m.outcomes.mu.Lock()
	defer m.outcomes.mu.Unlock()
	m.outcomes.outcomes[id] = outcome
	return nil
}

type fakeRearmer struct {
	n     int64
	after time.Duration
}

func (r *fakeRearmer) RearmErrored(_ context.Context, olderThan time.Duration) (int64, error) {
	r.after = olderThan
	return r.n, nil
}

func ptr[T any](v T) *T {
	return &v
}
