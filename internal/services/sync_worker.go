package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ocgroups/meetsync/internal/logging"
	"github.com/ocgroups/meetsync/internal/models"
	"github.com/ocgroups/meetsync/internal/provider"
	"github.com/ocgroups/meetsync/internal/repositories"
)

const (
	resultOK     = "ok"
	resultError  = "error"
	resultNoHost = "no_host"
)

// Providers resolves a provider id to its client.
type Providers interface {
	Get(id string) (provider.Provider, error)
}

type SyncWorkerConfig struct {
	// HostPool is the ordered list of provider host accounts. When empty,
	// the hosts requested for the meeting are used as candidates.
	HostPool      []string
	MaxConcurrent int
	PollInterval  time.Duration
}

// SyncWorker drains the out-of-sync queue: it pushes each pending change to
// the provider and writes the outcome back.
type SyncWorker struct {
	queue     repositories.MeetingQueue
	hosts     repositories.HostAllocator
	applier   repositories.MeetingApplier
	providers Providers
	cfg       SyncWorkerConfig
	logger    logging.Logger
	metrics   *Metrics
}

func NewSyncWorker(
	queue repositories.MeetingQueue,
	hosts repositories.HostAllocator,
	applier repositories.MeetingApplier,
	providers Providers,
	cfg SyncWorkerConfig,
	logger logging.Logger,
	metrics *Metrics,
) *SyncWorker {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &SyncWorker{
		queue:     queue,
		hosts:     hosts,
		applier:   applier,
		providers: providers,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run drains the queue every poll interval until ctx is canceled.
func (w *SyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			processed, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.WithError(err).Error("meeting sync iteration failed")
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes at most one queue item. It reports whether an item was
// found. Provider failures are recorded on the item and are not returned;
// the error return is reserved for store failures, which leave the item
// pending.
func (w *SyncWorker) RunOnce(ctx context.Context) (bool, error) {
	item, err := w.queue.NextOutOfSyncItem(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get next out of sync item: %w", err)
	}
	if item == nil {
		return false, nil
	}
	defer func() {
		if err := w.queue.Release(ctx, item); err != nil {
			w.logger.WithError(err).WithFields(itemFields(item)).Warn("failed to release queue item")
		}
	}()

	log := w.logger.WithFields(itemFields(item))
	log.Debug("processing meeting sync item")

	switch item.Action {
	case models.WorkActionCreate:
		err = w.create(ctx, item)
	case models.WorkActionUpdate:
		err = w.update(ctx, item)
	case models.WorkActionDelete:
		err = w.delete(ctx, item)
	default:
		err = fmt.Errorf("unknown work action %q", item.Action)
	}
	if err != nil {
		w.metrics.syncItem(string(item.Action), resultError)
		return true, err
	}
	return true, nil
}

func (w *SyncWorker) create(ctx context.Context, item *models.WorkItem) error {
	p, err := w.provider(item)
	if err != nil {
		return w.fail(ctx, item, err)
	}

	candidates := w.cfg.HostPool
	if len(candidates) == 0 {
		candidates = item.Hosts
	}
	host, ok, err := w.hosts.AvailableHost(ctx, candidates, w.cfg.MaxConcurrent, *item.StartsAt, *item.EndsAt())
	if err != nil {
		return fmt.Errorf("failed to allocate host: %w", err)
	}
	if !ok {
		w.metrics.syncItem(string(item.Action), resultNoHost)
		return w.record(ctx, item, "no host account available for the meeting time")
	}

	req := meetingRequest(item)
	req.HostID = host

	created, err := p.CreateMeeting(ctx, req)
	if err != nil {
		return w.fail(ctx, item, err)
	}

	meeting := &models.Meeting{
		ProviderID:        *item.ProviderID,
		ProviderMeetingID: created.ProviderMeetingID,
		JoinURL:           created.JoinURL,
		HostID:            &host,
		EventID:           item.EventID,
		SessionID:         item.SessionID,
	}
	if created.Password != "" {
		meeting.Password = &created.Password
	}

	if err := w.applier.ApplyMeetingCreated(ctx, meeting); err != nil {
		// The provider meeting would be unreachable without a local record.
		if delErr := p.DeleteMeeting(ctx, created.ProviderMeetingID); delErr != nil && !errors.Is(delErr, provider.ErrMeetingNotFound) {
			w.logger.WithError(delErr).WithFields(itemFields(item)).Error("failed to roll back provider meeting")
		}
		return fmt.Errorf("failed to apply created meeting: %w", err)
	}

	w.metrics.syncItem(string(item.Action), resultOK)
	w.logger.WithFields(itemFields(item)).WithField("host_id", host).Info("meeting created")
	return nil
}

func (w *SyncWorker) update(ctx context.Context, item *models.WorkItem) error {
	if item.MeetingProviderID != nil && item.ProviderID != nil && *item.MeetingProviderID != *item.ProviderID {
		return w.switchProvider(ctx, item)
	}

	p, err := w.provider(item)
	if err != nil {
		return w.fail(ctx, item, err)
	}

	err = p.UpdateMeeting(ctx, *item.ProviderMeetingID, meetingRequest(item))
	if errors.Is(err, provider.ErrMeetingNotFound) {
		// Drop the stale record but leave the owner pending so the next pass
		// creates a fresh meeting.
		w.logger.WithFields(itemFields(item)).Warn("provider meeting vanished, recreating")
		if err := w.applier.ApplyMeetingDeleted(ctx, models.MeetingRef{MeetingID: item.MeetingID}); err != nil {
			return fmt.Errorf("failed to drop stale meeting: %w", err)
		}
		w.metrics.syncItem(string(item.Action), resultOK)
		return nil
	}
	if err != nil {
		return w.fail(ctx, item, err)
	}

	if err := w.applier.ApplyMeetingUpdated(ctx, item.Ref()); err != nil {
		return fmt.Errorf("failed to apply updated meeting: %w", err)
	}
	w.metrics.syncItem(string(item.Action), resultOK)
	w.logger.WithFields(itemFields(item)).Info("meeting updated")
	return nil
}

// switchProvider tears the meeting down on the provider hosting it and
// creates it on the newly selected one.
func (w *SyncWorker) switchProvider(ctx context.Context, item *models.WorkItem) error {
	old, err := w.providers.Get(*item.MeetingProviderID)
	if err != nil {
		return w.fail(ctx, item, err)
	}
	err = old.DeleteMeeting(ctx, *item.ProviderMeetingID)
	if err != nil && !errors.Is(err, provider.ErrMeetingNotFound) {
		return w.fail(ctx, item, err)
	}
	// Only the meeting row goes; the owner stays pending until the create
	// below is applied.
	if err := w.applier.ApplyMeetingDeleted(ctx, models.MeetingRef{MeetingID: item.MeetingID}); err != nil {
		return fmt.Errorf("failed to drop meeting on previous provider: %w", err)
	}
	w.logger.WithFields(itemFields(item)).WithField("previous_provider_id", *item.MeetingProviderID).Info("meeting moved off previous provider")

	fresh := *item
	fresh.Action = models.WorkActionCreate
	fresh.MeetingID = nil
	fresh.ProviderMeetingID = nil
	fresh.MeetingProviderID = nil
	fresh.JoinURL = nil
	fresh.Password = nil
	return w.create(ctx, &fresh)
}

func (w *SyncWorker) delete(ctx context.Context, item *models.WorkItem) error {
	if item.MeetingID != nil && item.ProviderMeetingID != nil {
		p, err := w.meetingProvider(item)
		if err != nil {
			return w.fail(ctx, item, err)
		}
		err = p.DeleteMeeting(ctx, *item.ProviderMeetingID)
		if err != nil && !errors.Is(err, provider.ErrMeetingNotFound) {
			return w.fail(ctx, item, err)
		}
	}

	if err := w.applier.ApplyMeetingDeleted(ctx, item.Ref()); err != nil {
		return fmt.Errorf("failed to apply deleted meeting: %w", err)
	}
	w.metrics.syncItem(string(item.Action), resultOK)
	w.logger.WithFields(itemFields(item)).Info("meeting deleted")
	return nil
}

func (w *SyncWorker) provider(item *models.WorkItem) (provider.Provider, error) {
	if item.ProviderID == nil {
		return nil, errors.New("meeting provider not set")
	}
	return w.providers.Get(*item.ProviderID)
}

// meetingProvider resolves the provider hosting the linked meeting.
func (w *SyncWorker) meetingProvider(item *models.WorkItem) (provider.Provider, error) {
	if item.MeetingProviderID != nil {
		return w.providers.Get(*item.MeetingProviderID)
	}
	return w.provider(item)
}

// fail records a provider failure on the item.
func (w *SyncWorker) fail(ctx context.Context, item *models.WorkItem, cause error) error {
	w.metrics.syncItem(string(item.Action), resultError)
	w.logger.WithError(cause).WithFields(itemFields(item)).Warn("meeting provider call failed")
	return w.record(ctx, item, cause.Error())
}

func (w *SyncWorker) record(ctx context.Context, item *models.WorkItem, message string) error {
	if err := w.applier.ApplyMeetingError(ctx, item.Ref(), message); err != nil {
		return fmt.Errorf("failed to record meeting error: %w", err)
	}
	return nil
}

func meetingRequest(item *models.WorkItem) provider.MeetingRequest {
	req := provider.MeetingRequest{AlternativeHosts: item.Hosts}
	if item.Topic != nil {
		req.Topic = *item.Topic
	}
	if item.Timezone != nil {
		req.Timezone = *item.Timezone
	}
	if item.StartsAt != nil {
		req.StartsAt = *item.StartsAt
	}
	if item.DurationSeconds != nil {
		req.DurationSeconds = *item.DurationSeconds
	}
	if item.PasswordRequired != nil {
		req.PasswordRequired = *item.PasswordRequired
	}
	if item.Password != nil {
		req.Password = *item.Password
	}
	return req
}

func itemFields(item *models.WorkItem) logging.Fields {
	fields := logging.Fields{"action": item.Action}
	if item.EventID != nil {
		fields["event_id"] = item.EventID.String()
	}
	if item.SessionID != nil {
		fields["session_id"] = item.SessionID.String()
	}
	if item.MeetingID != nil {
		fields["meeting_id"] = item.MeetingID.String()
	}
	if item.ProviderID != nil {
		fields["provider_id"] = *item.ProviderID
	}
	return fields
}
