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

// AutoEndWorker ends provider meetings that kept running past their
// scheduled end. Each meeting is checked once.
type AutoEndWorker struct {
	monitor   repositories.AutoEndMonitor
	claimer   repositories.Claimer
	providers Providers
	interval  time.Duration
	logger    logging.Logger
	metrics   *Metrics
}

func NewAutoEndWorker(
	monitor repositories.AutoEndMonitor,
	claimer repositories.Claimer,
	providers Providers,
	interval time.Duration,
	logger logging.Logger,
	metrics *Metrics,
) *AutoEndWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &AutoEndWorker{
		monitor:   monitor,
		claimer:   claimer,
		providers: providers,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

func (w *AutoEndWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			processed, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.WithError(err).Error("auto-end iteration failed")
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

// autoEndScanLimit bounds how many overdue meetings are considered per call.
// Meetings claimed by other workers are skipped.
const autoEndScanLimit = 20

// RunOnce checks the oldest overdue meeting no other worker holds, if any,
// and records the outcome.
func (w *AutoEndWorker) RunOnce(ctx context.Context) (bool, error) {
	candidates, err := w.monitor.ListOverdueMeetings(ctx, autoEndScanLimit)
	if err != nil {
		return false, fmt.Errorf("failed to list overdue meetings: %w", err)
	}

	for _, meeting := range candidates {
		done, err := w.check(ctx, meeting)
		if err != nil || done {
			return done, err
		}
	}
	return false, nil
}

// check ends one candidate under a claim. It reports false when the meeting
// is held by another worker or was checked since it was listed.
func (w *AutoEndWorker) check(ctx context.Context, meeting *models.OverdueMeeting) (bool, error) {
	key := "auto-end:" + meeting.MeetingID.String()
	claimed, err := w.claimer.Claim(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to claim overdue meeting: %w", err)
	}
	if !claimed {
		return false, nil
	}
	defer func() {
		if err := w.claimer.Release(ctx, key); err != nil {
			w.logger.WithError(err).WithField("meeting_id", meeting.MeetingID.String()).Warn("failed to release overdue meeting")
		}
	}()

	// The listing may predate another worker's check.
	pending, err := w.monitor.AutoEndPending(ctx, meeting.MeetingID)
	if err != nil {
		return false, fmt.Errorf("failed to recheck overdue meeting: %w", err)
	}
	if !pending {
		return false, nil
	}

	outcome := w.end(ctx, meeting)
	if err := w.monitor.RecordAutoEndOutcome(ctx, meeting.MeetingID, outcome); err != nil {
		return true, fmt.Errorf("failed to record auto-end outcome: %w", err)
	}

	w.metrics.autoEnded(string(outcome))
	w.logger.WithFields(logging.Fields{
		"meeting_id":          meeting.MeetingID.String(),
		"provider_meeting_id": meeting.ProviderMeetingID,
		"ends_at":             meeting.EndsAt,
		"outcome":             outcome,
	}).Info("auto-end check completed")
	return true, nil
}

func (w *AutoEndWorker) end(ctx context.Context, meeting *models.OverdueMeeting) models.AutoEndOutcome {
	p, err := w.providers.Get(meeting.ProviderID)
	if err != nil {
		w.logger.WithError(err).WithField("meeting_id", meeting.MeetingID.String()).Warn("cannot auto-end meeting")
		return models.AutoEndOutcomeError
	}

	result, err := p.EndMeeting(ctx, meeting.ProviderMeetingID)
	switch {
	case errors.Is(err, provider.ErrMeetingNotFound):
		return models.AutoEndOutcomeNotFound
	case err != nil:
		w.logger.WithError(err).WithField("meeting_id", meeting.MeetingID.String()).Warn("failed to end meeting")
		return models.AutoEndOutcomeError
	case result == provider.EndResultNotRunning:
		return models.AutoEndOutcomeAlreadyNotRunning
	}
	return models.AutoEndOutcomeAutoEnded
}
