// internal/app/event_processor.go
package app

import (
	"context"
	"fmt"
	"strings"

	"linear_reminder_bot/internal/domain/tracking"
	"linear_reminder_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// EventProcessor turns validated status changes into timing-store writes.
// It holds no mutable state; concurrent calls coordinate only through the store.
type EventProcessor struct {
	repo          tracking.Repository
	watchedStatus string
	logger        *logrus.Entry
}

func NewEventProcessor(repo tracking.Repository, cfg *config.AppConfig, logger *logrus.Entry) *EventProcessor {
	return &EventProcessor{
		repo:          repo,
		watchedStatus: cfg.Reminder.WatchedStatus,
		logger:        logger,
	}
}

// Process applies one event. Store errors are returned wrapped; payload
// problems are reported as ErrBadPayload without touching the store.
func (p *EventProcessor) Process(ctx context.Context, ev tracking.StatusChange) (tracking.Outcome, error) {
	if err := validateStatusChange(ev); err != nil {
		return "", err
	}

	log := p.logger.WithFields(logrus.Fields{
		"item_id":     ev.ItemID,
		"new_status":  ev.NewStatus,
		"occurred_at": ev.OccurredAt,
	})

	var (
		applied bool
		err     error
		outcome tracking.Outcome
	)
	switch p.classify(ev) {
	case tracking.OutcomeEntered:
		outcome = tracking.OutcomeEntered
		applied, err = p.repo.UpsertEntered(ctx, ev.ItemID, ev.OccurredAt)
	case tracking.OutcomeCleared:
		outcome = tracking.OutcomeCleared
		applied, err = p.repo.Clear(ctx, ev.ItemID, ev.OccurredAt)
	case tracking.OutcomeUnchanged:
		log.Debug("Item still in watched status, dwell timer keeps running")
		return tracking.OutcomeUnchanged, nil
	default:
		log.Debug("Status change unrelated to watched status")
		return tracking.OutcomeIgnored, nil
	}
	if err != nil {
		log.WithError(err).Error("Failed to update timing state")
		return "", fmt.Errorf("failed to apply %s for item %s: %w", outcome, ev.ItemID, err)
	}
	if !applied {
		log.Info("Event older than stored state, ignored")
		return tracking.OutcomeStale, nil
	}
	log.WithField("outcome", outcome).Info("Timing state updated")
	return outcome, nil
}

// classify decides which store write, if any, an event calls for.
func (p *EventProcessor) classify(ev tracking.StatusChange) tracking.Outcome {
	if ev.Removed {
		return tracking.OutcomeCleared
	}

	// Without an explicit previous status, PreviousChanged says whether the
	// status moved at all in this event.
	prevWatched, prevKnown := false, false
	if ev.PreviousStatus != nil {
		prevKnown = true
		prevWatched = *ev.PreviousStatus == p.watchedStatus
	} else if !ev.PreviousChanged {
		prevKnown = true
		prevWatched = ev.NewStatus == p.watchedStatus
	}

	if ev.NewStatus == p.watchedStatus {
		if prevKnown && prevWatched {
			return tracking.OutcomeUnchanged
		}
		return tracking.OutcomeEntered
	}
	if prevKnown && !prevWatched {
		return tracking.OutcomeIgnored
	}
	return tracking.OutcomeCleared
}

func validateStatusChange(ev tracking.StatusChange) error {
	var missing []string
	if strings.TrimSpace(ev.ItemID) == "" {
		missing = append(missing, "item id")
	}
	if !ev.Removed && strings.TrimSpace(ev.NewStatus) == "" {
		missing = append(missing, "status")
	}
	if ev.OccurredAt.IsZero() {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrBadPayload, strings.Join(missing, ", "))
	}
	return nil
}
