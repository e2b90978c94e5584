// internal/app/reminder_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"linear_reminder_bot/internal/domain/linear"
	"linear_reminder_bot/internal/domain/operator"
	"linear_reminder_bot/internal/domain/tracking"
	"linear_reminder_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// RunReport summarizes one dispatcher pass.
type RunReport struct {
	Due     int // candidates returned by the scan
	Claimed int // claims this run won
	Skipped int // claims lost to another runner or a newer dwell period
	Sent    int
	Failed  int // claimed but the comment call failed; not retried
}

// ReminderDispatcher posts one reminder per dwell period. It claims before it
// sends, so a failed send is never repeated and overlapping runs never double post.
type ReminderDispatcher struct {
	repo      tracking.Repository
	commenter linear.Client
	alerter   operator.Notifier
	reminder  config.ReminderConfig
	logger    *logrus.Entry
	now       func() time.Time
}

func NewReminderDispatcher(
	repo tracking.Repository,
	commenter linear.Client,
	alerter operator.Notifier,
	cfg *config.AppConfig,
	logger *logrus.Entry,
) *ReminderDispatcher {
	if alerter == nil {
		alerter = operator.Nop{}
	}
	return &ReminderDispatcher{
		repo:      repo,
		commenter: commenter,
		alerter:   alerter,
		reminder:  cfg.Reminder,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests and replays.
func (d *ReminderDispatcher) WithClock(now func() time.Time) *ReminderDispatcher {
	d.now = now
	return d
}

// RunOnce scans for due items and reminds each one it manages to claim.
// A store error aborts the pass; whatever was claimed so far stays claimed and
// the next tick picks up the rest.
func (d *ReminderDispatcher) RunOnce(ctx context.Context) (RunReport, error) {
	var report RunReport
	now := d.now()

	due, err := d.repo.FindDue(ctx, d.reminder.TimeToRemind, now, d.reminder.BatchSize)
	if err != nil {
		d.logger.WithError(err).Error("Failed to scan for due reminders")
		return report, fmt.Errorf("failed to find due items: %w", err)
	}
	report.Due = len(due)
	if len(due) == 0 {
		d.logger.Debug("No reminders due")
		return report, nil
	}
	d.logger.WithField("due", len(due)).Info("Found items due for a reminder")

	for _, item := range due {
		if err := ctx.Err(); err != nil {
			d.logger.WithError(err).Warn("Reminder run interrupted")
			return report, err
		}

		log := d.logger.WithFields(logrus.Fields{
			"item_id":          item.ItemID,
			"entered_watch_at": item.EnteredWatchAt.Time,
		})

		claimed, err := d.repo.ClaimAndMark(ctx, item.ItemID, item.EnteredWatchAt.Time, d.now())
		if err != nil {
			log.WithError(err).Error("Failed to claim item")
			return report, fmt.Errorf("failed to claim item %s: %w", item.ItemID, err)
		}
		if !claimed {
			log.Info("Item already claimed elsewhere, skipping")
			report.Skipped++
			continue
		}
		report.Claimed++

		if err := d.send(ctx, item.ItemID); err != nil {
			report.Failed++
			log.WithError(err).Error("Failed to post reminder comment; item stays marked as reminded")
			d.alert(ctx, item.ItemID, err)
			continue
		}
		report.Sent++
		log.Info("Reminder comment posted")
	}

	return report, nil
}

func (d *ReminderDispatcher) send(ctx context.Context, itemID string) error {
	sendCtx := ctx
	if d.reminder.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.reminder.SendTimeout)
		defer cancel()
	}
	return d.commenter.CreateComment(sendCtx, itemID, d.reminder.Message)
}

func (d *ReminderDispatcher) alert(ctx context.Context, itemID string, sendErr error) {
	text := fmt.Sprintf("Reminder for %s was claimed but the comment failed: %v\nUse /resend %s to retry manually.", itemID, sendErr, itemID)
	if err := d.alerter.Notify(ctx, text); err != nil {
		d.logger.WithError(err).WithField("item_id", itemID).Warn("Failed to alert operator")
	}
}
