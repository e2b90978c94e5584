package scheduler

import (
	"context"
	"fmt"
	"time"

	"linear_reminder_bot/internal/app"
	"linear_reminder_bot/internal/infra/config"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	scanJobTimeout  = 1 * time.Minute
	pruneJobTimeout = 5 * time.Minute
)

// Dispatcher runs one reminder pass.
type Dispatcher interface {
	RunOnce(ctx context.Context) (app.RunReport, error)
}

// Pruner drops tombstones nobody needs for ordering any more.
type Pruner interface {
	PruneIdle(ctx context.Context, before time.Time) (int64, error)
}

type ReminderScheduler struct {
	cronEngine *cron.Cron
	dispatcher Dispatcher
	pruner     Pruner
	logger     *logrus.Entry
	scanSpec   string
	pruneSpec  string
	retention  time.Duration
	now        func() time.Time
}

func NewReminderScheduler(
	dispatcher Dispatcher,
	pruner Pruner,
	cfg *config.AppConfig,
	logger *logrus.Entry,
) *ReminderScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &ReminderScheduler{
		// A pass still running when the next tick fires makes that tick skip.
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		dispatcher: dispatcher,
		pruner:     pruner,
		logger:     logger,
		scanSpec:   cfg.Reminder.ScanSpec(),    // e.g. "@every 5s"
		pruneSpec:  cfg.Reminder.PruneSchedule, // e.g. "0 3 * * *"
		retention:  cfg.Reminder.TombstoneRetention,
		now:        time.Now,
	}
}

// Start registers the jobs and starts the cron engine.
func (s *ReminderScheduler) Start() error {
	s.logger.Info("Starting reminder scheduler...")

	if _, err := s.cronEngine.AddFunc(s.scanSpec, s.runScan); err != nil {
		return fmt.Errorf("could not add reminder scan job %q: %w", s.scanSpec, err)
	}
	if s.pruneSpec != "" {
		if _, err := s.cronEngine.AddFunc(s.pruneSpec, s.runPrune); err != nil {
			return fmt.Errorf("could not add prune job %q: %w", s.pruneSpec, err)
		}
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"scan_spec":  s.scanSpec,
		"prune_spec": s.pruneSpec,
	}).Info("Reminder scheduler started with jobs.")
	return nil
}

func (s *ReminderScheduler) runScan() {
	ctx, cancel := context.WithTimeout(context.Background(), scanJobTimeout)
	defer cancel()

	report, err := s.dispatcher.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error during reminder run")
		return
	}
	if report.Due > 0 {
		s.logger.WithFields(logrus.Fields{
			"due":     report.Due,
			"claimed": report.Claimed,
			"skipped": report.Skipped,
			"sent":    report.Sent,
			"failed":  report.Failed,
		}).Info("Reminder run finished")
	}
}

func (s *ReminderScheduler) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneJobTimeout)
	defer cancel()

	before := s.now().Add(-s.retention)
	n, err := s.pruner.PruneIdle(ctx, before)
	if err != nil {
		s.logger.WithError(err).Error("Error pruning idle items")
		return
	}
	s.logger.WithFields(logrus.Fields{"pruned": n, "before": before}).Info("Pruned idle items")
}

// Stop stops scheduling new runs and waits for a running one to finish.
func (s *ReminderScheduler) Stop() {
	s.logger.Info("Stopping reminder scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Reminder scheduler gracefully stopped.")
}
