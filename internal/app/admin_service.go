package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linear_reminder_bot/internal/domain/linear"
	"linear_reminder_bot/internal/domain/tracking"
	"linear_reminder_bot/internal/infra/config"
)

// AdminService backs the operator commands. Every call checks the performing
// user against the configured admin.
type AdminService struct {
	repo            tracking.Repository
	commenter       linear.Client
	reminder        config.ReminderConfig
	adminTelegramID int64
}

func NewAdminService(repo tracking.Repository, commenter linear.Client, cfg *config.AppConfig) *AdminService {
	return &AdminService{
		repo:            repo,
		commenter:       commenter,
		reminder:        cfg.Reminder,
		adminTelegramID: cfg.Telegram.AdminID,
	}
}

// IsAdmin reports whether the user may run admin commands.
func (s *AdminService) IsAdmin(userID int64) bool {
	return s.adminTelegramID != 0 && userID == s.adminTelegramID
}

// ListWatching returns items currently in the watched status, oldest entry first.
func (s *AdminService) ListWatching(ctx context.Context, performingAdminID int64) ([]*tracking.Item, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	items, err := s.repo.ListWatching(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list watching items: %w", err)
	}
	return items, nil
}

func (s *AdminService) GetItem(ctx context.Context, performingAdminID int64, itemID string) (*tracking.Item, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	item, err := s.repo.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, tracking.ErrItemNotFound) {
			return nil, tracking.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item %s: %w", itemID, err)
	}
	return item, nil
}

// Resend posts the reminder again for an item whose claimed send failed.
// It does not touch the store: the dwell period is already marked reminded.
func (s *AdminService) Resend(ctx context.Context, performingAdminID int64, itemID string) error {
	item, err := s.GetItem(ctx, performingAdminID, itemID)
	if err != nil {
		return err
	}
	if !item.Watching() || !item.Reminded() {
		return ErrNotReminded
	}

	sendCtx := ctx
	if s.reminder.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.reminder.SendTimeout)
		defer cancel()
	}
	if err := s.commenter.CreateComment(sendCtx, itemID, s.reminder.Message); err != nil {
		return fmt.Errorf("failed to resend reminder for %s: %w", itemID, err)
	}
	return nil
}

// DwellThreshold exposes the configured dwell duration for display.
func (s *AdminService) DwellThreshold() time.Duration {
	return s.reminder.TimeToRemind
}
