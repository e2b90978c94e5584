package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"linear_reminder_bot/internal/app"
	"linear_reminder_bot/internal/domain/tracking"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	msgUnauthorized = "Error: you are not allowed to run this command."
	// Telegram rejects messages over 4096 characters.
	maxListedItems = 50
)

// RegisterAdminHandlers registers the operator commands. Handlers run under
// ctx so shutdown cancels in-flight store and Linear calls.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, baseLogger *logrus.Entry) {
	h := &adminHandlers{ctx: ctx, admin: adminService, logger: baseLogger, now: time.Now}
	b.Handle("/watching", h.watching)
	b.Handle("/item", h.item)
	b.Handle("/resend", h.resend)
}

type adminHandlers struct {
	ctx    context.Context
	admin  *app.AdminService
	logger *logrus.Entry
	now    func() time.Time
}

func (h *adminHandlers) handlerLogger(c telebot.Context, name string) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{
		"handler":   name,
		"sender_id": c.Sender().ID,
	})
}

func (h *adminHandlers) watching(c telebot.Context) error {
	handlerLogger := h.handlerLogger(c, "/watching")
	handlerLogger.Info("Command received")

	items, err := h.admin.ListWatching(h.ctx, c.Sender().ID)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}
		handlerLogger.WithError(err).Error("Failed to list watching items")
		return c.Send(fmt.Sprintf("Failed to list items: %s", err.Error()))
	}
	if len(items) == 0 {
		return c.Send("No items are in the watched status.")
	}
	handlerLogger.WithField("items_count", len(items)).Info("Successfully retrieved watching items")

	var response strings.Builder
	fmt.Fprintf(&response, "--- Watching (%d) ---\n", len(items))
	for i, item := range items {
		if i == maxListedItems {
			fmt.Fprintf(&response, "... and %d more\n", len(items)-maxListedItems)
			break
		}
		response.WriteString(h.describe(item))
		response.WriteString("\n")
	}
	return c.Send(response.String())
}

func (h *adminHandlers) item(c telebot.Context) error {
	handlerLogger := h.handlerLogger(c, "/item")
	handlerLogger.Info("Command received")

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Invalid command format. Use: /item <id>")
	}
	handlerLogger = handlerLogger.WithField("item_id", args[0])

	item, err := h.admin.GetItem(h.ctx, c.Sender().ID, args[0])
	if err != nil {
		switch {
		case errors.Is(err, app.ErrAdminNotAuthorized):
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		case errors.Is(err, tracking.ErrItemNotFound):
			return c.Send(fmt.Sprintf("Item %s is not tracked.", args[0]))
		default:
			handlerLogger.WithError(err).Error("Failed to get item")
			return c.Send(fmt.Sprintf("Failed to get item: %s", err.Error()))
		}
	}
	return c.Send(h.describe(item))
}

func (h *adminHandlers) resend(c telebot.Context) error {
	handlerLogger := h.handlerLogger(c, "/resend")
	handlerLogger.Info("Command received")

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Invalid command format. Use: /resend <id>")
	}
	handlerLogger = handlerLogger.WithField("item_id", args[0])

	if err := h.admin.Resend(h.ctx, c.Sender().ID, args[0]); err != nil {
		logWithError := handlerLogger.WithError(err)
		switch {
		case errors.Is(err, app.ErrAdminNotAuthorized):
			logWithError.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		case errors.Is(err, tracking.ErrItemNotFound):
			return c.Send(fmt.Sprintf("Item %s is not tracked.", args[0]))
		case errors.Is(err, app.ErrNotReminded):
			logWithError.Warn("Resend refused")
			return c.Send(fmt.Sprintf("Item %s has not been reminded in its current dwell period; the scheduler will handle it.", args[0]))
		default:
			logWithError.Error("Failed to resend reminder")
			return c.Send(fmt.Sprintf("Resend failed: %s", err.Error()))
		}
	}

	handlerLogger.Info("Reminder resent")
	return c.Send(fmt.Sprintf("Reminder posted on %s.", args[0]))
}

func (h *adminHandlers) describe(item *tracking.Item) string {
	if !item.Watching() {
		return fmt.Sprintf("%s: not in the watched status (last event %s)", item.ItemID, item.LastEventAt.Format(time.RFC3339))
	}
	reminded := "not yet"
	if item.Reminded() {
		reminded = item.RemindedAt.Time.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s: watching since %s (%s), reminded: %s",
		item.ItemID,
		item.EnteredWatchAt.Time.Format(time.RFC3339),
		item.DwellAge(h.now()).Truncate(time.Second),
		reminded)
}
