// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"linear_reminder_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands registers /start and /help.
func RegisterBotCommands(b *telebot.Bot, adminService *app.AdminService, baseLogger *logrus.Entry) {
	h := &botCommands{admin: adminService, logger: baseLogger.WithField("handler_group", "start_help")}
	b.Handle("/start", h.start)
	b.Handle("/help", h.help)
}

type botCommands struct {
	admin  *app.AdminService
	logger *logrus.Entry
}

func (h *botCommands) start(c telebot.Context) error {
	senderID := c.Sender().ID
	logCtx := h.logger.WithField("command", "/start").WithField("sender_id", senderID)
	logCtx.Info("Processing /start command")

	if h.admin.IsAdmin(senderID) {
		logCtx.Info("User identified as Admin")
		return c.Send(fmt.Sprintf("Hi %s! Reminders are running. Use /help for the list of commands.", c.Sender().FirstName))
	}

	logCtx.Info("User is unknown")
	return c.Send("This bot only talks to its operator.")
}

func (h *botCommands) help(c telebot.Context) error {
	senderID := c.Sender().ID
	logCtx := h.logger.WithField("command", "/help").WithField("sender_id", senderID)
	logCtx.Info("Processing /help command")

	if !h.admin.IsAdmin(senderID) {
		logCtx.Info("User is unknown, sending restricted help.")
		return c.Send("No commands are available to you.")
	}

	var helpText strings.Builder
	helpText.WriteString("Admin commands:\n\n")
	fmt.Fprintf(&helpText, "/watching\n - Items currently in the watched status and how long they have been there (reminder after %s).\n\n", h.admin.DwellThreshold())
	helpText.WriteString("/item <id>\n - Show the timing state of one item.\n\n")
	helpText.WriteString("/resend <id>\n - Post the reminder comment again after a failed send.\n\n")
	helpText.WriteString("/help\n - Show this message.")
	return c.Send(helpText.String())
}
