// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"

	"gopkg.in/telebot.v3"
)

// Sender is the part of *telebot.Bot the adapter needs.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter delivers operator alerts as direct messages to the admin.
// It implements operator.Notifier.
type TelebotAdapter struct {
	bot     Sender
	adminID int64
}

func NewTelebotAdapter(b Sender, adminID int64) *TelebotAdapter {
	return &TelebotAdapter{bot: b, adminID: adminID}
}

// Notify sends text to the admin chat. telebot has no per-call context, so
// ctx is only checked before sending.
func (tba *TelebotAdapter) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recipient := &telebot.User{ID: tba.adminID}
	if _, err := tba.bot.Send(recipient, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("failed to notify admin %d: %w", tba.adminID, err)
	}
	return nil
}
