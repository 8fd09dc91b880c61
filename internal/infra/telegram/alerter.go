package telegram

import (
	"context"

	"push_notification_server/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// maxAlertLength keeps alerts under Telegram's 4096 character message limit.
const maxAlertLength = 3500

// Alerter forwards scheduler pass failures to the admin chat.
type Alerter struct {
	client      telegram.Client
	adminChatID int64
	logger      logrus.FieldLogger
}

func NewAlerter(client telegram.Client, adminChatID int64, logger logrus.FieldLogger) *Alerter {
	return &Alerter{client: client, adminChatID: adminChatID, logger: logger}
}

// Alert never fails the caller; delivery errors are logged.
func (a *Alerter) Alert(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}
	if len(text) > maxAlertLength {
		text = text[:maxAlertLength] + "…"
	}
	if err := a.client.SendMessage(a.adminChatID, "⚠️ "+text, nil); err != nil {
		a.logger.WithError(err).Warn("Failed to send alert to admin chat")
	}
}
