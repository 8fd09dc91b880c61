package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"push_notification_server/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const unauthorizedText = "Error: you are not allowed to run this command."

// RegisterAdminHandlers registers handlers for admin commands.
// It requires the bot instance, admin service, and the configured admin Telegram ID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, adminTelegramID int64, baseLogger *logrus.Entry) {
	b.Handle("/status", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/status",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		st, err := adminService.Status(ctx, time.Now())
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to collect status")
			return c.Send(fmt.Sprintf("Failed to collect status: %s", err.Error()))
		}
		return c.Send(FormatStatus(st))
	})

	b.Handle("/backfill", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/backfill",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		res, err := adminService.BackfillUTCHours(ctx, c.Sender().ID, time.Now())
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			if err == app.ErrAdminNotAuthorized {
				logWithError.Warn("Admin not authorized (service level)")
				return c.Send(unauthorizedText)
			}
			logWithError.Error("Backfill failed")
			return c.Send(fmt.Sprintf("Backfill failed: %s", err.Error()))
		}
		return c.Send(fmt.Sprintf("Backfill done: %d migrated, %d without timezone left on the HH:MM fallback.", res.Migrated, res.Skipped))
	})
}

// FormatStatus renders a status snapshot for the admin chat.
func FormatStatus(st *app.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status at %s\n\n", st.At.Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Subscriptions: %d\n", st.Subscriptions)
	fmt.Fprintf(&b, "Daily check-ins this hour: %d\n", st.DailyCheckInsThisHour)
	fmt.Fprintf(&b, "Legacy daily check-ins (HH:MM as UTC): %d\n", st.LegacyDailyCheckIns)
	fmt.Fprintf(&b, "Follow-ups: %d pending, %d due\n", st.PendingFollowUps, st.DueFollowUps)
	fmt.Fprintf(&b, "Active check-ins: %d pending, %d due", st.PendingActiveCheckIns, st.DueActiveCheckIns)
	return b.String()
}
