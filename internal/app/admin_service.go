package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/subscription"

	"github.com/sirupsen/logrus"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// Status is an operator snapshot of the delivery engine.
type Status struct {
	At                    time.Time
	Subscriptions         int
	LegacyDailyCheckIns   int // enabled records still relying on the HH:MM-as-UTC fallback
	DailyCheckInsThisHour int
	PendingFollowUps      int
	DueFollowUps          int
	PendingActiveCheckIns int
	DueActiveCheckIns     int
}

// BackfillResult reports what a legacy-hour migration changed.
type BackfillResult struct {
	Migrated int
	Skipped  int // legacy records without a timezone; they stay on the fallback
}

type AdminService struct {
	subs            subscription.Repository
	queues          notification.Store
	adminTelegramID int64
	logger          logrus.FieldLogger
}

func NewAdminService(subs subscription.Repository, queues notification.Store, adminID int64, logger logrus.FieldLogger) *AdminService {
	return &AdminService{
		subs:            subs,
		queues:          queues,
		adminTelegramID: adminID,
		logger:          logger,
	}
}

// ListSubscriptions returns every stored subscription.
func (s *AdminService) ListSubscriptions(ctx context.Context) ([]*subscription.Subscription, error) {
	subs, err := s.subs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// Status collects counts for the operator.
func (s *AdminService) Status(ctx context.Context, now time.Time) (*Status, error) {
	subs, err := s.subs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	st := &Status{At: now.UTC(), Subscriptions: len(subs)}
	for _, sub := range subs {
		d := sub.Preferences.DailyCheckIn
		if d.Enabled && d.IsLegacy() {
			st.LegacyDailyCheckIns++
		}
	}
	st.DailyCheckInsThisHour = len(subscription.SelectDailyCheckInTargets(subs, now.UTC().Hour(), now))

	st.PendingFollowUps, st.DueFollowUps, err = s.countQueue(ctx, notification.QueueFollowUps, now)
	if err != nil {
		return nil, err
	}
	st.PendingActiveCheckIns, st.DueActiveCheckIns, err = s.countQueue(ctx, notification.QueueActiveCheckIns, now)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *AdminService) countQueue(ctx context.Context, q notification.Queue, now time.Time) (pending, due int, err error) {
	items, err := s.queues.Queue(q).List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list %s: %w", q, err)
	}
	for _, it := range items {
		if it.Sent {
			continue
		}
		pending++
		if it.IsDue(now) {
			due++
		}
	}
	return pending, due, nil
}

// BackfillUTCHours migrates legacy daily check-in records that carry a
// timezone to an explicit UTC hour, evaluated on the date of now. Records
// without a timezone are left on the fallback and counted as skipped.
func (s *AdminService) BackfillUTCHours(ctx context.Context, performingAdminID int64, now time.Time) (*BackfillResult, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}

	subs, err := s.subs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	res := &BackfillResult{}
	for _, sub := range subs {
		if !sub.Preferences.DailyCheckIn.IsLegacy() {
			continue
		}
		prefs := sub.Preferences
		if !prefs.DailyCheckIn.BackfillUTCHour(now) {
			res.Skipped++
			continue
		}
		if _, err := s.subs.UpdatePreferences(ctx, sub.Endpoint, prefs); err != nil {
			// A subscription removed meanwhile is not an error for a migration.
			if errors.Is(err, subscription.ErrNotFound) {
				continue
			}
			return res, fmt.Errorf("failed to update preferences for backfill: %w", err)
		}
		res.Migrated++
	}
	s.logger.WithFields(logrus.Fields{"migrated": res.Migrated, "skipped": res.Skipped}).Info("Legacy daily check-in hours backfilled")
	return res, nil
}
