// internal/app/notification_service.go
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/push"
	"push_notification_server/internal/domain/subscription"

	"github.com/sirupsen/logrus"
)

// Application-level errors surfaced to the request boundary.
var ErrInvalidRequest = fmt.Errorf("invalid request")
var ErrDeliveryFailed = fmt.Errorf("push delivery failed")

// NotificationService is the entry point of subscription and scheduling
// requests into the delivery engine. Requests are validated here; nothing
// malformed reaches a store.
type NotificationService interface {
	Subscribe(ctx context.Context, endpoint string, keys subscription.Keys, prefs *subscription.Preferences) (*subscription.Subscription, error)
	Unsubscribe(ctx context.Context, endpoint string) (bool, error)
	UpdatePreferences(ctx context.Context, endpoint string, prefs subscription.Preferences) (*subscription.Subscription, error)
	ScheduleFollowUp(ctx context.Context, eventID string, dueAt time.Time, endpoint string) (*notification.Item, error)
	ScheduleActiveCheckIn(ctx context.Context, eventID string, dueAt time.Time, endpoint string) (*notification.Item, error)
	CancelActiveCheckIn(ctx context.Context, eventID string) (bool, error)
	SendTest(ctx context.Context, endpoint string, keys subscription.Keys) error
}

// NotificationServiceImpl implements the NotificationService interface.
type NotificationServiceImpl struct {
	subs     subscription.Repository
	queues   notification.Store
	sender   push.Sender
	payloads notification.PayloadBuilder
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewNotificationServiceImpl(
	subs subscription.Repository,
	queues notification.Store,
	sender push.Sender,
	payloads notification.PayloadBuilder,
	logger logrus.FieldLogger,
) *NotificationServiceImpl {
	return &NotificationServiceImpl{
		subs:     subs,
		queues:   queues,
		sender:   sender,
		payloads: payloads,
		logger:   logger,
		now:      time.Now,
	}
}

// Subscribe stores the endpoint with prefs, or with the default preferences
// when prefs is nil. An existing record for the endpoint is replaced.
func (s *NotificationServiceImpl) Subscribe(ctx context.Context, endpoint string, keys subscription.Keys, prefs *subscription.Preferences) (*subscription.Subscription, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidRequest)
	}
	p := subscription.DefaultPreferences()
	if prefs != nil {
		if err := prefs.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		p = *prefs
	}

	now := s.now().UTC()
	sub := &subscription.Subscription{
		Endpoint:    endpoint,
		Keys:        keys,
		Preferences: p,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to store subscription: %w", err)
	}
	s.logger.WithField("endpoint", truncateEndpoint(endpoint)).Info("Subscription stored")
	return sub, nil
}

// Unsubscribe removes the endpoint and reports whether it existed.
func (s *NotificationServiceImpl) Unsubscribe(ctx context.Context, endpoint string) (bool, error) {
	if strings.TrimSpace(endpoint) == "" {
		return false, fmt.Errorf("%w: endpoint is required", ErrInvalidRequest)
	}
	removed, err := s.subs.Remove(ctx, endpoint)
	if err != nil {
		return false, fmt.Errorf("failed to remove subscription: %w", err)
	}
	return removed, nil
}

// UpdatePreferences replaces the whole preferences object of an endpoint.
// Returns subscription.ErrNotFound for unknown endpoints.
func (s *NotificationServiceImpl) UpdatePreferences(ctx context.Context, endpoint string, prefs subscription.Preferences) (*subscription.Subscription, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidRequest)
	}
	if err := prefs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.subs.UpdatePreferences(ctx, endpoint, prefs)
}

// ScheduleFollowUp queues a post-event follow-up. Multiple follow-ups per
// event may be outstanding.
func (s *NotificationServiceImpl) ScheduleFollowUp(ctx context.Context, eventID string, dueAt time.Time, endpoint string) (*notification.Item, error) {
	if err := validateSchedule(eventID, dueAt, endpoint); err != nil {
		return nil, err
	}
	item := notification.NewFollowUp(eventID, dueAt, endpoint, s.now())
	if err := s.queues.Queue(notification.QueueFollowUps).Append(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to schedule follow-up: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"item_id": item.ID, "due_at": item.ScheduledTime}).Info("Follow-up scheduled")
	return item, nil
}

// ScheduleActiveCheckIn queues the check-in of an ongoing event. A check-in
// already stored for the event is replaced, so at most one is ever due.
func (s *NotificationServiceImpl) ScheduleActiveCheckIn(ctx context.Context, eventID string, dueAt time.Time, endpoint string) (*notification.Item, error) {
	if err := validateSchedule(eventID, dueAt, endpoint); err != nil {
		return nil, err
	}
	item := notification.NewActiveCheckIn(eventID, dueAt, endpoint, s.now())
	if err := s.queues.Queue(notification.QueueActiveCheckIns).Append(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to schedule active check-in: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"item_id": item.ID, "due_at": item.ScheduledTime}).Info("Active check-in scheduled")
	return item, nil
}

// CancelActiveCheckIn removes the event's check-in if present. Calling it
// again, or after the check-in was sent, is harmless.
func (s *NotificationServiceImpl) CancelActiveCheckIn(ctx context.Context, eventID string) (bool, error) {
	if strings.TrimSpace(eventID) == "" {
		return false, fmt.Errorf("%w: attackId is required", ErrInvalidRequest)
	}
	removed, err := s.queues.Queue(notification.QueueActiveCheckIns).RemoveByEventID(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel active check-in: %w", err)
	}
	return removed, nil
}

// SendTest pushes a test notification straight to the given endpoint,
// bypassing the queues.
func (s *NotificationServiceImpl) SendTest(ctx context.Context, endpoint string, keys subscription.Keys) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidRequest)
	}
	payload, err := s.payloads.Build(notification.KindTest, "")
	if err != nil {
		return err
	}
	res := s.sender.Send(ctx, endpoint, keys, payload)
	if !res.OK {
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, res.Reason)
	}
	return nil
}

func validateSchedule(eventID string, dueAt time.Time, endpoint string) error {
	switch {
	case strings.TrimSpace(eventID) == "":
		return fmt.Errorf("%w: attackId is required", ErrInvalidRequest)
	case dueAt.IsZero():
		return fmt.Errorf("%w: scheduled time is required", ErrInvalidRequest)
	case strings.TrimSpace(endpoint) == "":
		return fmt.Errorf("%w: subscriptionEndpoint is required", ErrInvalidRequest)
	}
	return nil
}
