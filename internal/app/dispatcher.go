// internal/app/dispatcher.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/push"
	"push_notification_server/internal/domain/subscription"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultDispatchConcurrency = 4

// Report summarises one selection+dispatch run.
type Report struct {
	Due    int
	Sent   int
	Failed int
}

// DispatcherConfig holds the optional knobs of a Dispatcher.
type DispatcherConfig struct {
	Concurrency int              // parallel deliveries per run, default 4
	Recorder    Recorder         // nil means no metrics
	Now         func() time.Time // clock used for SentAt, default time.Now
}

// Dispatcher delivers due notifications and records their terminal state.
// It is the only writer of an item's sent flag.
type Dispatcher struct {
	subs        subscription.Repository
	queues      notification.Store
	sender      push.Sender
	payloads    notification.PayloadBuilder
	logger      logrus.FieldLogger
	recorder    Recorder
	concurrency int
	now         func() time.Time
}

func NewDispatcher(
	subs subscription.Repository,
	queues notification.Store,
	sender push.Sender,
	payloads notification.PayloadBuilder,
	logger logrus.FieldLogger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultDispatchConcurrency
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		subs:        subs,
		queues:      queues,
		sender:      sender,
		payloads:    payloads,
		logger:      logger,
		recorder:    cfg.Recorder,
		concurrency: cfg.Concurrency,
		now:         cfg.Now,
	}
}

// Dispatch performs one delivery attempt and classifies the result. A nil
// subscriber means the item's target no longer exists; nothing is sent.
// item may be nil for daily check-ins, which have no queue entry.
func (d *Dispatcher) Dispatch(ctx context.Context, item *notification.Item, sub *subscription.Subscription, payload notification.Payload) notification.Outcome {
	if sub == nil {
		return notification.OutcomeSubscriberGone
	}
	res := d.sender.Send(ctx, sub.Endpoint, sub.Keys, payload)
	switch {
	case res.OK:
		return notification.OutcomeSent
	case res.Permanent:
		d.logger.WithFields(itemFields(item)).WithField("reason", res.Reason).Info("Push endpoint is gone")
		return notification.OutcomeSubscriberGone
	default:
		d.logger.WithFields(itemFields(item)).WithField("reason", res.Reason).Warn("Push delivery failed, will retry on a later tick")
		return notification.OutcomeTransientFailure
	}
}

// ProcessQueue delivers every item of q that is due at now. Delivery
// failures are counted, never returned; store errors abort the run.
func (d *Dispatcher) ProcessQueue(ctx context.Context, q notification.Queue, now time.Time) (Report, error) {
	log := d.logger.WithField("queue", q)
	repo := d.queues.Queue(q)

	snapshot, err := repo.ListDue(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list due %s: %w", q, err)
	}
	due := notification.SelectDueItems(snapshot, now)
	if len(due) == 0 {
		log.Debug("No items due at this time")
		return Report{}, nil
	}
	log.Infof("Found %d items to send", len(due))

	var sent, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, item := range due {
		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			outcome, err := d.deliverItem(gctx, repo, q, item)
			if err != nil {
				return err
			}
			d.recorder.RecordDelivery(q.Kind(), outcome)
			if outcome == notification.OutcomeSent {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	report := Report{Due: len(due), Sent: int(sent.Load()), Failed: int(failed.Load())}
	if err != nil {
		return report, err
	}
	if n := skipped.Load(); n > 0 {
		return report, fmt.Errorf("%d due %s items left for a later tick: %w", n, q, ctx.Err())
	}
	log.WithFields(logrus.Fields{"sent": report.Sent, "failed": report.Failed}).Info("Queue processed")
	return report, nil
}

// deliverItem resolves the item's subscriber, attempts delivery and settles
// the item. Only store failures are returned as errors.
func (d *Dispatcher) deliverItem(ctx context.Context, repo notification.Repository, q notification.Queue, item *notification.Item) (notification.Outcome, error) {
	log := d.logger.WithFields(itemFields(item))

	sub, err := d.subs.GetByEndpoint(ctx, item.SubscriptionEndpoint)
	if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		return 0, fmt.Errorf("failed to resolve subscriber of %s: %w", item.ID, err)
	}

	var outcome notification.Outcome
	switch {
	case sub == nil:
		log.Warn("Subscription not found for item, marking sent to stop retrying")
		outcome = notification.OutcomeSubscriberGone
	default:
		payload, err := d.payloads.Build(q.Kind(), item.EventID)
		if err != nil {
			log.WithError(err).Error("Item cannot be turned into a payload, marking sent")
			outcome = notification.OutcomeSubscriberGone
			sub = nil // nothing wrong with the subscriber itself
			break
		}
		outcome = d.Dispatch(ctx, item, sub, payload)
	}

	if err := d.settle(ctx, repo, item, sub, outcome); err != nil {
		return outcome, err
	}
	if outcome == notification.OutcomeSent {
		log.Info("Notification sent")
	}
	return outcome, nil
}

// settle persists the consequence of an outcome. The writes run detached
// from ctx cancellation: once a message has left the process its sent mark
// must land even when the scheduler is stopping.
func (d *Dispatcher) settle(ctx context.Context, repo notification.Repository, item *notification.Item, sub *subscription.Subscription, outcome notification.Outcome) error {
	wctx := context.WithoutCancel(ctx)
	if outcome.Terminal() {
		if err := repo.MarkSent(wctx, item.ID, d.now()); err != nil {
			return fmt.Errorf("failed to mark item %s sent: %w", item.ID, err)
		}
	}
	if outcome == notification.OutcomeSubscriberGone && sub != nil {
		d.removeSubscriber(wctx, sub.Endpoint)
	}
	return nil
}

// removeSubscriber is advisory cleanup; failures are logged only.
func (d *Dispatcher) removeSubscriber(ctx context.Context, endpoint string) {
	removed, err := d.subs.Remove(ctx, endpoint)
	if err != nil {
		d.logger.WithError(err).WithField("endpoint", truncateEndpoint(endpoint)).Warn("Failed to remove expired subscription")
		return
	}
	if removed {
		d.logger.WithField("endpoint", truncateEndpoint(endpoint)).Info("Removed expired subscription")
	}
}

// ProcessDailyCheckIns sends the daily check-in to every subscriber whose
// preferences match the UTC hour of now. Failed sends are not retried: a
// daily check-in has no queue entry to stay due.
func (d *Dispatcher) ProcessDailyCheckIns(ctx context.Context, now time.Time) (Report, error) {
	hour := now.UTC().Hour()
	log := d.logger.WithField("utc_hour", hour)

	candidates, err := d.subs.ListDueForDailyCheckIn(ctx, hour)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list daily check-in subscribers: %w", err)
	}
	targets := subscription.SelectDailyCheckInTargets(candidates, hour, now)
	if len(targets) == 0 {
		log.Debug("No daily check-ins scheduled for this hour")
		return Report{}, nil
	}
	log.Infof("Found %d users for daily check-in", len(targets))

	payload, err := d.payloads.Build(notification.KindDailyCheckIn, "")
	if err != nil {
		return Report{}, err
	}

	var sent, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, sub := range targets {
		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			outcome := d.Dispatch(gctx, nil, sub, payload)
			d.recorder.RecordDelivery(notification.KindDailyCheckIn, outcome)
			switch outcome {
			case notification.OutcomeSent:
				sent.Add(1)
			case notification.OutcomeSubscriberGone:
				failed.Add(1)
				d.removeSubscriber(context.WithoutCancel(gctx), sub.Endpoint)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Due: len(targets), Sent: int(sent.Load()), Failed: int(failed.Load())}
	if n := skipped.Load(); n > 0 {
		return report, fmt.Errorf("%d daily check-ins not attempted: %w", n, ctx.Err())
	}
	log.WithFields(logrus.Fields{"sent": report.Sent, "failed": report.Failed}).Info("Daily check-ins processed")
	return report, nil
}

func itemFields(item *notification.Item) logrus.Fields {
	if item == nil {
		return logrus.Fields{}
	}
	return logrus.Fields{"item_id": item.ID, "event_id": item.EventID}
}

// truncateEndpoint keeps endpoint URLs (which embed a bearer-like token) out of logs.
func truncateEndpoint(endpoint string) string {
	const keep = 50
	if len(endpoint) <= keep {
		return endpoint
	}
	return endpoint[:keep] + "..."
}
