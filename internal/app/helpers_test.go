package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/push"
	"push_notification_server/internal/domain/subscription"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeSender records every send and answers with the result configured for
// the endpoint, OK by default.
type fakeSender struct {
	mu      sync.Mutex
	results map[string]push.Result
	sends   []sentMessage
}

type sentMessage struct {
	Endpoint string
	Payload  notification.Payload
}

func newFakeSender() *fakeSender {
	return &fakeSender{results: map[string]push.Result{}}
}

func (f *fakeSender) respond(endpoint string, res push.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[endpoint] = res
}

func (f *fakeSender) Send(_ context.Context, endpoint string, _ subscription.Keys, payload notification.Payload) push.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMessage{Endpoint: endpoint, Payload: payload})
	if res, ok := f.results[endpoint]; ok {
		return res
	}
	return push.Result{OK: true}
}

func (f *fakeSender) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sends...)
}

type deliveryKey struct {
	Kind    notification.Kind
	Outcome notification.Outcome
}

type fakeRecorder struct {
	mu         sync.Mutex
	deliveries map[deliveryKey]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{deliveries: map[deliveryKey]int{}}
}

func (r *fakeRecorder) RecordDelivery(kind notification.Kind, outcome notification.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[deliveryKey{kind, outcome}]++
}

func (r *fakeRecorder) RecordPass(string, time.Duration, error) {}

func (r *fakeRecorder) count(kind notification.Kind, outcome notification.Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliveries[deliveryKey{kind, outcome}]
}

var errStoreDown = errors.New("store unavailable")

// failingStore wraps a store and fails the configured queue operations.
type failingStore struct {
	notification.Store
	failListDue  bool
	failMarkSent bool
}

func (s *failingStore) Queue(q notification.Queue) notification.Repository {
	return &failingRepo{Repository: s.Store.Queue(q), store: s}
}

type failingRepo struct {
	notification.Repository
	store *failingStore
}

func (r *failingRepo) ListDue(ctx context.Context, now time.Time) ([]*notification.Item, error) {
	if r.store.failListDue {
		return nil, errStoreDown
	}
	return r.Repository.ListDue(ctx, now)
}

func (r *failingRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	if r.store.failMarkSent {
		return errStoreDown
	}
	return r.Repository.MarkSent(ctx, id, at)
}

func subscriber(endpoint string, utcHour int) *subscription.Subscription {
	prefs := subscription.DefaultPreferences()
	prefs.DailyCheckIn.UTCHour = &utcHour
	return &subscription.Subscription{
		Endpoint:    endpoint,
		Keys:        subscription.Keys{P256dh: "p256dh-" + endpoint, Auth: "auth"},
		Preferences: prefs,
	}
}
