package jsonstore

import (
	"context"
	"fmt"
	"time"

	"push_notification_server/internal/domain/subscription"
)

func cloneSubscription(s *subscription.Subscription) *subscription.Subscription {
	c := *s
	if h := s.Preferences.DailyCheckIn.UTCHour; h != nil {
		v := *h
		c.Preferences.DailyCheckIn.UTCHour = &v
	}
	return &c
}

// mutateSubs applies fn to a copy of the collection and commits it only
// once the file write succeeded.
func (s *Store) mutateSubs(fn func(subs []*subscription.Subscription) []*subscription.Subscription) error {
	next := fn(append([]*subscription.Subscription(nil), s.subs...))
	if next == nil {
		next = []*subscription.Subscription{}
	}
	if err := writeJSON(s.subsPath, next); err != nil {
		return fmt.Errorf("failed to save subscriptions: %w", err)
	}
	s.subs = next
	return nil
}

func (s *Store) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	stored := cloneSubscription(sub)
	return s.mutateSubs(func(subs []*subscription.Subscription) []*subscription.Subscription {
		kept := subs[:0]
		for _, existing := range subs {
			if existing.Endpoint != stored.Endpoint {
				kept = append(kept, existing)
			}
		}
		return append(kept, stored)
	})
}

func (s *Store) Remove(ctx context.Context, endpoint string) (bool, error) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	idx := s.indexOf(endpoint)
	if idx < 0 {
		return false, nil
	}
	err := s.mutateSubs(func(subs []*subscription.Subscription) []*subscription.Subscription {
		return append(subs[:idx], subs[idx+1:]...)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) UpdatePreferences(ctx context.Context, endpoint string, prefs subscription.Preferences) (*subscription.Subscription, error) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	idx := s.indexOf(endpoint)
	if idx < 0 {
		return nil, subscription.ErrNotFound
	}
	next := *s.subs[idx]
	next.Preferences = prefs
	updated := cloneSubscription(&next)
	updated.UpdatedAt = time.Now().UTC()

	err := s.mutateSubs(func(subs []*subscription.Subscription) []*subscription.Subscription {
		subs[idx] = updated
		return subs
	})
	if err != nil {
		return nil, err
	}
	return cloneSubscription(updated), nil
}

func (s *Store) GetByEndpoint(ctx context.Context, endpoint string) (*subscription.Subscription, error) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	idx := s.indexOf(endpoint)
	if idx < 0 {
		return nil, subscription.ErrNotFound
	}
	return cloneSubscription(s.subs[idx]), nil
}

func (s *Store) ListAll(ctx context.Context) ([]*subscription.Subscription, error) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	out := make([]*subscription.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, cloneSubscription(sub))
	}
	return out, nil
}

func (s *Store) ListDueForDailyCheckIn(ctx context.Context, utcHour int) ([]*subscription.Subscription, error) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	out := make([]*subscription.Subscription, 0)
	for _, sub := range s.subs {
		if subscription.MatchesDailyHour(sub, utcHour) {
			out = append(out, cloneSubscription(sub))
		}
	}
	return out, nil
}

func (s *Store) indexOf(endpoint string) int {
	for i, sub := range s.subs {
		if sub.Endpoint == endpoint {
			return i
		}
	}
	return -1
}
