package subscription

import (
	"context"
	"fmt"
)

// ErrNotFound is returned when no subscription exists for an endpoint.
var ErrNotFound = fmt.Errorf("subscription not found")

// Repository defines the operations for persisting Subscriptions.
// Every mutation is an atomic read-modify-write of the whole collection.
type Repository interface {
	// Upsert stores s, replacing any record with the same endpoint.
	Upsert(ctx context.Context, s *Subscription) error
	// Remove deletes the record for endpoint and reports whether one existed.
	Remove(ctx context.Context, endpoint string) (bool, error)
	// UpdatePreferences overwrites the whole preferences object. Returns ErrNotFound for unknown endpoints.
	UpdatePreferences(ctx context.Context, endpoint string, prefs Preferences) (*Subscription, error)
	// GetByEndpoint returns ErrNotFound for unknown endpoints.
	GetByEndpoint(ctx context.Context, endpoint string) (*Subscription, error)
	ListAll(ctx context.Context) ([]*Subscription, error)
	// ListDueForDailyCheckIn returns enabled subscriptions whose target UTC hour equals utcHour.
	// The every-other-day gate is not applied here.
	ListDueForDailyCheckIn(ctx context.Context, utcHour int) ([]*Subscription, error)
}
