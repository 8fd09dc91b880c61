// internal/infra/database/postgres_subscription_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"push_notification_server/internal/domain/subscription"
)

type PostgresSubscriptionRepository struct {
	db *sql.DB
}

func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

const subscriptionColumns = `endpoint, p256dh, auth, preferences, created_at, updated_at`

// dailyColumns derives the indexed columns used by ListDueForDailyCheckIn.
// Legacy records get their HH:MM hour, the same value TargetUTCHour yields.
func dailyColumns(p subscription.Preferences) (enabled bool, hour sql.NullInt16) {
	h, ok := p.DailyCheckIn.TargetUTCHour()
	if ok {
		hour = sql.NullInt16{Int16: int16(h), Valid: true}
	}
	return p.DailyCheckIn.Enabled, hour
}

func (r *PostgresSubscriptionRepository) Upsert(ctx context.Context, s *subscription.Subscription) error {
	prefs, err := json.Marshal(s.Preferences)
	if err != nil {
		return fmt.Errorf("error encoding preferences: %w", err)
	}
	enabled, hour := dailyColumns(s.Preferences)
	query := `INSERT INTO push_subscriptions (endpoint, p256dh, auth, preferences, daily_enabled, daily_target_hour, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               ON CONFLICT (endpoint) DO UPDATE
               SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, preferences = EXCLUDED.preferences,
                   daily_enabled = EXCLUDED.daily_enabled, daily_target_hour = EXCLUDED.daily_target_hour,
                   created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at`
	_, err = r.db.ExecContext(ctx, query, s.Endpoint, s.Keys.P256dh, s.Keys.Auth, prefs, enabled, hour, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting subscription: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepository) Remove(ctx context.Context, endpoint string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return false, fmt.Errorf("error removing subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresSubscriptionRepository) UpdatePreferences(ctx context.Context, endpoint string, prefs subscription.Preferences) (*subscription.Subscription, error) {
	encoded, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("error encoding preferences: %w", err)
	}
	enabled, hour := dailyColumns(prefs)
	query := `UPDATE push_subscriptions
               SET preferences = $1, daily_enabled = $2, daily_target_hour = $3, updated_at = $4
               WHERE endpoint = $5
               RETURNING ` + subscriptionColumns
	row := r.db.QueryRowContext(ctx, query, encoded, enabled, hour, time.Now().UTC(), endpoint)
	s, err := scanSubscription(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("error updating preferences: %w", err)
	}
	return s, nil
}

func (r *PostgresSubscriptionRepository) GetByEndpoint(ctx context.Context, endpoint string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM push_subscriptions WHERE endpoint = $1`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, endpoint))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("error getting subscription by endpoint: %w", err)
	}
	return s, nil
}

func (r *PostgresSubscriptionRepository) ListAll(ctx context.Context) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM push_subscriptions ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *PostgresSubscriptionRepository) ListDueForDailyCheckIn(ctx context.Context, utcHour int) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM push_subscriptions
               WHERE daily_enabled AND daily_target_hour = $1`
	rows, err := r.db.QueryContext(ctx, query, utcHour)
	if err != nil {
		return nil, fmt.Errorf("error querying daily check-in subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*subscription.Subscription, error) {
	s := subscription.Subscription{}
	var prefs []byte
	if err := row.Scan(&s.Endpoint, &s.Keys.P256dh, &s.Keys.Auth, &prefs, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prefs, &s.Preferences); err != nil {
		return nil, fmt.Errorf("error decoding preferences of stored subscription: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

// Helper to scan multiple rows
func scanSubscriptions(rows *sql.Rows) ([]*subscription.Subscription, error) {
	subs := make([]*subscription.Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning subscription row: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}
