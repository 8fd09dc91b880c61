// internal/infra/database/postgres_schedule_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"push_notification_server/internal/domain/notification"

	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// PostgresScheduleStore keeps both queues in one table, partitioned by the
// queue column.
type PostgresScheduleStore struct {
	followUps      *PostgresScheduleRepository
	activeCheckIns *PostgresScheduleRepository
}

func NewPostgresScheduleStore(db *sql.DB) *PostgresScheduleStore {
	return &PostgresScheduleStore{
		followUps:      &PostgresScheduleRepository{db: db, queue: notification.QueueFollowUps},
		activeCheckIns: &PostgresScheduleRepository{db: db, queue: notification.QueueActiveCheckIns, onePerEvent: true},
	}
}

func (s *PostgresScheduleStore) Queue(q notification.Queue) notification.Repository {
	if q == notification.QueueActiveCheckIns {
		return s.activeCheckIns
	}
	return s.followUps
}

type PostgresScheduleRepository struct {
	db          *sql.DB
	queue       notification.Queue
	onePerEvent bool
}

const itemColumns = `id, event_id, scheduled_time, subscription_endpoint, sent, sent_at, created_at`

func (r *PostgresScheduleRepository) Append(ctx context.Context, item *notification.Item) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for append: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if r.onePerEvent {
		if _, err := txn.ExecContext(ctx, `DELETE FROM scheduled_notifications WHERE queue = $1 AND event_id = $2`, r.queue, item.EventID); err != nil {
			return fmt.Errorf("error replacing %s item of event: %w", r.queue, err)
		}
	}

	query := `INSERT INTO scheduled_notifications (queue, id, event_id, scheduled_time, subscription_endpoint, sent, sent_at, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = txn.ExecContext(ctx, query, r.queue, item.ID, item.EventID, item.ScheduledTime, item.SubscriptionEndpoint, item.Sent, item.SentAt, item.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", notification.ErrDuplicateItem, item.ID)
		}
		return fmt.Errorf("error inserting %s item: %w", r.queue, err)
	}
	return txn.Commit()
}

func (r *PostgresScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*notification.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM scheduled_notifications
               WHERE queue = $1 AND NOT sent AND scheduled_time <= $2
               ORDER BY scheduled_time`
	rows, err := r.db.QueryContext(ctx, query, r.queue, now)
	if err != nil {
		return nil, fmt.Errorf("error querying due %s items: %w", r.queue, err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// MarkSent only touches unsent rows, so SentAt keeps its first value.
func (r *PostgresScheduleRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE scheduled_notifications SET sent = TRUE, sent_at = $1
               WHERE queue = $2 AND id = $3 AND NOT sent`
	if _, err := r.db.ExecContext(ctx, query, at.UTC(), r.queue, id); err != nil {
		return fmt.Errorf("error marking %s item sent: %w", r.queue, err)
	}
	return nil
}

func (r *PostgresScheduleRepository) RemoveByEventID(ctx context.Context, eventID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_notifications WHERE queue = $1 AND event_id = $2`, r.queue, eventID)
	if err != nil {
		return false, fmt.Errorf("error removing %s items of event: %w", r.queue, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresScheduleRepository) List(ctx context.Context) ([]*notification.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM scheduled_notifications WHERE queue = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, r.queue)
	if err != nil {
		return nil, fmt.Errorf("error querying %s items: %w", r.queue, err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]*notification.Item, error) {
	items := make([]*notification.Item, 0)
	for rows.Next() {
		it := notification.Item{}
		var sentAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.EventID, &it.ScheduledTime, &it.SubscriptionEndpoint, &it.Sent, &sentAt, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning scheduled item row: %w", err)
		}
		it.ScheduledTime = it.ScheduledTime.UTC()
		it.CreatedAt = it.CreatedAt.UTC()
		if sentAt.Valid {
			at := sentAt.Time.UTC()
			it.SentAt = &at
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled item rows: %w", err)
	}
	return items, nil
}
