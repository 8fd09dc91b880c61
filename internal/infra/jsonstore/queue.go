package jsonstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"push_notification_server/internal/domain/notification"
)

// queueRepo is one queue file. For active check-ins onePerEvent is set and
// Append replaces the event's previous item.
type queueRepo struct {
	mu          sync.Mutex
	queue       notification.Queue
	path        string
	items       []*notification.Item
	onePerEvent bool
}

func cloneItem(it *notification.Item) *notification.Item {
	c := *it
	if it.SentAt != nil {
		at := *it.SentAt
		c.SentAt = &at
	}
	return &c
}

func (r *queueRepo) commit(next []*notification.Item) error {
	if next == nil {
		next = []*notification.Item{}
	}
	if err := writeJSON(r.path, next); err != nil {
		return fmt.Errorf("failed to save %s queue: %w", r.queue, err)
	}
	r.items = next
	return nil
}

func (r *queueRepo) Append(ctx context.Context, item *notification.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]*notification.Item, 0, len(r.items)+1)
	for _, existing := range r.items {
		if r.onePerEvent && existing.EventID == item.EventID {
			continue
		}
		if existing.ID == item.ID {
			return fmt.Errorf("%w: %s", notification.ErrDuplicateItem, item.ID)
		}
		next = append(next, existing)
	}
	return r.commit(append(next, cloneItem(item)))
}

func (r *queueRepo) ListDue(ctx context.Context, now time.Time) ([]*notification.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*notification.Item, 0)
	for _, it := range r.items {
		if it.IsDue(now) {
			due = append(due, cloneItem(it))
		}
	}
	return due, nil
}

// MarkSent marks every unsent record with the id. Files written by earlier
// versions may hold more than one.
func (r *queueRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next []*notification.Item
	sentAt := at.UTC()
	for i, it := range r.items {
		if it.ID != id || it.Sent {
			continue
		}
		if next == nil {
			next = append([]*notification.Item(nil), r.items...)
		}
		marked := cloneItem(it)
		marked.Sent = true
		marked.SentAt = &sentAt
		next[i] = marked
	}
	if next == nil {
		return nil
	}
	return r.commit(next)
}

func (r *queueRepo) RemoveByEventID(ctx context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]*notification.Item, 0, len(r.items))
	for _, it := range r.items {
		if it.EventID != eventID {
			next = append(next, it)
		}
	}
	if len(next) == len(r.items) {
		return false, nil
	}
	if err := r.commit(next); err != nil {
		return false, err
	}
	return true, nil
}

func (r *queueRepo) List(ctx context.Context) ([]*notification.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*notification.Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, cloneItem(it))
	}
	return out, nil
}
