// internal/domain/notification/repository.go
package notification

import (
	"context"
	"fmt"
	"time"
)

// ErrDuplicateItem is returned by Append when the item id already exists in
// its queue.
var ErrDuplicateItem = fmt.Errorf("duplicate scheduled item id")

// Repository stores the items of a single queue.
type Repository interface {
	// Append adds an item. For the active check-in queue an item for the
	// same event replaces any existing one, sent or not. Any other id
	// collision fails with ErrDuplicateItem.
	Append(ctx context.Context, item *Item) error
	// ListDue returns a snapshot of the unsent items with ScheduledTime <= now.
	ListDue(ctx context.Context, now time.Time) ([]*Item, error)
	// MarkSent sets Sent and SentAt. Marking an already sent or unknown item is a no-op.
	MarkSent(ctx context.Context, id string, at time.Time) error
	// RemoveByEventID deletes every item of the event and reports whether any existed.
	RemoveByEventID(ctx context.Context, eventID string) (bool, error)
	// List returns every item, sent ones included.
	List(ctx context.Context) ([]*Item, error)
}

// Store gives access to both queues of one backend.
type Store interface {
	Queue(q Queue) Repository
}
