// internal/domain/notification/item.go
package notification

import (
	"fmt"
	"time"
)

// Queue names one of the two homogeneous queues of scheduled items.
type Queue string

const (
	QueueFollowUps      Queue = "followups"
	QueueActiveCheckIns Queue = "active-checkins"
)

// Kind returns the payload kind delivered for items of this queue.
func (q Queue) Kind() Kind {
	switch q {
	case QueueActiveCheckIns:
		return KindActiveCheckIn
	default:
		return KindPostEventFollowUp
	}
}

// Item is a one-shot notification keyed by due time. Items are never
// deleted after delivery; Sent is terminal and the record stays as history.
// The JSON shape matches the records written by earlier server versions,
// hence "attackId" for the event id.
type Item struct {
	ID                   string     `json:"id"`
	EventID              string     `json:"attackId"`
	ScheduledTime        time.Time  `json:"scheduledTime"`
	SubscriptionEndpoint string     `json:"subscriptionEndpoint"` // non-owning reference, resolved at dispatch time
	Sent                 bool       `json:"sent"`
	SentAt               *time.Time `json:"sentAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// IsDue reports whether the item should be delivered at now. Overdue items
// stay due however late they are.
func (i *Item) IsDue(now time.Time) bool {
	return !i.Sent && !i.ScheduledTime.After(now)
}

// NewFollowUp builds a post-event follow-up. Several follow-ups may be
// outstanding for the same event, so the id includes the creation instant.
func NewFollowUp(eventID string, dueAt time.Time, endpoint string, now time.Time) *Item {
	return &Item{
		ID:                   fmt.Sprintf("followup-%s-%d", eventID, now.UnixMilli()),
		EventID:              eventID,
		ScheduledTime:        dueAt.UTC(),
		SubscriptionEndpoint: endpoint,
		CreatedAt:            now.UTC(),
	}
}

// NewActiveCheckIn builds a check-in for an ongoing event. The id is derived
// from the event alone: one outstanding check-in per event.
func NewActiveCheckIn(eventID string, dueAt time.Time, endpoint string, now time.Time) *Item {
	return &Item{
		ID:                   ActiveCheckInID(eventID),
		EventID:              eventID,
		ScheduledTime:        dueAt.UTC(),
		SubscriptionEndpoint: endpoint,
		CreatedAt:            now.UTC(),
	}
}

// ActiveCheckInID is the item id used for an event's active check-in.
func ActiveCheckInID(eventID string) string {
	return "active-checkin-" + eventID
}

// SelectDueItems returns the items of a queue snapshot that are due at now.
// Callers must not rely on the order of the result.
func SelectDueItems(items []*Item, now time.Time) []*Item {
	due := make([]*Item, 0)
	for _, it := range items {
		if it != nil && it.IsDue(now) {
			due = append(due, it)
		}
	}
	return due
}
