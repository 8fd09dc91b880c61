package push

import (
	"context"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/subscription"
)

// Result is what a Sender reports for one delivery attempt.
type Result struct {
	OK bool
	// Permanent is set when the push service reports the endpoint as gone.
	Permanent bool
	Reason    string
}

// Sender delivers a payload to a single push endpoint. Timeouts are the
// sender's concern; callers impose none.
type Sender interface {
	Send(ctx context.Context, endpoint string, keys subscription.Keys, payload notification.Payload) Result
}
