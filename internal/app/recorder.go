package app

import (
	"time"

	"push_notification_server/internal/domain/notification"
)

// Recorder receives delivery and pass observations for metrics.
type Recorder interface {
	RecordDelivery(kind notification.Kind, outcome notification.Outcome)
	RecordPass(pass string, took time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordDelivery(notification.Kind, notification.Outcome) {}
func (nopRecorder) RecordPass(string, time.Duration, error)               {}
