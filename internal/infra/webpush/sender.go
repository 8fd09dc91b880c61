// Package webpush delivers payloads over the Web Push protocol with VAPID
// authentication.
package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/push"
	"push_notification_server/internal/domain/subscription"

	wp "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 30 * time.Second

type Config struct {
	Subject         string // "mailto:" address or https URL of the operator
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTLSeconds      int
	HTTPClient      *http.Client // nil means a client with a 30s timeout
}

// Sender implements push.Sender.
type Sender struct {
	cfg    Config
	client *http.Client
	logger logrus.FieldLogger
}

func NewSender(cfg Config, logger logrus.FieldLogger) *Sender {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Sender{cfg: cfg, client: client, logger: logger}
}

var _ push.Sender = (*Sender)(nil)

// Send encrypts payload for the subscriber and posts it to the push service.
// 404 and 410 responses mean the subscription expired and are permanent;
// any other failure is transient.
func (s *Sender) Send(ctx context.Context, endpoint string, keys subscription.Keys, payload notification.Payload) push.Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return push.Result{Reason: fmt.Sprintf("encode payload: %v", err)}
	}

	resp, err := wp.SendNotificationWithContext(ctx, body, &wp.Subscription{
		Endpoint: endpoint,
		Keys:     wp.Keys{P256dh: keys.P256dh, Auth: keys.Auth},
	}, &wp.Options{
		HTTPClient:      s.client,
		Subscriber:      strings.TrimPrefix(s.cfg.Subject, "mailto:"),
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTLSeconds,
		Urgency:         wp.UrgencyNormal,
	})
	if err != nil {
		return push.Result{Reason: err.Error()}
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	res := classify(resp.StatusCode, strings.TrimSpace(string(detail)))
	if !res.OK {
		s.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "permanent": res.Permanent}).Debug("Push service rejected notification")
	}
	return res
}

func classify(status int, detail string) push.Result {
	switch {
	case status >= 200 && status < 300:
		return push.Result{OK: true}
	case status == http.StatusNotFound || status == http.StatusGone:
		return push.Result{Permanent: true, Reason: fmt.Sprintf("subscription expired (status %d)", status)}
	default:
		reason := fmt.Sprintf("push service responded %d", status)
		if detail != "" {
			reason += ": " + detail
		}
		return push.Result{Reason: reason}
	}
}
