package webpush

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/subscription"

	wp "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientKeys(t *testing.T) subscription.Keys {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return subscription.Keys{
		P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(auth),
	}
}

func newTestSender(t *testing.T, client *http.Client) *Sender {
	t.Helper()
	privateKey, publicKey, err := wp.GenerateVAPIDKeys()
	require.NoError(t, err)
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewSender(Config{
		Subject:         "mailto:ops@example.com",
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		TTLSeconds:      60,
		HTTPClient:      client,
	}, l)
}

func TestSender_Send(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		ok        bool
		permanent bool
	}{
		{name: "created", status: http.StatusCreated, ok: true},
		{name: "gone", status: http.StatusGone, permanent: true},
		{name: "not found", status: http.StatusNotFound, permanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests},
		{name: "server error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTTL, gotAuth, gotEncoding string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotTTL = r.Header.Get("TTL")
				gotAuth = r.Header.Get("Authorization")
				gotEncoding = r.Header.Get("Content-Encoding")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s := newTestSender(t, srv.Client())
			payload, err := notification.NewPayloadBuilder("", "", "").Build(notification.KindTest, "")
			require.NoError(t, err)

			res := s.Send(context.Background(), srv.URL+"/push/abc", clientKeys(t), payload)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.permanent, res.Permanent)
			if !tt.ok {
				assert.NotEmpty(t, res.Reason)
			}
			assert.Equal(t, "60", gotTTL)
			assert.True(t, strings.HasPrefix(gotAuth, "vapid "), gotAuth)
			assert.Equal(t, "aes128gcm", gotEncoding)
		})
	}
}

func TestSender_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	s := newTestSender(t, nil)
	res := s.Send(context.Background(), url, clientKeys(t), notification.Payload{Title: "x"})
	assert.False(t, res.OK)
	assert.False(t, res.Permanent)
	assert.NotEmpty(t, res.Reason)
}

func TestClassify_IncludesDetail(t *testing.T) {
	res := classify(http.StatusBadRequest, "UnauthorizedRegistration")
	assert.False(t, res.OK)
	assert.False(t, res.Permanent)
	assert.Contains(t, res.Reason, "400")
	assert.Contains(t, res.Reason, "UnauthorizedRegistration")
}
