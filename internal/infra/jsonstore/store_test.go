package jsonstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/subscription"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSub(endpoint string, hour int) *subscription.Subscription {
	prefs := subscription.DefaultPreferences()
	prefs.DailyCheckIn.UTCHour = &hour
	return &subscription.Subscription{
		Endpoint:    endpoint,
		Keys:        subscription.Keys{P256dh: "p", Auth: "a"},
		Preferences: prefs,
		CreatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOpen_CreatesFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, quietLogger())
	require.NoError(t, err)

	for _, name := range []string{subscriptionsFile, followUpsFile, activeCheckInsFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.JSONEq(t, "[]", string(data), name)
	}
}

func TestOpen_ReloadsPersistedState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, quietLogger())
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, newSub("https://fcm.googleapis.com/a", 9)))
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	item := notification.NewFollowUp("evt-1", now, "https://fcm.googleapis.com/a", now)
	require.NoError(t, s.Queue(notification.QueueFollowUps).Append(ctx, item))
	require.NoError(t, s.Queue(notification.QueueFollowUps).MarkSent(ctx, item.ID, now))

	reopened, err := Open(dir, quietLogger())
	require.NoError(t, err)

	subs, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 9, *subs[0].Preferences.DailyCheckIn.UTCHour)

	items, err := reopened.Queue(notification.QueueFollowUps).List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Sent)
	require.NotNil(t, items[0].SentAt)
	assert.True(t, items[0].SentAt.Equal(now))
}

func TestOpen_LegacyRecordLayout(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{"endpoint":"https://fcm.googleapis.com/x","keys":{"p256dh":"p","auth":"a"},
"preferences":{"dailyCheckIn":{"enabled":true,"time":"20:00"},
"postAttackFollowUp":{"enabled":true,"delayHours":2},"activeCheckin":{"enabled":false,"delayHours":2}},
"createdAt":"2023-11-02T10:00:00.000Z","updatedAt":"2023-11-02T10:00:00.000Z"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, subscriptionsFile), []byte(legacy), 0o644))

	s, err := Open(dir, quietLogger())
	require.NoError(t, err)

	due, err := s.ListDueForDailyCheckIn(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].Preferences.DailyCheckIn.IsLegacy())
}

func TestOpen_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, followUpsFile), []byte("{not json"), 0o644))

	_, err := Open(dir, quietLogger())
	assert.Error(t, err)
}

func TestStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(quietLogger())

	require.NoError(t, s.Upsert(ctx, newSub("e1", 8)))
	require.NoError(t, s.Upsert(ctx, newSub("e2", 9)))
	require.NoError(t, s.Upsert(ctx, newSub("e1", 10)))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "upsert replaces by endpoint")

	got, err := s.GetByEndpoint(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 10, *got.Preferences.DailyCheckIn.UTCHour)

	*got.Preferences.DailyCheckIn.UTCHour = 3
	again, err := s.GetByEndpoint(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 10, *again.Preferences.DailyCheckIn.UTCHour, "returned records are copies")

	due, err := s.ListDueForDailyCheckIn(ctx, 9)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "e2", due[0].Endpoint)

	prefs := subscription.DefaultPreferences()
	prefs.DailyCheckIn.Enabled = false
	updated, err := s.UpdatePreferences(ctx, "e2", prefs)
	require.NoError(t, err)
	assert.False(t, updated.Preferences.DailyCheckIn.Enabled)

	_, err = s.UpdatePreferences(ctx, "missing", prefs)
	assert.ErrorIs(t, err, subscription.ErrNotFound)

	_, err = s.GetByEndpoint(ctx, "missing")
	assert.ErrorIs(t, err, subscription.ErrNotFound)

	removed, err := s.Remove(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestQueue_MarkSentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(quietLogger())
	q := s.Queue(notification.QueueFollowUps)

	due := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	item := notification.NewFollowUp("evt", due, "e1", due.Add(-time.Hour))
	require.NoError(t, q.Append(ctx, item))

	first := due.Add(time.Minute)
	require.NoError(t, q.MarkSent(ctx, item.ID, first))
	require.NoError(t, q.MarkSent(ctx, item.ID, first.Add(time.Hour)))
	require.NoError(t, q.MarkSent(ctx, "unknown", first))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].SentAt.Equal(first), "second mark must not move SentAt")

	pending, err := q.ListDue(ctx, first.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueue_ListDue(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(quietLogger())
	q := s.Queue(notification.QueueFollowUps)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	past := notification.NewFollowUp("a", now.Add(-48*time.Hour), "e1", now.Add(-72*time.Hour))
	exact := notification.NewFollowUp("b", now, "e1", now.Add(-time.Hour))
	future := notification.NewFollowUp("c", now.Add(time.Second), "e1", now.Add(-time.Hour))
	for _, it := range []*notification.Item{past, exact, future} {
		require.NoError(t, q.Append(ctx, it))
	}

	due, err := q.ListDue(ctx, now)
	require.NoError(t, err)
	ids := make([]string, 0, len(due))
	for _, it := range due {
		ids = append(ids, it.EventID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestQueue_ActiveCheckInReplacesPerEvent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(quietLogger())
	q := s.Queue(notification.QueueActiveCheckIns)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := notification.NewActiveCheckIn("evt", now.Add(time.Hour), "e1", now)
	require.NoError(t, q.Append(ctx, first))
	require.NoError(t, q.MarkSent(ctx, first.ID, now.Add(time.Hour)))

	second := notification.NewActiveCheckIn("evt", now.Add(3*time.Hour), "e1", now.Add(2*time.Hour))
	require.NoError(t, q.Append(ctx, second))
	require.NoError(t, q.Append(ctx, notification.NewActiveCheckIn("other", now, "e1", now)))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	var evt *notification.Item
	for _, it := range items {
		if it.EventID == "evt" {
			evt = it
		}
	}
	require.NotNil(t, evt)
	assert.False(t, evt.Sent)
	assert.True(t, evt.ScheduledTime.Equal(now.Add(3*time.Hour)))
}

func TestQueue_FollowUpsKeepMultiplePerEvent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(quietLogger())
	q := s.Queue(notification.QueueFollowUps)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, q.Append(ctx, notification.NewFollowUp("evt", now, "e1", now)))
	require.NoError(t, q.Append(ctx, notification.NewFollowUp("evt", now, "e1", now.Add(time.Millisecond))))

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestQueue_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(quietLogger())
	q := s.Queue(notification.QueueFollowUps)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := notification.NewFollowUp("evt", now, "e1", now)
	again := notification.NewFollowUp("evt", now, "e1", now) // same creation millisecond
	require.Equal(t, first.ID, again.ID)

	require.NoError(t, q.Append(ctx, first))
	err := q.Append(ctx, again)
	assert.ErrorIs(t, err, notification.ErrDuplicateItem)

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, q.MarkSent(ctx, first.ID, now))
	for tick := 1; tick <= 3; tick++ {
		due, err := q.ListDue(ctx, now.Add(time.Duration(tick)*15*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, due, "tick %d", tick)
	}
}

func TestQueue_MarkSentCoversDuplicateRecordsOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	record := `{"id":"followup-evt-1709294400000","attackId":"evt","scheduledTime":"2024-03-01T12:00:00Z","subscriptionEndpoint":"e1","sent":false,"createdAt":"2024-03-01T12:00:00Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, followUpsFile), []byte("["+record+","+record+"]"), 0o644))

	s, err := Open(dir, quietLogger())
	require.NoError(t, err)
	q := s.Queue(notification.QueueFollowUps)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	due, err := q.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)

	require.NoError(t, q.MarkSent(ctx, "followup-evt-1709294400000", now))
	due, err = q.ListDue(ctx, now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestQueue_RemoveByEventID(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(quietLogger())
	q := s.Queue(notification.QueueActiveCheckIns)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, q.Append(ctx, notification.NewActiveCheckIn("evt", now, "e1", now)))

	removed, err := q.RemoveByEventID(ctx, "evt")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.RemoveByEventID(ctx, "evt")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestQueue_FailedWriteKeepsState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, quietLogger())
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q := s.Queue(notification.QueueFollowUps)
	require.NoError(t, q.Append(ctx, notification.NewFollowUp("evt", now, "e1", now)))

	s.followUps.path = filepath.Join(dir, "missing-dir", followUpsFile)
	err = q.Append(ctx, notification.NewFollowUp("evt2", now, "e1", now))
	require.Error(t, err)

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
