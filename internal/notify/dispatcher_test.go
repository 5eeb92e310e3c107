package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Notification{},
		&models.NotificationPreference{},
		&models.PushSubscription{},
	)
	require.NoError(t, err)
	return db
}

// fakeAdapter is a scriptable channel adapter for dispatcher tests.
type fakeAdapter struct {
	channel Channel
	outcome Outcome
	err     error
	calls   int
}

func (f *fakeAdapter) Channel() Channel { return f.channel }

func (f *fakeAdapter) AttemptDeliver(ctx context.Context, recipientID uint64, payload Payload) (Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

func newDispatcher(db *gorm.DB, adapters ...Adapter) *Dispatcher {
	return NewDispatcher(db, NewPreferenceFilter(db, zap.NewNop()), zap.NewNop(), adapters...)
}

func TestDispatchDefaultAllow(t *testing.T) {
	db := setupTestDB(t)
	rt := &fakeAdapter{channel: ChannelRealtime, outcome: OutcomeDelivered}
	push := &fakeAdapter{channel: ChannelPush, outcome: OutcomeDelivered}
	d := newDispatcher(db, rt, push)

	res, err := d.Dispatch(context.Background(), Request{
		RecipientID: 7,
		Category:    "ranking_change",
		Title:       "Ranking update",
		Body:        "You moved up",
		Metadata:    map[string]any{"groupId": 1},
	})
	require.NoError(t, err)
	assert.False(t, res.Suppressed)
	require.NotNil(t, res.Notification)
	assert.ElementsMatch(t, []Channel{ChannelPersisted, ChannelRealtime, ChannelPush}, res.Delivered)
	assert.Equal(t, 1, rt.calls)
	assert.Equal(t, 1, push.calls)

	var stored models.Notification
	require.NoError(t, db.First(&stored, "recipient_id = ?", 7).Error)
	assert.Contains(t, stored.DeliveredChannels, "PERSISTED")
	assert.Contains(t, stored.DeliveredChannels, "REALTIME")
	assert.Contains(t, stored.DeliveredChannels, "PUSH")
}

func TestDispatchSuppressedLeavesNoTrace(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&models.NotificationPreference{
		MemberID: 5, Category: "achievement", Enabled: false,
		Persisted: true, Realtime: true, Push: true,
	}).Error)

	rt := &fakeAdapter{channel: ChannelRealtime, outcome: OutcomeDelivered}
	d := newDispatcher(db, rt)

	res, err := d.Dispatch(context.Background(), Request{
		RecipientID: 5,
		Category:    "achievement",
		Title:       "New badge",
	})
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.Nil(t, res.Notification)
	assert.Equal(t, 0, rt.calls, "suppressed dispatch must not touch any channel")

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count, "suppressed dispatch must not create a record")
}

func TestDispatchChannelFailureIsIsolated(t *testing.T) {
	db := setupTestDB(t)
	rt := &fakeAdapter{channel: ChannelRealtime, outcome: OutcomeDelivered}
	push := &fakeAdapter{channel: ChannelPush, outcome: OutcomeFailed, err: errors.New("endpoint down")}
	d := newDispatcher(db, rt, push)

	res, err := d.Dispatch(context.Background(), Request{
		RecipientID: 9,
		Category:    "workout_reminder",
		Title:       "Time to train",
	})
	require.NoError(t, err, "an adapter failure must not surface as a dispatch error")
	require.NotNil(t, res.Notification)
	assert.ElementsMatch(t, []Channel{ChannelPersisted, ChannelRealtime}, res.Delivered)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "record survives a channel failure")
}

func TestDispatchOfflineIsSkipNotFailure(t *testing.T) {
	db := setupTestDB(t)
	rt := &fakeAdapter{channel: ChannelRealtime, outcome: OutcomeSkipped}
	d := newDispatcher(db, rt)

	res, err := d.Dispatch(context.Background(), Request{
		RecipientID: 3,
		Category:    "meal_reminder",
		Title:       "Meal check-in",
	})
	require.NoError(t, err)
	assert.Equal(t, []Channel{ChannelPersisted}, res.Delivered)
}

func TestDispatchRespectsChannelPreference(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&models.NotificationPreference{
		MemberID: 4, Category: "ranking_change", Enabled: true,
		Persisted: true, Realtime: true, Push: false,
	}).Error)

	rt := &fakeAdapter{channel: ChannelRealtime, outcome: OutcomeDelivered}
	push := &fakeAdapter{channel: ChannelPush, outcome: OutcomeDelivered}
	d := newDispatcher(db, rt, push)

	res, err := d.Dispatch(context.Background(), Request{
		RecipientID: 4,
		Category:    "ranking_change",
		Title:       "Ranking update",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rt.calls)
	assert.Equal(t, 0, push.calls, "disabled channel must not be attempted")
	assert.ElementsMatch(t, []Channel{ChannelPersisted, ChannelRealtime}, res.Delivered)
}

func TestDispatchDedupeKeyIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	rt := &fakeAdapter{channel: ChannelRealtime, outcome: OutcomeDelivered}
	d := newDispatcher(db, rt)

	req := Request{
		RecipientID: 2,
		Category:    "ranking_change",
		Title:       "Ranking update",
		DedupeKey:   "ranking_change:2:1:WEEK:2026-08-26",
	}

	first, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, first.Notification)

	second, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Notification.ID, second.Notification.ID)
	assert.Equal(t, 1, rt.calls, "duplicate dispatch must not re-deliver")

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveDefaultAllowIsNotPersisted(t *testing.T) {
	db := setupTestDB(t)
	f := NewPreferenceFilter(db, zap.NewNop())

	channels, err := f.Resolve(context.Background(), 42, "anything")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Channel{ChannelPersisted, ChannelRealtime, ChannelPush}, channels)

	var count int64
	require.NoError(t, db.Model(&models.NotificationPreference{}).Count(&count).Error)
	assert.Zero(t, count, "synthesized default must not be written")
}
