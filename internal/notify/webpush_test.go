package notify

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
)

// testSubscriptionKeys builds a valid browser-style key pair: an
// uncompressed P-256 public point and a 16-byte auth secret, both
// base64url. The payload encryption in the adapter needs real keys.
func testSubscriptionKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	authSecret := make([]byte, 16)
	_, err = rand.Read(authSecret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(authSecret)
}

func newTestWebPushAdapter(t *testing.T, db *gorm.DB, maxRetries int) *WebPushAdapter {
	t.Helper()
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewWebPushAdapter(db, zap.NewNop(), WebPushOptions{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		Subscriber:      "mailto:test@xpump.app",
		TTL:             30,
		MaxRetries:      maxRetries,
		RetryBackoff:    time.Millisecond,
		MaxConcurrent:   2,
	})
}

func seedSubscription(t *testing.T, db *gorm.DB, memberID uint64, endpoint string) {
	t.Helper()
	p256dh, auth := testSubscriptionKeys(t)
	require.NoError(t, db.Create(&models.PushSubscription{
		MemberID: memberID,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
		Active:   true,
	}).Error)
}

func TestWebPushDelivered(t *testing.T) {
	db := setupTestDB(t)
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	seedSubscription(t, db, 1, server.URL+"/sub-1")
	adapter := newTestWebPushAdapter(t, db, 3)

	outcome, err := adapter.AttemptDeliver(context.Background(), 1, Payload{Title: "hi"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
	assert.Equal(t, int64(1), requests.Load())

	var sub models.PushSubscription
	require.NoError(t, db.First(&sub, "member_id = ?", 1).Error)
	assert.Nil(t, sub.LastFailureAt)
}

func TestWebPushGoneRemovesSubscription(t *testing.T) {
	db := setupTestDB(t)
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	seedSubscription(t, db, 1, server.URL+"/sub-gone")
	adapter := newTestWebPushAdapter(t, db, 3)

	outcome, err := adapter.AttemptDeliver(context.Background(), 1, Payload{Title: "hi"})
	require.NoError(t, err, "a gone subscription is silent cleanup, not an error")
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, int64(1), requests.Load(), "permanent failure must not retry")

	var count int64
	require.NoError(t, db.Model(&models.PushSubscription{}).Count(&count).Error)
	assert.Zero(t, count, "gone subscription must be removed from the store")

	// Subsequent dispatch attempts zero subscriptions.
	outcome, err = adapter.AttemptDeliver(context.Background(), 1, Payload{Title: "again"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, int64(1), requests.Load())
}

func TestWebPushTransientRetriesThenDrops(t *testing.T) {
	db := setupTestDB(t)
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	seedSubscription(t, db, 1, server.URL+"/sub-flaky")
	adapter := newTestWebPushAdapter(t, db, 2)

	outcome, err := adapter.AttemptDeliver(context.Background(), 1, Payload{Title: "hi"})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Error(t, err)
	assert.Equal(t, int64(3), requests.Load(), "initial attempt plus two retries")

	// Transient exhaustion drops the message, never the subscription.
	var sub models.PushSubscription
	require.NoError(t, db.First(&sub, "member_id = ?", 1).Error)
	assert.True(t, sub.Active)
	assert.NotNil(t, sub.LastFailureAt)
}

func TestWebPushNegativeRetriesMeansSingleAttempt(t *testing.T) {
	db := setupTestDB(t)
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	seedSubscription(t, db, 1, server.URL+"/sub-misconfigured")
	adapter := newTestWebPushAdapter(t, db, -1)

	outcome, err := adapter.AttemptDeliver(context.Background(), 1, Payload{Title: "hi"})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Error(t, err)
	assert.Equal(t, int64(1), requests.Load(), "a misconfigured retry count must not retry at all")
}

func TestWebPushNoSubscriptionsIsSkip(t *testing.T) {
	db := setupTestDB(t)
	adapter := newTestWebPushAdapter(t, db, 1)

	outcome, err := adapter.AttemptDeliver(context.Background(), 99, Payload{Title: "hi"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestWebPushOneGoodEndpointWins(t *testing.T) {
	db := setupTestDB(t)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	seedSubscription(t, db, 1, good.URL+"/phone")
	seedSubscription(t, db, 1, bad.URL+"/stale-laptop")
	adapter := newTestWebPushAdapter(t, db, 0)

	outcome, err := adapter.AttemptDeliver(context.Background(), 1, Payload{Title: "hi"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome, "one accepted delivery makes the channel successful")
}
