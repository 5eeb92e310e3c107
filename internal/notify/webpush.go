package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
)

// errSubscriptionGone marks a permanent push failure: the endpoint
// reported the subscription no longer exists (404/410).
var errSubscriptionGone = errors.New("push subscription gone")

// WebPushOptions tunes web-push delivery.
type WebPushOptions struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxConcurrent   int
}

// WebPushAdapter delivers notifications to a member's registered push
// subscriptions over the web-push protocol, payload encrypted under
// each subscription's keys and the request signed with the VAPID
// keypair. Transient failures retry with bounded exponential backoff;
// a gone endpoint removes the subscription silently. Subscriptions are
// attempted with bounded concurrency so one slow endpoint cannot stall
// a whole notification wave.
type WebPushAdapter struct {
	db   *gorm.DB
	log  *zap.Logger
	opts WebPushOptions
}

// NewWebPushAdapter creates the PUSH channel adapter.
func NewWebPushAdapter(db *gorm.DB, log *zap.Logger, opts WebPushOptions) *WebPushAdapter {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	// A negative count would convert to a huge uint64 retry budget.
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &WebPushAdapter{db: db, log: log, opts: opts}
}

// Channel identifies this adapter's transport.
func (a *WebPushAdapter) Channel() Channel {
	return ChannelPush
}

// AttemptDeliver sends the payload to every active subscription of the
// recipient. The adapter reports success when at least one
// subscription accepted the message; a recipient without subscriptions
// is a skip, not a failure.
func (a *WebPushAdapter) AttemptDeliver(ctx context.Context, recipientID uint64, payload Payload) (Outcome, error) {
	var subs []models.PushSubscription
	if err := a.db.WithContext(ctx).
		Where("member_id = ? AND active = ?", recipientID, true).
		Find(&subs).Error; err != nil {
		return OutcomeFailed, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return OutcomeSkipped, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to marshal push payload: %w", err)
	}

	var delivered, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.MaxConcurrent)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			err := a.deliverWithRetry(gctx, sub, raw)
			switch {
			case errors.Is(err, errSubscriptionGone):
				a.removeSubscription(sub)
			case err != nil:
				failed.Add(1)
				a.recordFailure(sub)
				a.log.Warn("push delivery dropped after retries",
					zap.Uint64("member_id", sub.MemberID),
					zap.Uint64("subscription_id", sub.SubscriptionID),
					zap.Error(err))
			default:
				delivered.Add(1)
			}
			// Per-subscription outcomes never abort the group.
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case delivered.Load() > 0:
		return OutcomeDelivered, nil
	case failed.Load() > 0:
		return OutcomeFailed, fmt.Errorf("push delivery failed for %d of %d subscriptions", failed.Load(), len(subs))
	default:
		return OutcomeSkipped, nil
	}
}

// deliverWithRetry pushes one message to one subscription, retrying
// transient failures with exponential backoff up to MaxRetries extra
// attempts. Exhaustion is terminal for the message only, never for the
// subscription.
func (a *WebPushAdapter) deliverWithRetry(ctx context.Context, sub models.PushSubscription, raw []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.opts.RetryBackoff

	operation := func() error {
		resp, err := webpush.SendNotificationWithContext(ctx, raw, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      a.opts.Subscriber,
			VAPIDPublicKey:  a.opts.VAPIDPublicKey,
			VAPIDPrivateKey: a.opts.VAPIDPrivateKey,
			TTL:             a.opts.TTL,
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return backoff.Permanent(errSubscriptionGone)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("push endpoint returned %d", resp.StatusCode))
		}
	}

	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(a.opts.MaxRetries)), ctx))
}

// removeSubscription deletes a gone subscription so future dispatches
// stop attempting it. Silent cleanup, no user-visible error.
func (a *WebPushAdapter) removeSubscription(sub models.PushSubscription) {
	if err := a.db.Delete(&models.PushSubscription{}, sub.SubscriptionID).Error; err != nil {
		a.log.Error("failed to remove gone push subscription",
			zap.Uint64("subscription_id", sub.SubscriptionID),
			zap.Error(err))
		return
	}
	a.log.Info("removed gone push subscription",
		zap.Uint64("member_id", sub.MemberID),
		zap.Uint64("subscription_id", sub.SubscriptionID))
}

// recordFailure stamps a transient-failure time on the subscription;
// the weekly cleanup prunes subscriptions that keep failing.
func (a *WebPushAdapter) recordFailure(sub models.PushSubscription) {
	now := time.Now()
	if err := a.db.Model(&models.PushSubscription{}).
		Where("subscription_id = ?", sub.SubscriptionID).
		Update("last_failure_at", now).Error; err != nil {
		a.log.Error("failed to record push failure time",
			zap.Uint64("subscription_id", sub.SubscriptionID),
			zap.Error(err))
	}
}
