package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
)

// Request describes one notification to dispatch. A non-empty
// DedupeKey makes the dispatch idempotent: re-dispatching the same key
// returns the already-created record without any channel calls.
type Request struct {
	RecipientID uint64
	Category    string
	Title       string
	Body        string
	Metadata    map[string]any
	DedupeKey   string
}

// Result is the outcome of a dispatch. Exactly one of Suppressed,
// Duplicate or a fresh Notification applies.
type Result struct {
	Suppressed   bool
	Duplicate    bool
	Notification *models.Notification
	Delivered    []Channel
}

// Dispatcher is the fan-out coordinator. It creates the canonical
// notification record (which is itself the PERSISTED delivery) and
// invokes each remaining allowed adapter independently, so a failing
// transport never blocks the others nor rolls back the record.
type Dispatcher struct {
	db       *gorm.DB
	prefs    *PreferenceFilter
	adapters map[Channel]Adapter
	log      *zap.Logger
}

// NewDispatcher creates a dispatcher with a fixed set of channel adapters.
func NewDispatcher(db *gorm.DB, prefs *PreferenceFilter, log *zap.Logger, adapters ...Adapter) *Dispatcher {
	byChannel := make(map[Channel]Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	return &Dispatcher{db: db, prefs: prefs, adapters: byChannel, log: log}
}

// Dispatch resolves preferences and delivers across every allowed
// channel. Suppressed notifications leave no trace at all.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	channels, err := d.prefs.Resolve(ctx, req.RecipientID, req.Category)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return &Result{Suppressed: true}, nil
	}

	if req.DedupeKey != "" {
		var existing models.Notification
		err := d.db.WithContext(ctx).
			Where("dedupe_key = ?", req.DedupeKey).
			First(&existing).Error
		if err == nil {
			return &Result{Duplicate: true, Notification: &existing}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check dedupe key: %w", err)
		}
	}

	notification := models.Notification{
		RecipientID: req.RecipientID,
		Category:    req.Category,
		Title:       req.Title,
		Body:        req.Body,
	}
	if req.DedupeKey != "" {
		key := req.DedupeKey
		notification.DedupeKey = &key
	}
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notification metadata: %w", err)
		}
		notification.Metadata = raw
	}

	if err := d.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	payload := Payload{
		ID:        notification.ID,
		Category:  notification.Category,
		Title:     notification.Title,
		Body:      notification.Body,
		Metadata:  req.Metadata,
		CreatedAt: notification.CreatedAt,
	}

	delivered := []Channel{ChannelPersisted}
	for _, ch := range channels {
		if ch == ChannelPersisted {
			continue
		}
		adapter, ok := d.adapters[ch]
		if !ok {
			continue
		}
		outcome, err := adapter.AttemptDeliver(ctx, req.RecipientID, payload)
		switch {
		case err != nil:
			d.log.Error("channel delivery failed",
				zap.String("channel", string(ch)),
				zap.String("category", req.Category),
				zap.Uint64("recipient_id", req.RecipientID),
				zap.Error(err))
		case outcome == OutcomeDelivered:
			delivered = append(delivered, ch)
		default:
			d.log.Debug("channel delivery skipped",
				zap.String("channel", string(ch)),
				zap.Uint64("recipient_id", req.RecipientID))
		}
	}

	notification.DeliveredChannels = joinChannels(delivered)
	if err := d.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", notification.ID).
		Update("delivered_channels", notification.DeliveredChannels).Error; err != nil {
		d.log.Error("failed to update delivered channels audit",
			zap.String("notification_id", notification.ID.String()),
			zap.Error(err))
	}

	return &Result{Notification: &notification, Delivered: delivered}, nil
}

func joinChannels(channels []Channel) string {
	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, string(ch))
	}
	return strings.Join(parts, ",")
}
