package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
)

// PreferenceFilter resolves which channels a notification may use for a
// member and category. A missing preference row synthesizes the
// default (enabled, all channels) without persisting it; rows are only
// written when the member changes a setting explicitly.
type PreferenceFilter struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewPreferenceFilter creates a preference filter over db.
func NewPreferenceFilter(db *gorm.DB, log *zap.Logger) *PreferenceFilter {
	return &PreferenceFilter{db: db, log: log}
}

// Resolve returns the allowed channel set for (memberID, category).
// An empty set means delivery is fully suppressed: the caller must not
// create a notification record nor invoke any adapter.
func (f *PreferenceFilter) Resolve(ctx context.Context, memberID uint64, category string) ([]Channel, error) {
	var pref models.NotificationPreference
	err := f.db.WithContext(ctx).
		Where("member_id = ? AND category = ?", memberID, category).
		First(&pref).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		f.log.Debug("no preference row, using default-allow",
			zap.Uint64("member_id", memberID),
			zap.String("category", category))
		return []Channel{ChannelPersisted, ChannelRealtime, ChannelPush}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification preference: %w", err)
	}

	if !pref.Enabled {
		return nil, nil
	}

	channels := make([]Channel, 0, 3)
	if pref.Persisted {
		channels = append(channels, ChannelPersisted)
	}
	if pref.Realtime {
		channels = append(channels, ChannelRealtime)
	}
	if pref.Push {
		channels = append(channels, ChannelPush)
	}
	return channels, nil
}
