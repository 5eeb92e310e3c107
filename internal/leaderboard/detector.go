package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
)

// ErrSnapshotConflict is returned when a concurrent detector run
// superseded the snapshot this run read. The caller may retry against
// the now-current snapshot or let the next scheduled run reconcile.
var ErrSnapshotConflict = errors.New("leaderboard snapshot version conflict")

// RankChangeEvent records a member's position difference between two
// consecutive snapshots of the same (group, period).
type RankChangeEvent struct {
	GroupID          uint64
	MemberID         uint64
	Period           Period
	PreviousPosition int
	NewPosition      int
}

// Detector computes a fresh leaderboard, diffs it against the stored
// snapshot and replaces the snapshot atomically. Runs for distinct
// (group, period) pairs may proceed concurrently; runs for the same
// pair are serialized by a keyed mutex, with a version check inside
// the transaction guarding multi-process deployments.
type Detector struct {
	db  *gorm.DB
	agg *Aggregator
	log *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDetector creates a ranking-change detector.
func NewDetector(db *gorm.DB, agg *Aggregator, log *zap.Logger) *Detector {
	return &Detector{
		db:    db,
		agg:   agg,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing one (group, period) pair.
func (d *Detector) lockFor(groupID uint64, period Period) *sync.Mutex {
	key := fmt.Sprintf("%d/%s", groupID, period)
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	d.locks[key] = l
	return l
}

// Detect runs one detection cycle for (groupID, period) at now.
// The first run for a pair stores the snapshot and emits no events.
// Members present only in the new leaderboard are ignored for change
// purposes; members absent from it are dropped.
func (d *Detector) Detect(ctx context.Context, groupID uint64, period Period, now time.Time) ([]RankChangeEvent, error) {
	if !period.Valid() {
		return nil, ErrInvalidPeriod
	}

	lock := d.lockFor(groupID, period)
	lock.Lock()
	defer lock.Unlock()

	entries, err := d.agg.Compute(ctx, groupID, period, now)
	if err != nil {
		return nil, err
	}
	windowStart, err := period.WindowStart(now)
	if err != nil {
		return nil, err
	}

	var events []RankChangeEvent
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev models.LeaderboardSnapshot
		err := tx.Preload("Entries").
			Where("group_id = ? AND period = ?", groupID, string(period)).
			First(&prev).Error

		coldStart := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !coldStart {
			return fmt.Errorf("failed to load previous snapshot: %w", err)
		}

		next := models.LeaderboardSnapshot{
			GroupID:     groupID,
			Period:      string(period),
			WindowStart: windowStart,
			Version:     1,
			ComputedAt:  now,
			Entries:     make([]models.LeaderboardEntry, 0, len(entries)),
		}
		for _, e := range entries {
			next.Entries = append(next.Entries, models.LeaderboardEntry{
				MemberID:      e.MemberID,
				Position:      e.Position,
				Score:         e.Score,
				WorkoutsCount: e.WorkoutsCount,
				MealsCount:    e.MealsCount,
			})
		}

		if !coldStart {
			events = diff(groupID, period, prev.Entries, entries)
			next.Version = prev.Version + 1

			// Version-guarded delete: zero affected rows means another
			// writer already superseded the snapshot we read.
			res := tx.Where("snapshot_id = ? AND version = ?", prev.SnapshotID, prev.Version).
				Delete(&models.LeaderboardSnapshot{})
			if res.Error != nil {
				return fmt.Errorf("failed to supersede snapshot: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrSnapshotConflict
			}
			if err := tx.Where("snapshot_id = ?", prev.SnapshotID).
				Delete(&models.LeaderboardEntry{}).Error; err != nil {
				return fmt.Errorf("failed to delete superseded entries: %w", err)
			}
		}

		if err := tx.Create(&next).Error; err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		events = nil
		return nil, err
	}

	d.log.Debug("leaderboard snapshot replaced",
		zap.Uint64("group_id", groupID),
		zap.String("period", string(period)),
		zap.Int("entries", len(entries)),
		zap.Int("events", len(events)))

	return events, nil
}

// diff emits one event per member whose position changed between the
// previous snapshot entries and the fresh leaderboard.
func diff(groupID uint64, period Period, prev []models.LeaderboardEntry, next []Entry) []RankChangeEvent {
	previous := make(map[uint64]int, len(prev))
	for _, e := range prev {
		previous[e.MemberID] = e.Position
	}

	var events []RankChangeEvent
	for _, e := range next {
		before, ok := previous[e.MemberID]
		if !ok || before == e.Position {
			continue
		}
		events = append(events, RankChangeEvent{
			GroupID:          groupID,
			MemberID:         e.MemberID,
			Period:           period,
			PreviousPosition: before,
			NewPosition:      e.Position,
		})
	}
	return events
}

// LoadSnapshot returns the currently stored snapshot for a
// (group, period) pair with its entries ordered by position.
func LoadSnapshot(ctx context.Context, db *gorm.DB, groupID uint64, period Period) (*models.LeaderboardSnapshot, error) {
	if !period.Valid() {
		return nil, ErrInvalidPeriod
	}
	var snap models.LeaderboardSnapshot
	err := db.WithContext(ctx).
		Preload("Entries", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("group_id = ? AND period = ?", groupID, string(period)).
		First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
