package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Entry is one member's computed row in a leaderboard. Position is
// 1-based, assigned by descending score with ties broken by ascending
// member id.
type Entry struct {
	MemberID      uint64
	Score         int64
	Position      int
	WorkoutsCount int
	MealsCount    int
}

// Aggregator computes per-member scores for a group over a period
// window. It reads the activity tables owned by the workout and
// nutrition subsystems and has no side effects.
type Aggregator struct {
	db *gorm.DB
}

// NewAggregator creates a score aggregator over db.
func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// pointsRow is the shape of the grouped activity sum queries.
type pointsRow struct {
	MemberID uint64
	Points   int64
	Count    int
}

// Compute builds the ranked leaderboard for a group at now. Only
// non-pending memberships participate; members without activity in the
// window score zero rather than being omitted.
func (a *Aggregator) Compute(ctx context.Context, groupID uint64, period Period, now time.Time) ([]Entry, error) {
	windowStart, err := period.WindowStart(now)
	if err != nil {
		return nil, err
	}

	var memberIDs []uint64
	if err := a.db.WithContext(ctx).
		Table("group_memberships").
		Where("group_id = ? AND pending = ?", groupID, false).
		Pluck("member_id", &memberIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	if len(memberIDs) == 0 {
		return []Entry{}, nil
	}

	workouts, err := a.sumPoints(ctx, "workout_sessions", "performed_at", memberIDs, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate workout points: %w", err)
	}
	meals, err := a.sumPoints(ctx, "meal_logs", "eaten_at", memberIDs, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate meal points: %w", err)
	}

	entries := make([]Entry, 0, len(memberIDs))
	for _, id := range memberIDs {
		w := workouts[id]
		m := meals[id]
		entries = append(entries, Entry{
			MemberID:      id,
			Score:         w.Points + m.Points,
			WorkoutsCount: w.Count,
			MealsCount:    m.Count,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].MemberID < entries[j].MemberID
	})
	for i := range entries {
		entries[i].Position = i + 1
	}

	return entries, nil
}

// sumPoints groups activity points and counts per member since windowStart.
func (a *Aggregator) sumPoints(ctx context.Context, table, timeColumn string, memberIDs []uint64, windowStart time.Time) (map[uint64]pointsRow, error) {
	var rows []pointsRow
	err := a.db.WithContext(ctx).
		Table(table).
		Select("member_id, COALESCE(SUM(points), 0) AS points, COUNT(*) AS count").
		Where("member_id IN ?", memberIDs).
		Where(timeColumn+" >= ?", windowStart).
		Group("member_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[uint64]pointsRow, len(rows))
	for _, r := range rows {
		result[r.MemberID] = r
	}
	return result, nil
}
