package models

import (
	"time"
)

// LeaderboardSnapshot is the persisted ranked result of one aggregation
// run for a (group, period) pair. Exactly one snapshot is retained per
// pair; a new run supersedes the prior snapshot atomically. Version
// increases by one on every replacement and guards against concurrent
// writers.
type LeaderboardSnapshot struct {
	SnapshotID  uint64             `gorm:"primaryKey;autoIncrement"`
	GroupID     uint64             `gorm:"not null;index:idx_group_period,unique"`
	Period      string             `gorm:"size:10;not null;index:idx_group_period,unique"`
	WindowStart time.Time          `gorm:"not null"`
	Version     uint64             `gorm:"not null;default:1"`
	ComputedAt  time.Time          `gorm:"not null"`
	Entries     []LeaderboardEntry `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE"`
}

// LeaderboardEntry is one member's row within a snapshot. Position is
// 1-based with no gaps.
type LeaderboardEntry struct {
	EntryID       uint64 `gorm:"primaryKey;autoIncrement"`
	SnapshotID    uint64 `gorm:"not null;index"`
	MemberID      uint64 `gorm:"not null"`
	Position      int    `gorm:"not null"`
	Score         int64  `gorm:"not null;default:0"`
	WorkoutsCount int    `gorm:"not null;default:0"`
	MealsCount    int    `gorm:"not null;default:0"`
}

// TableName overrides the table name for LeaderboardSnapshot
func (LeaderboardSnapshot) TableName() string {
	return "leaderboard_snapshots"
}

// TableName overrides the table name for LeaderboardEntry
func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}
