package leaderboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Member{},
		&models.Group{},
		&models.GroupMembership{},
		&models.WorkoutSession{},
		&models.MealLog{},
		&models.LeaderboardSnapshot{},
		&models.LeaderboardEntry{},
	)
	require.NoError(t, err)
	return db
}

func seedMember(t *testing.T, db *gorm.DB, id uint64, groupID uint64, pending bool) {
	t.Helper()
	require.NoError(t, db.Create(&models.Member{
		MemberID:    id,
		DisplayName: "member",
		Email:       fmt.Sprintf("member%d@test.local", id),
	}).Error)
	require.NoError(t, db.Create(&models.GroupMembership{
		GroupID:  groupID,
		MemberID: id,
		Pending:  pending,
	}).Error)
}

func TestComputePositionsAreContiguous(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	inWindow := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.Group{GroupID: 1, GroupName: "g", OwnerID: 1, Active: true}).Error)
	seedMember(t, db, 1, 1, false)
	seedMember(t, db, 2, 1, false)
	seedMember(t, db, 3, 1, false)

	require.NoError(t, db.Create(&models.WorkoutSession{MemberID: 1, Points: 10, PerformedAt: inWindow}).Error)
	require.NoError(t, db.Create(&models.MealLog{MemberID: 2, Points: 7, EatenAt: inWindow}).Error)
	// Member 3 has no activity at all and still gets a ranked row.

	agg := NewAggregator(db)
	entries, err := agg.Compute(context.Background(), 1, PeriodWeek, now)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, e := range entries {
		assert.Equal(t, i+1, e.Position)
	}
	assert.Equal(t, uint64(1), entries[0].MemberID)
	assert.Equal(t, int64(10), entries[0].Score)
	assert.Equal(t, uint64(3), entries[2].MemberID)
	assert.Equal(t, int64(0), entries[2].Score)
}

func TestComputeExcludesPendingAndOutOfWindow(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	beforeWindow := time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC) // Saturday before window start

	require.NoError(t, db.Create(&models.Group{GroupID: 1, GroupName: "g", OwnerID: 1, Active: true}).Error)
	seedMember(t, db, 1, 1, false)
	seedMember(t, db, 2, 1, true) // pending, must not be ranked

	require.NoError(t, db.Create(&models.WorkoutSession{MemberID: 1, Points: 50, PerformedAt: beforeWindow}).Error)

	agg := NewAggregator(db)
	entries, err := agg.Compute(context.Background(), 1, PeriodWeek, now)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].MemberID)
	assert.Equal(t, int64(0), entries[0].Score, "activity before the window must not score")
}

func TestComputeTieBreakIsAscendingMemberID(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	inWindow := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.Group{GroupID: 1, GroupName: "g", OwnerID: 1, Active: true}).Error)
	// Insert in descending id order so ordering cannot come from insertion.
	seedMember(t, db, 9, 1, false)
	seedMember(t, db, 4, 1, false)

	require.NoError(t, db.Create(&models.WorkoutSession{MemberID: 9, Points: 10, PerformedAt: inWindow}).Error)
	require.NoError(t, db.Create(&models.WorkoutSession{MemberID: 4, Points: 10, PerformedAt: inWindow}).Error)

	agg := NewAggregator(db)
	entries, err := agg.Compute(context.Background(), 1, PeriodWeek, now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(4), entries[0].MemberID)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, uint64(9), entries[1].MemberID)
	assert.Equal(t, 2, entries[1].Position)
}

func TestComputeCountsWorkoutsAndMeals(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	inWindow := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.Group{GroupID: 1, GroupName: "g", OwnerID: 1, Active: true}).Error)
	seedMember(t, db, 1, 1, false)

	require.NoError(t, db.Create(&models.WorkoutSession{MemberID: 1, Points: 3, PerformedAt: inWindow}).Error)
	require.NoError(t, db.Create(&models.WorkoutSession{MemberID: 1, Points: 4, PerformedAt: inWindow}).Error)
	require.NoError(t, db.Create(&models.MealLog{MemberID: 1, Points: 2, EatenAt: inWindow}).Error)

	agg := NewAggregator(db)
	entries, err := agg.Compute(context.Background(), 1, PeriodWeek, now)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(9), entries[0].Score)
	assert.Equal(t, 2, entries[0].WorkoutsCount)
	assert.Equal(t, 1, entries[0].MealsCount)
}

func TestComputeInvalidPeriod(t *testing.T) {
	db := setupTestDB(t)
	agg := NewAggregator(db)

	_, err := agg.Compute(context.Background(), 1, Period("DECADE"), time.Now())
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}
