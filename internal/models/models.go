package models

import (
	"time"
)

// Member represents a platform user. Owned by the external account
// subsystem; the engine references members by id only.
type Member struct {
	MemberID    uint64 `gorm:"primaryKey;autoIncrement"`
	DisplayName string `gorm:"size:255;not null"`
	Email       string `gorm:"uniqueIndex;size:255;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Group represents a training group. Owned externally.
type Group struct {
	GroupID   uint64 `gorm:"primaryKey;autoIncrement"`
	GroupName string `gorm:"size:255;not null"`
	OwnerID   uint64 `gorm:"not null;index"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupMembership links a member to a group. Only non-pending
// memberships participate in ranking.
type GroupMembership struct {
	MembershipID uint64 `gorm:"primaryKey;autoIncrement"`
	GroupID      uint64 `gorm:"not null;index:idx_group_member,unique"`
	MemberID     uint64 `gorm:"not null;index:idx_group_member,unique"`
	Pending      bool   `gorm:"not null;default:false"`
	IsAdmin      bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkoutSession is a scored workout record. Written by the workout
// subsystem; the engine reads it for point aggregation only.
type WorkoutSession struct {
	SessionID   uint64    `gorm:"primaryKey;autoIncrement"`
	MemberID    uint64    `gorm:"not null;index:idx_workout_member_time"`
	Points      int64     `gorm:"not null;default:0"`
	PerformedAt time.Time `gorm:"not null;index:idx_workout_member_time"`
	CreatedAt   time.Time
}

// MealLog is a scored meal record. Written by the nutrition subsystem;
// the engine reads it for point aggregation only.
type MealLog struct {
	MealID    uint64    `gorm:"primaryKey;autoIncrement"`
	MemberID  uint64    `gorm:"not null;index:idx_meal_member_time"`
	Points    int64     `gorm:"not null;default:0"`
	EatenAt   time.Time `gorm:"not null;index:idx_meal_member_time"`
	CreatedAt time.Time
}

// TableName overrides the table name for Member
func (Member) TableName() string {
	return "members"
}

// TableName overrides the table name for Group
func (Group) TableName() string {
	return "groups"
}

// TableName overrides the table name for GroupMembership
func (GroupMembership) TableName() string {
	return "group_memberships"
}

// TableName overrides the table name for WorkoutSession
func (WorkoutSession) TableName() string {
	return "workout_sessions"
}

// TableName overrides the table name for MealLog
func (MealLog) TableName() string {
	return "meal_logs"
}
