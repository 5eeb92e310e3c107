package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification is the canonical record of one delivered (or attempted)
// notification. Immutable after creation except for the delivered
// channels audit column and the read flag. DedupeKey, when set, is
// unique and suppresses duplicate records for the same logical event.
type Notification struct {
	ID                uuid.UUID      `gorm:"type:char(36);primaryKey"`
	RecipientID       uint64         `gorm:"not null;index"`
	Category          string         `gorm:"size:64;not null;index"`
	Title             string         `gorm:"size:255;not null"`
	Body              string         `gorm:"type:text"`
	Metadata          datatypes.JSON `gorm:"type:json"`
	DeliveredChannels string         `gorm:"size:64;not null;default:''"`
	Read              bool           `gorm:"not null;default:false"`
	DedupeKey         *string        `gorm:"size:191;uniqueIndex"`
	CreatedAt         time.Time      `gorm:"index"`
}

// BeforeCreate assigns a fresh UUID when none was supplied.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// NotificationPreference holds a member's delivery settings for one
// notification category. Absence of a row means default-allow on every
// channel; rows are only written on explicit user change, always with
// every flag set. The boolean columns carry no column default: GORM
// omits zero-valued fields that have one, which would silently turn a
// stored false into true.
type NotificationPreference struct {
	PreferenceID uint64 `gorm:"primaryKey;autoIncrement"`
	MemberID     uint64 `gorm:"not null;index:idx_member_category,unique"`
	Category     string `gorm:"size:64;not null;index:idx_member_category,unique"`
	Enabled      bool   `gorm:"not null"`
	Persisted    bool   `gorm:"not null"`
	Realtime     bool   `gorm:"not null"`
	Push         bool   `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PushSubscription is a client-registered web-push endpoint with its
// encryption keys. Removed after a permanent delivery failure.
type PushSubscription struct {
	SubscriptionID uint64 `gorm:"primaryKey;autoIncrement"`
	MemberID       uint64 `gorm:"not null;index"`
	Endpoint       string `gorm:"size:500;not null;uniqueIndex"`
	P256dh         string `gorm:"size:255;not null"`
	Auth           string `gorm:"size:255;not null"`
	Active         bool   `gorm:"not null"`
	LastFailureAt  *time.Time
	CreatedAt      time.Time
}

// ScheduledJobRun records one executed occurrence of a periodic job,
// keyed (job_name, idempotency_key). Inserted before side effects and
// never updated; a unique-key collision means the occurrence already
// ran and the invocation must short-circuit.
type ScheduledJobRun struct {
	RunID          uint64    `gorm:"primaryKey;autoIncrement"`
	JobName        string    `gorm:"size:64;not null;index:idx_job_key,unique"`
	IdempotencyKey string    `gorm:"size:64;not null;index:idx_job_key,unique"`
	ExecutedAt     time.Time `gorm:"not null"`
}

// TableName overrides the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// TableName overrides the table name for NotificationPreference
func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// TableName overrides the table name for PushSubscription
func (PushSubscription) TableName() string {
	return "push_subscriptions"
}

// TableName overrides the table name for ScheduledJobRun
func (ScheduledJobRun) TableName() string {
	return "scheduled_job_runs"
}
