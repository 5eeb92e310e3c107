package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/config"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/leaderboard"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/notify"
)

// Job names, also the first half of every ScheduledJobRun key.
const (
	JobWorkoutReminder    = "workout-reminder"
	JobMealReminderLunch  = "meal-reminder-lunch"
	JobMealReminderDinner = "meal-reminder-dinner"
	JobRankingChanges     = "ranking-changes"
	JobRetentionCleanup   = "retention-cleanup"
)

// Jobs holds the periodic job bodies. Idempotency lives here, not in
// the cron layer: every body claims a (job name, civil date) key in
// scheduled_job_runs before performing side effects and short-circuits
// when the key already exists.
type Jobs struct {
	db         *gorm.DB
	detector   *leaderboard.Detector
	dispatcher *notify.Dispatcher
	log        *zap.Logger

	notificationRetention time.Duration
	subscriptionRetention time.Duration
	rankingWorkers        int
}

// NewJobs wires the scheduled job bodies.
func NewJobs(db *gorm.DB, detector *leaderboard.Detector, dispatcher *notify.Dispatcher, log *zap.Logger, cfg *config.Config) *Jobs {
	workers := cfg.RankingWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Jobs{
		db:                    db,
		detector:              detector,
		dispatcher:            dispatcher,
		log:                   log,
		notificationRetention: cfg.NotificationRetention,
		subscriptionRetention: cfg.SubscriptionRetention,
		rankingWorkers:        workers,
	}
}

// claim records the job occurrence before any side effect. It returns
// false when the (job, key) pair already ran, which makes a repeated
// invocation for the same nominal occurrence a silent no-op.
func (j *Jobs) claim(ctx context.Context, jobName, key string) (bool, error) {
	run := models.ScheduledJobRun{
		JobName:        jobName,
		IdempotencyKey: key,
		ExecutedAt:     time.Now(),
	}
	res := j.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&run)
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim job run %s/%s: %w", jobName, key, res.Error)
	}
	if res.RowsAffected == 0 {
		j.log.Info("job occurrence already executed, skipping",
			zap.String("job", jobName),
			zap.String("key", key))
		return false, nil
	}
	return true, nil
}

func civilDate(now time.Time) string {
	return now.Format("2006-01-02")
}

// WorkoutReminder sends the daily workout reminder to every member.
func (j *Jobs) WorkoutReminder(ctx context.Context, now time.Time) error {
	claimed, err := j.claim(ctx, JobWorkoutReminder, civilDate(now))
	if err != nil || !claimed {
		return err
	}
	return j.remindAll(ctx, now, "workout_reminder", JobWorkoutReminder,
		"Time to train", "Log a workout today and score points for your group!")
}

// MealReminder sends a meal reminder for one slot (lunch or dinner).
func (j *Jobs) MealReminder(ctx context.Context, now time.Time, slot string) error {
	jobName := JobMealReminderLunch
	if slot == "dinner" {
		jobName = JobMealReminderDinner
	}
	claimed, err := j.claim(ctx, jobName, civilDate(now))
	if err != nil || !claimed {
		return err
	}
	return j.remindAll(ctx, now, "meal_reminder", jobName,
		"Meal check-in", fmt.Sprintf("Don't forget to log your %s.", slot))
}

// remindAll dispatches one reminder notification per member, each with
// its own dedupe key so a partially completed run never double-sends.
func (j *Jobs) remindAll(ctx context.Context, now time.Time, category, jobName, title, body string) error {
	var memberIDs []uint64
	if err := j.db.WithContext(ctx).
		Model(&models.Member{}).
		Pluck("member_id", &memberIDs).Error; err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}

	sent := 0
	for _, id := range memberIDs {
		res, err := j.dispatcher.Dispatch(ctx, notify.Request{
			RecipientID: id,
			Category:    category,
			Title:       title,
			Body:        body,
			DedupeKey:   fmt.Sprintf("%s:%d:%s", jobName, id, civilDate(now)),
		})
		if err != nil {
			j.log.Error("reminder dispatch failed",
				zap.String("job", jobName),
				zap.Uint64("member_id", id),
				zap.Error(err))
			continue
		}
		if !res.Suppressed && !res.Duplicate {
			sent++
		}
	}
	j.log.Info("reminders dispatched",
		zap.String("job", jobName),
		zap.Int("members", len(memberIDs)),
		zap.Int("sent", sent))
	return nil
}

// RankingChanges runs the detector for every active group and both
// periods on a bounded worker pool, then notifies each affected member.
func (j *Jobs) RankingChanges(ctx context.Context, now time.Time) error {
	claimed, err := j.claim(ctx, JobRankingChanges, civilDate(now))
	if err != nil || !claimed {
		return err
	}

	var groups []models.Group
	if err := j.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&groups).Error; err != nil {
		return fmt.Errorf("failed to list active groups: %w", err)
	}
	groupNames := make(map[uint64]string, len(groups))
	for _, g := range groups {
		groupNames[g.GroupID] = g.GroupName
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.rankingWorkers)
	for _, group := range groups {
		group := group
		for _, period := range leaderboard.Periods() {
			period := period
			g.Go(func() error {
				j.detectAndNotify(gctx, now, group.GroupID, groupNames[group.GroupID], period)
				// One group's failure never aborts the sweep.
				return nil
			})
		}
	}
	return g.Wait()
}

// detectAndNotify handles one (group, period) pair of the ranking sweep.
func (j *Jobs) detectAndNotify(ctx context.Context, now time.Time, groupID uint64, groupName string, period leaderboard.Period) {
	events, err := j.detector.Detect(ctx, groupID, period, now)
	if err != nil {
		level := j.log.Error
		if err == leaderboard.ErrSnapshotConflict {
			// Lost a cross-process race; the next run reconciles.
			level = j.log.Warn
		}
		level("ranking detection failed",
			zap.Uint64("group_id", groupID),
			zap.String("period", string(period)),
			zap.Error(err))
		return
	}

	for _, ev := range events {
		direction := "up"
		if ev.NewPosition > ev.PreviousPosition {
			direction = "down"
		}
		_, err := j.dispatcher.Dispatch(ctx, notify.Request{
			RecipientID: ev.MemberID,
			Category:    "ranking_change",
			Title:       "Ranking update",
			Body: fmt.Sprintf("You moved %s from #%d to #%d in %s.",
				direction, ev.PreviousPosition, ev.NewPosition, groupName),
			Metadata: map[string]any{
				"groupId":          ev.GroupID,
				"period":           string(ev.Period),
				"previousPosition": ev.PreviousPosition,
				"newPosition":      ev.NewPosition,
			},
			DedupeKey: fmt.Sprintf("ranking_change:%d:%d:%s:%s",
				ev.MemberID, ev.GroupID, ev.Period, civilDate(now)),
		})
		if err != nil {
			j.log.Error("ranking change dispatch failed",
				zap.Uint64("group_id", ev.GroupID),
				zap.Uint64("member_id", ev.MemberID),
				zap.Error(err))
		}
	}
}

// RetentionCleanup prunes old notifications and dead push
// subscriptions: rows already deactivated plus rows whose last
// transient failure predates the retention threshold.
func (j *Jobs) RetentionCleanup(ctx context.Context, now time.Time) error {
	claimed, err := j.claim(ctx, JobRetentionCleanup, civilDate(now))
	if err != nil || !claimed {
		return err
	}

	notificationCutoff := now.Add(-j.notificationRetention)
	res := j.db.WithContext(ctx).
		Where("created_at < ?", notificationCutoff).
		Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("failed to prune notifications: %w", res.Error)
	}
	prunedNotifications := res.RowsAffected

	subscriptionCutoff := now.Add(-j.subscriptionRetention)
	res = j.db.WithContext(ctx).
		Where("active = ? OR last_failure_at < ?", false, subscriptionCutoff).
		Delete(&models.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("failed to prune push subscriptions: %w", res.Error)
	}

	j.log.Info("retention cleanup finished",
		zap.Int64("notifications_pruned", prunedNotifications),
		zap.Int64("subscriptions_pruned", res.RowsAffected))
	return nil
}
