// Package scheduler runs the engine's periodic jobs on a cron
// schedule. The cron layer only fires triggers; each job body enforces
// its own idempotency, so an extra firing (process restart near a
// trigger time) is harmless.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/config"
)

// Scheduler owns the cron instance and its trigger table.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// New builds the trigger table from config and registers all four jobs.
func New(jobs *Jobs, cfg *config.Config, log *zap.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithLocation(time.Local))

	triggers := []struct {
		name string
		spec string
		run  func(ctx context.Context, now time.Time) error
	}{
		{JobWorkoutReminder, fmt.Sprintf("0 %d * * *", cfg.WorkoutReminderHour), jobs.WorkoutReminder},
		{JobMealReminderLunch, fmt.Sprintf("0 %d * * *", cfg.LunchReminderHour),
			func(ctx context.Context, now time.Time) error { return jobs.MealReminder(ctx, now, "lunch") }},
		{JobMealReminderDinner, fmt.Sprintf("0 %d * * *", cfg.DinnerReminderHour),
			func(ctx context.Context, now time.Time) error { return jobs.MealReminder(ctx, now, "dinner") }},
		{JobRankingChanges, fmt.Sprintf("0 %d * * *", cfg.RankingHour), jobs.RankingChanges},
		{JobRetentionCleanup, fmt.Sprintf("0 %d * * %d", cfg.CleanupHour, cfg.CleanupWeekday), jobs.RetentionCleanup},
	}

	for _, t := range triggers {
		if _, err := c.AddFunc(t.spec, func() {
			now := time.Now()
			if err := t.run(context.Background(), now); err != nil {
				log.Error("scheduled job failed",
					zap.String("job", t.name),
					zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", t.name, err)
		}
		log.Info("job scheduled", zap.String("job", t.name), zap.String("spec", t.spec))
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts trigger firing and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
