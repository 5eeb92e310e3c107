package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Env  string
	Port string

	// Database configuration
	DBType            string // mysql, postgres, sqlite
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int

	// Web push (VAPID) configuration
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	// Scheduler trigger table (local hours, 0-23)
	WorkoutReminderHour int
	LunchReminderHour   int
	DinnerReminderHour  int
	RankingHour         int
	CleanupWeekday      int // 0 = Sunday
	CleanupHour         int

	// Retention thresholds
	NotificationRetention time.Duration
	SubscriptionRetention time.Duration

	// Delivery tuning
	PushMaxRetries   int
	PushRetryBackoff time.Duration
	PushTTL          int
	PushConcurrency  int
	RankingWorkers   int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Env:                   getEnv("ENV", "development"),
		Port:                  getEnv("PORT", "3000"),
		DBType:                getEnv("DB_TYPE", "postgres"),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBDatabase:            getEnv("DB_DATABASE", ""),
		DBUser:                getEnv("DB_USER", ""),
		DBPassword:            getEnv("DB_PASSWORD", ""),
		DBConnectionLimit:     getEnvAsInt("DB_CONNECTION_LIMIT", 5),
		VAPIDPublicKey:        getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:       getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubscriber:       getEnv("VAPID_SUBSCRIBER", "mailto:ops@xpump.app"),
		WorkoutReminderHour:   getEnvAsInt("WORKOUT_REMINDER_HOUR", 8),
		LunchReminderHour:     getEnvAsInt("LUNCH_REMINDER_HOUR", 12),
		DinnerReminderHour:    getEnvAsInt("DINNER_REMINDER_HOUR", 19),
		RankingHour:           getEnvAsInt("RANKING_HOUR", 21),
		CleanupWeekday:        getEnvAsInt("CLEANUP_WEEKDAY", 0),
		CleanupHour:           getEnvAsInt("CLEANUP_HOUR", 3),
		NotificationRetention: getEnvAsDuration("NOTIFICATION_RETENTION", 90*24*time.Hour),
		SubscriptionRetention: getEnvAsDuration("SUBSCRIPTION_RETENTION", 30*24*time.Hour),
		PushMaxRetries:        getEnvAsInt("PUSH_MAX_RETRIES", 3),
		PushRetryBackoff:      getEnvAsDuration("PUSH_RETRY_BACKOFF", 500*time.Millisecond),
		PushTTL:               getEnvAsInt("PUSH_TTL", 60),
		PushConcurrency:       getEnvAsInt("PUSH_CONCURRENCY", 4),
		RankingWorkers:        getEnvAsInt("RANKING_WORKERS", 4),
	}

	// Validate required fields
	if cfg.DBType != "sqlite" {
		if cfg.DBDatabase == "" {
			return nil, fmt.Errorf("DB_DATABASE is required")
		}
		if cfg.DBUser == "" {
			return nil, fmt.Errorf("DB_USER is required")
		}
	} else if cfg.DBDatabase == "" {
		cfg.DBDatabase = "xpump.db"
	}

	for name, hour := range map[string]int{
		"WORKOUT_REMINDER_HOUR": cfg.WorkoutReminderHour,
		"LUNCH_REMINDER_HOUR":   cfg.LunchReminderHour,
		"DINNER_REMINDER_HOUR":  cfg.DinnerReminderHour,
		"RANKING_HOUR":          cfg.RankingHour,
		"CLEANUP_HOUR":          cfg.CleanupHour,
	} {
		if hour < 0 || hour > 23 {
			return nil, fmt.Errorf("%s must be between 0 and 23", name)
		}
	}
	if cfg.CleanupWeekday < 0 || cfg.CleanupWeekday > 6 {
		return nil, fmt.Errorf("CLEANUP_WEEKDAY must be between 0 and 6")
	}

	return cfg, nil
}

// PushEnabled reports whether a VAPID keypair has been configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
