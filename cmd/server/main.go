package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/config"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/database"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/handlers"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/leaderboard"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/logger"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/notify"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/realtime"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/scheduler"
)

func main() {
	// .env is optional; real deployments inject environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.Env)
	defer func() { _ = zlog.Sync() }()

	db, err := database.Connect(cfg)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	// Delivery pipeline: preference filter -> dispatcher -> channel adapters
	hub := realtime.NewHub(zlog)
	adapters := []notify.Adapter{notify.NewRealtimeAdapter(hub, zlog)}
	if cfg.PushEnabled() {
		adapters = append(adapters, notify.NewWebPushAdapter(db, zlog, notify.WebPushOptions{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDSubscriber,
			TTL:             cfg.PushTTL,
			MaxRetries:      cfg.PushMaxRetries,
			RetryBackoff:    cfg.PushRetryBackoff,
			MaxConcurrent:   cfg.PushConcurrency,
		}))
	} else {
		zlog.Warn("VAPID keypair not configured, web push disabled; run cmd/vapidgen to create one")
	}

	prefs := notify.NewPreferenceFilter(db, zlog)
	dispatcher := notify.NewDispatcher(db, prefs, zlog, adapters...)

	// Ranking pipeline
	aggregator := leaderboard.NewAggregator(db)
	detector := leaderboard.NewDetector(db, aggregator, zlog)

	jobs := scheduler.NewJobs(db, detector, dispatcher, zlog, cfg)
	sched, err := scheduler.New(jobs, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to build scheduler", zap.Error(err))
	}
	sched.Start()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: false,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("xpump_engine")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	validate := validator.New()

	subscriptionHandler := &handlers.SubscriptionHandler{DB: db, Validate: validate}
	notificationHandler := &handlers.NotificationHandler{DB: db}
	preferenceHandler := &handlers.PreferenceHandler{DB: db, Validate: validate}
	leaderboardHandler := &handlers.LeaderboardHandler{DB: db}
	healthHandler := &handlers.HealthHandler{Cfg: cfg, DB: db}

	api := app.Group("/api")
	api.Get("/health", healthHandler.Get)
	api.Post("/push/subscriptions", subscriptionHandler.Register)
	api.Delete("/push/subscriptions", subscriptionHandler.Unregister)
	api.Get("/notifications", notificationHandler.List)
	api.Post("/notifications/:id/read", notificationHandler.MarkRead)
	api.Get("/preferences", preferenceHandler.List)
	api.Put("/preferences/:category", preferenceHandler.Update)
	api.Get("/leaderboard/:groupId", leaderboardHandler.Get)

	// Websocket attach point feeding the live connection registry
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		id, err := strconv.ParseUint(c.Get("X-Member-ID"), 10, 64)
		if err != nil || id == 0 {
			return fiber.ErrUnauthorized
		}
		c.Locals("memberID", id)
		return c.Next()
	})
	app.Get("/ws", websocket.New(hub.Handler()))

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		zlog.Info("shutting down")
		sched.Stop()
		_ = app.Shutdown()
	}()

	zlog.Info("starting ranking & notification engine", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("server terminated", zap.Error(err))
	}
}
