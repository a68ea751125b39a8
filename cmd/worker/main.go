package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/phasehumans/campus-portal-api/internal/app"
	"github.com/phasehumans/campus-portal-api/internal/config"
	"github.com/phasehumans/campus-portal-api/internal/enrollment"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/notification"
	"github.com/phasehumans/campus-portal-api/internal/queue"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

// Worker delivers queued notifications and keeps enrollment attendance percentages current.
func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.StoreBackend != "postgres" || cfg.QueueBackend != "redis" {
		logger.Error("worker needs STORE_BACKEND=postgres and QUEUE_BACKEND=redis; memory setups run the worker inside the api")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = db.Close()
		logger.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := store.NewRedis(store.RedisOptions{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, ConsumerWait: queue.DefaultWait,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis not reachable yet, consumer will keep retrying", "error", err)
	}

	stores := app.Postgres(db.Client)
	enrollments := enrollment.NewService(stores.Enrollments, nil, time.Now, logger)

	scheduler := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := scheduler.AddFunc(cfg.AttendanceSync, func() {
		jobCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if _, err := enrollments.SyncAttendance(jobCtx); err != nil {
			logger.Error("attendance sync failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid ATTENDANCE_SYNC_SPEC", "spec", cfg.AttendanceSync, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("attendance sync scheduled", "spec", cfg.AttendanceSync)

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	worker := notification.NewWorker(stores.Delivery, time.Now, logger)
	if err := worker.Run(ctx, q); err != nil {
		logger.Error("notification worker failed", "error", err)
	}

	<-scheduler.Stop().Done()
	logger.Info("worker exited")
}
