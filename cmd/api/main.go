package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/app"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/config"
	"github.com/phasehumans/campus-portal-api/internal/filestore"
	"github.com/phasehumans/campus-portal-api/internal/httpapi"
	"github.com/phasehumans/campus-portal-api/internal/httpmiddleware"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/notification"
	"github.com/phasehumans/campus-portal-api/internal/queue"
	"github.com/phasehumans/campus-portal-api/internal/store"
	"github.com/phasehumans/campus-portal-api/internal/store/memory"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]httpapi.HealthCheck{}

	var stores app.Stores
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		stores = app.Memory(memory.New())
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return err
		}
		defer db.Close()
		if cfg.MigrateOnStart {
			if err := store.Migrate(ctx, db.Client); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}
		stores = app.Postgres(db.Client)
		health["db"] = db.Healthy
	}

	var redisClient *store.Redis
	if cfg.UsesRedis() {
		redisClient = store.NewRedis(store.RedisOptions{
			Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, ConsumerWait: queue.DefaultWait,
		})
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		worker := notification.NewWorker(stores.Delivery, time.Now, logger)
		go func() {
			if err := worker.Run(ctx, mem); err != nil {
				logger.Error("in-process notification worker stopped", "error", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var uploader filestore.Uploader = filestore.Disabled{}
	if cfg.Cloudinary.Enabled() {
		uploader = filestore.NewCloudinary(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		logger.Info("cloudinary uploads enabled", "cloud_name", cfg.Cloudinary.CloudName)
	} else {
		logger.Info("cloudinary not configured, file uploads disabled")
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitStore == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	services := app.Services(stores, app.Options{
		SigningKey: cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTTL,
		APIKeyTTL:  cfg.APIKeyTTL,
		Location:   cfg.Location(),
		Hasher:     auth.BcryptHasher{},
		Notifier:   notification.NewDispatcher(q, logger),
		Uploader:   uploader,
		Now:        time.Now,
		Logger:     logger,
	})

	router := httpapi.NewRouter(httpapi.Config{
		Services:       services,
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		AllowOrigins:   cfg.CORSOrigins,
		Health:         health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 20*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}
