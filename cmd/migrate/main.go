package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/config"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

const usage = "usage: migrate up|down|status"

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], cfg.DatabaseURL); err != nil {
		logger.Error("migrate failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(command, databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := store.NewDB(ctx, databaseURL)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer db.Close()

	switch command {
	case "up":
		return store.Migrate(ctx, db.Client)
	case "down":
		return store.MigrateDown(ctx, db.Client)
	case "status":
		return store.MigrationStatus(ctx, db.Client)
	}
	return fmt.Errorf("unknown command %q: %s", command, usage)
}
