package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ACCESS_TTL", "1h")
	t.Setenv("RATE_LIMIT_PER_MIN", "oops")
	t.Setenv("MIGRATE_ON_START", "true")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://portal.campus.edu, ,http://localhost:3000")

	cfg := Load()
	if cfg.StoreBackend != "memory" {
		t.Fatalf("store backend %q", cfg.StoreBackend)
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("access ttl %s", cfg.AccessTTL)
	}
	if cfg.RateLimitPerMin != 120 {
		t.Fatalf("bad int should fall back, got %d", cfg.RateLimitPerMin)
	}
	if !cfg.MigrateOnStart {
		t.Fatal("migrate on start should be set")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://localhost:3000" {
		t.Fatalf("cors origins %v", cfg.CORSOrigins)
	}
	if cfg.Cloudinary.Enabled() {
		t.Fatal("uploads should be disabled without credentials")
	}
}

func TestValidate(t *testing.T) {
	base := App{
		Env: "dev", StoreBackend: "postgres", QueueBackend: "redis", RateLimitStore: "memory",
		JWTSigningKey: devSigningKey, RateLimitPerMin: 10, AccessTTL: time.Hour, APIKeyTTL: time.Hour, CampusTZ: "UTC",
	}
	tests := []struct {
		name   string
		mutate func(*App)
		want   string
	}{
		{name: "valid dev", mutate: func(*App) {}},
		{name: "dev key in production", mutate: func(a *App) { a.Env = "production" }, want: "JWT_SIGNING_KEY must be set"},
		{name: "unknown store", mutate: func(a *App) { a.StoreBackend = "mongo" }, want: "STORE_BACKEND"},
		{name: "unknown queue", mutate: func(a *App) { a.QueueBackend = "kafka" }, want: "QUEUE_BACKEND"},
		{name: "bad zone", mutate: func(a *App) { a.CampusTZ = "Mars/Olympus" }, want: "CAMPUS_TZ"},
		{name: "memory store with redis queue", mutate: func(a *App) { a.StoreBackend = "memory" }, want: "requires QUEUE_BACKEND=memory"},
		{name: "memory everything", mutate: func(a *App) { a.StoreBackend, a.QueueBackend = "memory", "memory" }},
		{name: "short key", mutate: func(a *App) { a.JWTSigningKey = "short" }, want: "16 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %v, want %q", err, tt.want)
			}
		})
	}
}
