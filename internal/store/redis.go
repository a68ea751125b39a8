package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the connection shared by the notification queue
// and the rate limiter.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// ConsumerWait is how long the notification consumer blocks in BRPOP.
	// Socket reads must outlast it or every idle poll fails with a timeout.
	ConsumerWait time.Duration
}

func (o RedisOptions) client() *redis.Options {
	read := time.Second
	if o.ConsumerWait > 0 {
		read += o.ConsumerWait
	}
	return &redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  read,
		WriteTimeout: time.Second,
	}
}

// Redis wraps the go-redis client with the address it was built for.
type Redis struct {
	Client *redis.Client
	addr   string
}

// NewRedis builds a client. It does not dial until first use.
func NewRedis(o RedisOptions) *Redis {
	return &Redis{Client: redis.NewClient(o.client()), addr: o.Addr}
}

// Ping reports why redis is unreachable, if it is.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("redis: not configured")
	}
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", r.addr, err)
	}
	return nil
}

// Healthy is Ping shaped for the /health checks.
func (r *Redis) Healthy(ctx context.Context) bool {
	return r.Ping(ctx) == nil
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
