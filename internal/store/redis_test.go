package store

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRedisOptionsReadOutlastsConsumerWait(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		wait time.Duration
		want time.Duration
	}{
		{name: "no consumer", want: time.Second},
		{name: "queue default", wait: 5 * time.Second, want: 6 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := RedisOptions{Addr: "cache:6379", Password: "pw", DB: 2, ConsumerWait: tt.wait}.client()
			if o.ReadTimeout != tt.want {
				t.Fatalf("ReadTimeout = %v, want %v", o.ReadTimeout, tt.want)
			}
			if o.Addr != "cache:6379" || o.Password != "pw" || o.DB != 2 {
				t.Fatalf("options = %+v", o)
			}
		})
	}
}

func TestRedisPingUnreachable(t *testing.T) {
	t.Parallel()
	r := NewRedis(RedisOptions{Addr: "127.0.0.1:1"})
	defer r.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := r.Ping(ctx)
	if err == nil || !strings.Contains(err.Error(), "127.0.0.1:1") {
		t.Fatalf("Ping = %v, want error naming the address", err)
	}
	if r.Healthy(ctx) {
		t.Fatal("unreachable redis reported healthy")
	}
}

func TestRedisNilIsUnhealthy(t *testing.T) {
	t.Parallel()
	var r *Redis
	if r.Healthy(context.Background()) {
		t.Fatal("nil redis reported healthy")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
}
