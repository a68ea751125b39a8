package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

func init() { gin.SetMode(gin.TestMode) }

func TestTokenBucketRefill(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(context.Background(), "k"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	if ok, _ := l.Allow(context.Background(), "k"); ok {
		t.Fatal("third request should be limited")
	}
	if ok, _ := l.Allow(context.Background(), "other"); !ok {
		t.Fatal("keys are independent")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := l.Allow(context.Background(), "k"); !ok {
		t.Fatal("tokens should refill after two seconds")
	}
}

type stubLimiter struct {
	ok   bool
	err  error
	keys []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.ok, s.err
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		limiter   *stubLimiter
		principal *model.Principal
		status    int
		key       string
	}{
		{name: "allowed anonymous", limiter: &stubLimiter{ok: true}, status: http.StatusOK, key: "ip:192.0.2.1"},
		{name: "limited", limiter: &stubLimiter{ok: false}, status: http.StatusTooManyRequests, key: "ip:192.0.2.1"},
		{name: "limiter down", limiter: &stubLimiter{err: errors.New("redis down")}, status: http.StatusOK, key: "ip:192.0.2.1"},
		{name: "keyed by user", limiter: &stubLimiter{ok: true}, principal: &model.Principal{UserID: "u1"}, status: http.StatusOK, key: "user:u1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(RateLimit(tt.limiter, func(*gin.Context) *model.Principal { return tt.principal }))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status %d, want %d", w.Code, tt.status)
			}
			if len(tt.limiter.keys) != 1 || tt.limiter.keys[0] != tt.key {
				t.Fatalf("keys %v, want %s", tt.limiter.keys, tt.key)
			}
		})
	}
}

func TestRequestLoggerSetsID(t *testing.T) {
	t.Parallel()
	r := gin.New()
	r.Use(RequestLogger(logging.Discard()), Timeout(time.Second))
	r.GET("/x", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); !ok {
			t.Error("expected a deadline")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatal("missing request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("request id %q", got)
	}
}
