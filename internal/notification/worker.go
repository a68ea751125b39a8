package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/metrics"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/queue"
)

// DeliveryStore resolves audiences and writes inbox entries.
type DeliveryStore interface {
	UserIDsByRoles(ctx context.Context, roles []model.Role) ([]string, error)
	CreateNotifications(ctx context.Context, ns []model.Notification) error
}

// Worker turns queued dispatches into inbox entries.
type Worker struct {
	store    DeliveryStore
	logger   *slog.Logger
	now      func() time.Time
	attempts uint64
	base     time.Duration
}

// NewWorker creates a worker that tries each delivery three times with exponential backoff.
func NewWorker(store DeliveryStore, now func() time.Time, logger *slog.Logger) *Worker {
	if now == nil {
		now = time.Now
	}
	return &Worker{store: store, logger: logger, now: now, attempts: 3, base: 200 * time.Millisecond}
}

// Run consumes q until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("notification: consume: %w", err)
	}
	log := logging.Service(ctx, w.logger, "notification", "worker")
	log.Info("notification worker started")
	for msg := range messages {
		if msg.Type != MessageType {
			log.Warn("skipping unknown message", "message_type", msg.Type)
			continue
		}
		if err := w.Handle(ctx, msg.Body); err != nil && ctx.Err() == nil {
			log.Error("notification delivery failed", "error", err)
		}
	}
	log.Info("notification worker stopped")
	return nil
}

// Handle delivers one encoded Dispatch.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var d Dispatch
	if err := json.Unmarshal(body, &d); err != nil {
		metrics.Notifications.WithLabelValues(metrics.OutcomeDeliveryFailed).Inc()
		return fmt.Errorf("notification: decode: %w", err)
	}
	return w.Deliver(ctx, d)
}

// Deliver resolves the audience of d and inserts one notification per recipient.
func (w *Worker) Deliver(ctx context.Context, d Dispatch) error {
	log := logging.Service(ctx, w.logger, "notification", "deliver", "type", d.Type, "resource", d.Resource)

	backoff := retry.WithMaxRetries(w.attempts-1, retry.NewExponential(w.base))
	var delivered int
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		recipients, err := w.recipients(ctx, d)
		if err != nil {
			return retry.RetryableError(err)
		}
		if len(recipients) == 0 {
			return nil
		}
		now := w.now().UTC()
		batch := make([]model.Notification, 0, len(recipients))
		for _, id := range recipients {
			batch = append(batch, model.Notification{
				ID:              uuid.NewString(),
				RecipientID:     id,
				Title:           d.Title,
				Message:         d.Message,
				Type:            d.Type,
				RelatedResource: d.Resource,
				CreatedAt:       now,
			})
		}
		if err := w.store.CreateNotifications(ctx, batch); err != nil {
			log.Warn("notification insert failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		delivered = len(batch)
		return nil
	})
	if err != nil {
		metrics.Notifications.WithLabelValues(metrics.OutcomeDeliveryFailed).Inc()
		log.Error("notification dropped after retries",
			"error", err, "recipient_ids", d.RecipientIDs, "roles", d.Roles)
		return err
	}
	metrics.Notifications.WithLabelValues(metrics.OutcomeDelivered).Add(float64(delivered))
	log.Debug("notifications delivered", "count", delivered)
	return nil
}

func (w *Worker) recipients(ctx context.Context, d Dispatch) ([]string, error) {
	ids := append([]string(nil), d.RecipientIDs...)
	if len(d.Roles) > 0 {
		byRole, err := w.store.UserIDsByRoles(ctx, d.Roles)
		if err != nil {
			return nil, err
		}
		ids = append(ids, byRole...)
	}
	skip := make(map[string]bool, len(d.ExcludeIDs)+len(ids))
	for _, id := range d.ExcludeIDs {
		skip[id] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || skip[id] {
			continue
		}
		skip[id] = true
		out = append(out, id)
	}
	return out, nil
}

// Inline delivers dispatches synchronously in the caller's process. It is meant for
// tests and single-binary setups without a queue consumer.
type Inline struct {
	Worker *Worker
}

// Notify implements Notifier.
func (i Inline) Notify(ctx context.Context, d Dispatch) {
	_ = i.Worker.Deliver(context.WithoutCancel(ctx), d)
}
