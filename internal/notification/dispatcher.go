package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/metrics"
	"github.com/phasehumans/campus-portal-api/internal/queue"
)

// MessageType tags notification messages on the queue.
const MessageType = "notify"

// Dispatcher publishes notifications to the queue for the worker to deliver.
type Dispatcher struct {
	q       queue.Queue
	logger  *slog.Logger
	timeout time.Duration
}

// NewDispatcher creates a queue-backed Notifier.
func NewDispatcher(q queue.Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{q: q, logger: logger, timeout: 2 * time.Second}
}

// Notify enqueues d. Failures are logged and counted, never returned.
func (d *Dispatcher) Notify(ctx context.Context, dispatch Dispatch) {
	log := logging.Service(ctx, d.logger, "notification", "dispatch",
		"type", dispatch.Type, "recipients", len(dispatch.RecipientIDs), "roles", dispatch.Roles)
	if len(dispatch.RecipientIDs) == 0 && len(dispatch.Roles) == 0 {
		return
	}
	body, err := json.Marshal(dispatch)
	if err != nil {
		metrics.Notifications.WithLabelValues(metrics.OutcomePublishFailed).Inc()
		log.Error("encode notification failed", "error", err)
		return
	}

	// The request may finish before the publish does.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.q.Publish(pubCtx, queue.Message{Type: MessageType, Body: body}); err != nil {
		metrics.Notifications.WithLabelValues(metrics.OutcomePublishFailed).Inc()
		log.Error("publish notification failed", "error", err, "resource", dispatch.Resource)
		return
	}
	metrics.Notifications.WithLabelValues(metrics.OutcomeQueued).Inc()
}
