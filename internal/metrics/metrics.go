package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campus_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	EnrollmentAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_enrollment_attempts_total",
		Help: "Enrollment attempts by outcome code.",
	}, []string{"outcome"})

	AuthzDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_authz_denials_total",
		Help: "Authorization denials by resource and action.",
	}, []string{"resource", "action"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_notifications_total",
		Help: "Notification dispatch and delivery outcomes.",
	}, []string{"outcome"})
)

// Notification outcomes.
const (
	OutcomeQueued         = "queued"
	OutcomePublishFailed  = "publish_failed"
	OutcomeDelivered      = "delivered"
	OutcomeDeliveryFailed = "delivery_failed"
)
