package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Campaign emails handed to the provider",
		},
		[]string{"status"}, // sent, failed
	)

	SendPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "send_pass_duration_seconds",
			Help:    "Duration of one campaign send pass",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7m
		},
		[]string{"outcome"}, // sent, paused, interrupted, failed
	)

	EventsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_events_tracked_total",
			Help: "Engagement events recorded, by type and whether it was the first of its kind",
		},
		[]string{"type", "first"},
	)

	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Inbound webhooks by provider and result",
		},
		[]string{"provider", "result"}, // applied, duplicate, rejected, error
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementEmailsSent(status string, n int) {
	if n > 0 {
		EmailsSent.WithLabelValues(status).Add(float64(n))
	}
}

func RecordSendPass(outcome string, duration time.Duration) {
	SendPassDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func IncrementEventsTracked(eventType string, first bool) {
	label := "false"
	if first {
		label = "true"
	}
	EventsTracked.WithLabelValues(eventType, label).Inc()
}

func IncrementWebhooks(provider, result string) {
	WebhooksReceived.WithLabelValues(provider, result).Inc()
}
