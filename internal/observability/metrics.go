package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tix_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tix_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tix_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RabbitPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_rabbit_publish_failures_total",
			Help: "Total rabbit publish failures",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	Reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tix_reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	TicketTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tix_ticket_transitions_total",
			Help: "Applied ticket status transitions",
		},
		[]string{"from", "to"},
	)

	CheckIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tix_checkins_total",
			Help: "Gate scans by result",
		},
		[]string{"result"},
	)

	ExpiredReservations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_expired_reservations_total",
			Help: "Reservations settled by the expiry sweep",
		},
	)

	NotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_notify_failures_total",
			Help: "Domain event deliveries that failed",
		},
	)
)
