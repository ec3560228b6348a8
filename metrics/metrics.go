package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "staybook",
		Name:      "reservations_total",
		Help:      "Reservation attempts by outcome (created, conflict, error).",
	}, []string{"outcome"})

	PaymentConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "staybook",
		Name:      "payment_confirmations_total",
		Help:      "Payment confirmation calls by outcome (confirmed, replayed, pending_approval, error).",
	}, []string{"outcome"})

	SettlementStepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "staybook",
		Name:      "settlement_step_failures_total",
		Help:      "Settlement side-effect steps that failed and need a retry.",
	}, []string{"step"})

	NotificationPushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "staybook",
		Name:      "notification_push_failures_total",
		Help:      "Real-time notification pushes that could not be delivered.",
	})

	ReservationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "staybook",
		Name:      "reservation_duration_seconds",
		Help:      "Time spent inside the reservation transaction.",
		Buckets:   prometheus.DefBuckets,
	})
)
