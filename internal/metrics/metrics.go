// Package metrics holds the Prometheus collectors for the gateway.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventsub_gw"

// Metrics holds all Prometheus metrics for the gateway. A nil *Metrics is
// valid and records nothing, so components can be built without a registry.
type Metrics struct {
	DeliveriesTotal       *prometheus.CounterVec
	DispatchTotal         *prometheus.CounterVec
	DispatchDuration      *prometheus.HistogramVec
	DownstreamRequests    *prometheus.CounterVec
	LedgerClaims          *prometheus.CounterVec
	RegistrationsTotal    *prometheus.CounterVec
	RegistrationRateLimit prometheus.Counter
}

// New creates the gateway metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Total number of EventSub deliveries by message type and response status.",
		}, []string{"message_type", "status"}),
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Total number of dispatched notifications by subscription type and result.",
		}, []string{"subscription_type", "result"}), // result: dispatched, dropped, not_found, unavailable
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Duration of notification dispatch including downstream calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"subscription_type"}),
		DownstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downstream",
			Name:      "requests_total",
			Help:      "Total number of outbound requests by target and status code.",
		}, []string{"target", "code"}),
		LedgerClaims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "claims_total",
			Help:      "Total number of delivery ledger claims by outcome.",
		}, []string{"outcome"}),
		RegistrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "helix",
			Name:      "registrations_total",
			Help:      "Total number of EventSub subscription registrations by result.",
		}, []string{"result"}),
		RegistrationRateLimit: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "registration_rate_limited_total",
			Help:      "Total number of registration requests rejected by the rate limiter.",
		}),
	}
}

func (m *Metrics) Delivery(messageType string, status int) {
	if m == nil {
		return
	}
	if messageType == "" {
		messageType = "none"
	}
	m.DeliveriesTotal.WithLabelValues(messageType, strconv.Itoa(status)).Inc()
}

func (m *Metrics) Dispatch(subscriptionType, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(subscriptionType, result).Inc()
	m.DispatchDuration.WithLabelValues(subscriptionType).Observe(d.Seconds())
}

// Downstream records an outbound call. code 0 means the request never got a response.
func (m *Metrics) Downstream(target string, code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.DownstreamRequests.WithLabelValues(target, label).Inc()
}

func (m *Metrics) LedgerClaim(outcome string) {
	if m == nil {
		return
	}
	m.LedgerClaims.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registration(result string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RegistrationRateLimit.Inc()
}
