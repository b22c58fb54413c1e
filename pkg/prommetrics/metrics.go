package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegistryNamespace is the namespace for all keeper registry metrics
const RegistryNamespace = "keeper_registry"

const (
	OutcomeSuccess       = "success"
	OutcomeTargetFailure = "target_failure"
	OutcomeRejected      = "rejected"

	FeedGas  = "gas"
	FeedLink = "link"

	RegistrationAutoApproved = "auto_approved"
	RegistrationPending      = "pending"
	RegistrationApproved     = "approved"
	RegistrationCancelled    = "cancelled"
)

// Registry metrics
var (
	RegistryPerforms = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "performs_total",
		Help:      "Count of perform attempts by outcome",
	}, []string{"outcome"})
	RegistryPaymentJuels = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "payment_juels_total",
		Help:      "Total amount of juels paid to keepers",
	})
	RegistryInsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "insufficient_funds_total",
		Help:      "Count of checks and performs rejected because the upkeep could not cover the max payment",
	})
	RegistryStaleFeed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "stale_feed_total",
		Help:      "Count of feed readings replaced by the configured fallback",
	}, []string{"feed"})
	RegistryActiveUpkeeps = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: RegistryNamespace,
		Name:      "active_upkeeps",
		Help:      "How many upkeeps are registered and not cancelled",
	})
	RegistryRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "registrations_total",
		Help:      "Count of registration requests by approval outcome",
	}, []string{"outcome"})
)
