package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	ServiceName string
	Environment string
}

type ReconcileMetrics struct {
	sweepDuration   prometheus.Histogram
	sweepItems      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	gatewayFailures *prometheus.CounterVec
	activations     *prometheus.CounterVec
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// NewForRegistry builds an unshared instance, mostly for tests.
func NewForRegistry(registerer prometheus.Registerer) *ReconcileMetrics {
	return newReconcileMetrics(registerer, Config{})
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "passpay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "passpay_reconcile_sweep_duration_seconds",
		Help:        "Wall time of one reconciliation sweep.",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	sweepItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "passpay_reconcile_items_total",
		Help:        "Outstanding transactions visited by sweeps.",
		ConstLabels: constLabels,
	}, []string{"operator", "result"}) // changed | unchanged | skipped | error
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "passpay_transaction_transitions_total",
		Help:        "Applied transaction state transitions.",
		ConstLabels: constLabels,
	}, []string{"operator", "to", "source"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "passpay_timeout_fallback_promotions_total",
		Help:        "Transactions promoted to successful by the timeout fallback.",
		ConstLabels: constLabels,
	}, []string{"operator"})
	gatewayFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "passpay_gateway_failures_total",
		Help:        "Gateway calls that ended in a failure.",
		ConstLabels: constLabels,
	}, []string{"operator", "operation", "transient"})
	activations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "passpay_activations_total",
		Help:        "Activation pipeline outcomes.",
		ConstLabels: constLabels,
	}, []string{"result"}) // issued | existing | skipped | flagged

	registerer.MustRegister(sweepDuration, sweepItems, transitions, fallbacks, gatewayFailures, activations)

	return &ReconcileMetrics{
		sweepDuration:   sweepDuration,
		sweepItems:      sweepItems,
		transitions:     transitions,
		fallbacks:       fallbacks,
		gatewayFailures: gatewayFailures,
		activations:     activations,
	}
}

func (m *ReconcileMetrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *ReconcileMetrics) IncSweepItem(operator, result string) {
	if m == nil {
		return
	}
	m.sweepItems.WithLabelValues(operator, result).Inc()
}

func (m *ReconcileMetrics) IncTransition(operator, to, source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operator, to, source).Inc()
}

func (m *ReconcileMetrics) IncFallback(operator string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(operator).Inc()
}

func (m *ReconcileMetrics) IncGatewayFailure(operator, operation string, transient bool) {
	if m == nil {
		return
	}
	label := "false"
	if transient {
		label = "true"
	}
	m.gatewayFailures.WithLabelValues(operator, operation, label).Inc()
}

func (m *ReconcileMetrics) IncActivation(result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(result).Inc()
}
