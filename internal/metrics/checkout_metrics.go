package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result для checkout_commits_total.
const (
	ResultCommitted    = "committed"
	ResultValidation   = "validation"
	ResultInsufficient = "insufficient_stock"
	ResultPersistence  = "persistence"
)

// CheckoutMetrics содержит метрики коммита заказов.
type CheckoutMetrics struct {
	commits         *prometheus.CounterVec
	conflictRetries prometheus.Counter
	commitDuration  prometheus.Histogram
	cleanupFailures prometheus.Counter
	commitsInFlight prometheus.Gauge
	reserveOutcomes *prometheus.CounterVec
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		commits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_commits_total",
			Help: "Total number of order commits grouped by result",
		}, []string{"result"}),
		conflictRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_conflict_retries_total",
			Help: "Total number of optimistic concurrency conflicts retried",
		}),
		commitDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_commit_duration_seconds",
			Help:    "Duration of order commits in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		cleanupFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_cart_cleanup_failures_total",
			Help: "Total number of committed orders whose cart cleanup failed",
		}),
		commitsInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_commits_in_flight",
			Help: "Number of order commits currently running",
		}),
		reserveOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_reserve_outcomes_total",
			Help: "Stock reservation attempts grouped by outcome",
		}, []string{"outcome"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(registerer, opts.Name, prometheus.NewHistogram(opts))
}

func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// CommitStarted отмечает начало коммита и возвращает функцию завершения,
// которая пишет длительность и результат.
func (m *CheckoutMetrics) CommitStarted() func(result string) {
	if m == nil {
		return func(string) {}
	}
	started := time.Now()
	m.commitsInFlight.Inc()
	return func(result string) {
		m.commitsInFlight.Dec()
		m.commitDuration.Observe(time.Since(started).Seconds())
		m.commits.WithLabelValues(result).Inc()
	}
}

// RecordConflictRetry увеличивает счётчик повторов после конфликта.
func (m *CheckoutMetrics) RecordConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

// RecordReserveOutcome учитывает результат одной попытки списания.
func (m *CheckoutMetrics) RecordReserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reserveOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCartCleanupFailure учитывает заказ, корзина которого не очищена.
func (m *CheckoutMetrics) RecordCartCleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
