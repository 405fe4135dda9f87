package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/perptrader/internal/config"
)

// Breaker settings per dependency. The exchange trips faster than the
// database but also recovers more cautiously.
const (
	exchangeMinRequests   = 5
	exchangeFailureRatio  = 0.6
	exchangeOpenTimeout   = 30 * time.Second
	exchangeHalfOpenReqs  = 3
	exchangeCountInterval = 10 * time.Second

	dbMinRequests   = 10
	dbFailureRatio  = 0.6
	dbOpenTimeout   = 15 * time.Second
	dbHalfOpenReqs  = 5
	dbCountInterval = 10 * time.Second
)

// BreakerManager wraps the exchange and database circuit breakers and
// exports their state as Prometheus metrics.
type BreakerManager struct {
	exchange *gobreaker.CircuitBreaker
	database *gobreaker.CircuitBreaker
	metrics  *breakerMetrics
}

type breakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

var (
	globalBreakerMetrics *breakerMetrics
	breakerMetricsOnce   sync.Once
)

func initBreakerMetrics() *breakerMetrics {
	breakerMetricsOnce.Do(func() {
		globalBreakerMetrics = &breakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "perptrader_circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"dependency"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "perptrader_circuit_breaker_requests_total",
					Help: "Requests through the circuit breaker by result",
				},
				[]string{"dependency", "result"},
			),
		}
	})
	return globalBreakerMetrics
}

// NewBreakerManager creates the breakers with default thresholds.
func NewBreakerManager() *BreakerManager {
	m := &BreakerManager{metrics: initBreakerMetrics()}
	logger := config.NewLogger("risk.breaker")

	onChange := func(name string, from, to gobreaker.State) {
		m.metrics.state.WithLabelValues(name).Set(stateGauge(to))
		logger.Warn().
			Str("dependency", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	}

	m.exchange = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: exchangeHalfOpenReqs,
		Interval:    exchangeCountInterval,
		Timeout:     exchangeOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= exchangeMinRequests && ratio >= exchangeFailureRatio
		},
		OnStateChange: onChange,
	})

	m.database = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database",
		MaxRequests: dbHalfOpenReqs,
		Interval:    dbCountInterval,
		Timeout:     dbOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= dbMinRequests && ratio >= dbFailureRatio
		},
		OnStateChange: onChange,
	})

	m.metrics.state.WithLabelValues("exchange").Set(stateGauge(m.exchange.State()))
	m.metrics.state.WithLabelValues("database").Set(stateGauge(m.database.State()))
	return m
}

// Exchange returns the exchange-facing breaker.
func (m *BreakerManager) Exchange() *gobreaker.CircuitBreaker { return m.exchange }

// Database returns the database-facing breaker.
func (m *BreakerManager) Database() *gobreaker.CircuitBreaker { return m.database }

// Record counts one request result for the dependency.
func (m *BreakerManager) Record(dependency string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.metrics.requests.WithLabelValues(dependency, result).Inc()
}

func stateGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	}
	return 0
}
