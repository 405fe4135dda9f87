package trader

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// traderMetrics exposes scheduler health through the /metrics endpoint.
type traderMetrics struct {
	tickDuration  prometheus.Histogram
	ticksTotal    *prometheus.CounterVec
	openPositions prometheus.Gauge
	ordersPlaced  *prometheus.CounterVec
}

var (
	globalTraderMetrics *traderMetrics
	traderMetricsOnce   sync.Once
)

func initTraderMetrics() *traderMetrics {
	traderMetricsOnce.Do(func() {
		globalTraderMetrics = &traderMetrics{
			tickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "perptrader_tick_duration_seconds",
				Help:    "Wall time of one trading tick",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			}),
			ticksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "perptrader_ticks_total",
					Help: "Trading ticks by result",
				},
				[]string{"result"},
			),
			openPositions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "perptrader_open_positions",
				Help: "Open positions tracked by the store",
			}),
			ordersPlaced: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "perptrader_orders_placed_total",
					Help: "Entry orders placed by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
	return globalTraderMetrics
}
