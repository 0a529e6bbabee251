package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"supertrend-engine/internal/model"
)

// Metrics holds all Prometheus metrics of the signal engine.
type Metrics struct {
	TicksTotal     prometheus.Counter
	CandlesTotal   prometheus.Counter
	SignalsTotal   *prometheus.CounterVec // labels: kind
	DroppedTicks   *prometheus.CounterVec // labels: reason
	FeedReconnects prometheus.Counter

	// Per-candle processing
	CandleProcessDur    prometheus.Histogram
	InvariantViolations *prometheus.CounterVec // labels: indicator
	OpenTrades          prometheus.Gauge

	// Sinks
	SinkErrors      *prometheus.CounterVec // labels: sink
	SQLiteCommitDur prometheus.Histogram
	SnapshotsSaved  *prometheus.CounterVec // labels: store

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Market session
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetricsWith registers all metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_candles_total",
			Help: "Total tick-count candles completed",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_signals_total",
			Help: "Signals emitted (by kind)",
		}, []string{"kind"}),
		DroppedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_dropped_ticks_total",
			Help: "Ticks dropped (by reason)",
		}, []string{"reason"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_feed_reconnects_total",
			Help: "Total tick feed reconnection attempts",
		}),

		CandleProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_candle_process_duration_seconds",
			Help:    "Indicator update and signal evaluation latency per candle",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		InvariantViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_supertrend_invariant_violations_total",
			Help: "SuperTrend steps where the previous trend matched neither band",
		}, []string{"indicator"}),
		OpenTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_open_trades",
			Help: "Instruments currently in the Open Trade Set",
		}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_sink_errors_total",
			Help: "Failed deliveries to a signal or candle sink",
		}, []string{"sink"}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_sqlite_commit_duration_seconds",
			Help:    "SQLite write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_snapshots_saved_total",
			Help: "Registry checkpoints written (by store)",
		}, []string{"store"}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_fanout_drops_total",
			Help: "Items dropped by a FanOut bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sigengine_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis circuit breaker is open",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.CandlesTotal,
		m.SignalsTotal,
		m.DroppedTicks,
		m.FeedReconnects,
		m.CandleProcessDur,
		m.InvariantViolations,
		m.OpenTrades,
		m.SinkErrors,
		m.SQLiteCommitDur,
		m.SnapshotsSaved,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.MarketState,
	)

	return m
}

// ObserveCandle records one completed candle and the signals it produced.
func (m *Metrics) ObserveCandle(elapsed time.Duration, signals []model.Signal) {
	m.CandlesTotal.Inc()
	m.CandleProcessDur.Observe(elapsed.Seconds())
	for _, s := range signals {
		m.SignalsTotal.WithLabelValues(string(s.Kind)).Inc()
	}
}

// ObserveSaturation records the fill percentage of a buffered channel.
func (m *Metrics) ObserveSaturation(name string, length, capacity int) {
	if capacity == 0 {
		return
	}
	m.ChannelSaturationPct.WithLabelValues(name).Set(float64(length) / float64(capacity) * 100)
}
