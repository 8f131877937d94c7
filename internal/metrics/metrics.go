// Package metrics exposes the Prometheus collectors the dual-grid bot
// updates during operation (§13.2):
//
//	dualgrid_tick_duration_seconds{executor}        — histogram
//	dualgrid_orders_placed_total{executor,kind}     — counter (kind: open|close)
//	dualgrid_orders_filled_total{executor,kind}     — counter
//	dualgrid_orders_cancelled_total{executor,kind}  — counter
//	dualgrid_retry_count{executor}                  — gauge
//	dualgrid_executor_state{executor,state}         — gauge, 1 for the current state
//	dualgrid_supervisor_heartbeat_age_seconds        — gauge
//
// These are registered in init() and served at /metrics by cmd/run's
// promhttp handler, grounded on chidi150c-coinbase/metrics.go's package-level
// CounterVec/GaugeVec registration idiom.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dualgrid_tick_duration_seconds",
			Help:    "Duration of one executor control-loop tick.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"executor"},
	)

	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualgrid_orders_placed_total",
			Help: "Orders placed, by executor and kind (open|close).",
		},
		[]string{"executor", "kind"},
	)

	ordersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualgrid_orders_filled_total",
			Help: "Orders observed fully filled, by executor and kind.",
		},
		[]string{"executor", "kind"},
	)

	ordersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualgrid_orders_cancelled_total",
			Help: "Cancel requests issued, by executor and kind.",
		},
		[]string{"executor", "kind"},
	)

	retryCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dualgrid_retry_count",
			Help: "Consecutive tick failures for an executor.",
		},
		[]string{"executor"},
	)

	executorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dualgrid_executor_state",
			Help: "1 for the executor's current lifecycle state, 0 otherwise.",
		},
		[]string{"executor", "state"},
	)

	supervisorHeartbeatAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dualgrid_supervisor_heartbeat_age_seconds",
			Help: "Seconds since the supervisor's last successful liveness check.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		tickDuration,
		ordersPlaced,
		ordersFilled,
		ordersCancelled,
		retryCount,
		executorState,
		supervisorHeartbeatAge,
	)
}

// ObserveTick records how long one control-loop tick took.
func ObserveTick(executor string, seconds float64) {
	tickDuration.WithLabelValues(executor).Observe(seconds)
}

// IncOrdersPlaced counts a successful place, kind is "open" or "close".
func IncOrdersPlaced(executor, kind string) { ordersPlaced.WithLabelValues(executor, kind).Inc() }

// IncOrdersFilled counts an order observed to have reached IsFilled.
func IncOrdersFilled(executor, kind string) { ordersFilled.WithLabelValues(executor, kind).Inc() }

// IncOrdersCancelled counts a cancel request issued to the venue.
func IncOrdersCancelled(executor, kind string) { ordersCancelled.WithLabelValues(executor, kind).Inc() }

// SetRetryCount reports the executor's current consecutive-failure count.
func SetRetryCount(executor string, n int) { retryCount.WithLabelValues(executor).Set(float64(n)) }

// SetExecutorState flips the one-hot state gauge for an executor: the named
// state is set to 1, every other known state for that executor to 0.
func SetExecutorState(executor string, states []string, current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1.0
		}
		executorState.WithLabelValues(executor, s).Set(v)
	}
}

// SetSupervisorHeartbeatAge reports seconds since the supervisor's last
// successful liveness pass.
func SetSupervisorHeartbeatAge(seconds float64) { supervisorHeartbeatAge.Set(seconds) }
