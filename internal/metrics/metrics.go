// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts counts register/login outcomes.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_auth_attempts_total",
			Help: "Total register and login attempts by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// GuardRejections counts requests the access guard turned away.
	GuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_guard_rejections_total",
			Help: "Total requests rejected by the access guard",
		},
		[]string{"reason"}, // missing, malformed, signature, expired, revoked, unavailable, forbidden
	)

	ReviewMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_review_mutations_total",
			Help: "Total review add/update/delete operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordAuthAttempt increments AuthAttempts.
func RecordAuthAttempt(operation, outcome string) {
	AuthAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordGuardRejection increments GuardRejections.
func RecordGuardRejection(reason string) {
	GuardRejections.WithLabelValues(reason).Inc()
}

// RecordReviewMutation increments ReviewMutations.
func RecordReviewMutation(operation, outcome string) {
	ReviewMutations.WithLabelValues(operation, outcome).Inc()
}

// RecordHTTPRequest observes one request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// PoolStater is satisfied by *store.Store.
type PoolStater interface {
	Stats() *pgxpool.Stat
}

// RegisterPoolStats exports connection pool gauges read from st at scrape time.
func RegisterPoolStats(reg prometheus.Registerer, st PoolStater) error {
	gauge := func(name, help string, read func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			stat := st.Stats()
			if stat == nil {
				return 0
			}
			return read(stat)
		})
	}
	collectors := []prometheus.Collector{
		gauge("catalog_db_pool_acquired_conns", "Connections currently acquired from the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("catalog_db_pool_idle_conns", "Idle connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("catalog_db_pool_total_conns", "Total connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
