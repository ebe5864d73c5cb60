package observability

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultError   = "error"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Authentication metrics
	AuthAttemptsTotal       *prometheus.CounterVec
	SessionValidationsTotal *prometheus.CounterVec
	SessionRefreshesTotal   *prometheus.CounterVec
	SessionsPurgedTotal     prometheus.Counter

	// Identity provider metrics
	ProviderCallDuration *prometheus.HistogramVec
	ProviderErrorsTotal  *prometheus.CounterVec

	// Membership metrics
	MembershipOperationsTotal *prometheus.CounterVec

	// Cache metrics
	SessionCacheTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_auth_attempts_total",
				Help: "Total number of password authentication attempts",
			},
			[]string{"result"},
		),
		SessionValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_session_validations_total",
				Help: "Total number of session validations",
			},
			[]string{"result"},
		),
		SessionRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_session_refreshes_total",
				Help: "Total number of session token refreshes",
			},
			[]string{"result"},
		),
		SessionsPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_sessions_purged_total",
				Help: "Total number of ended sessions deleted by the purge job",
			},
		),

		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_provider_call_duration_seconds",
				Help:    "Identity provider call duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "operation"},
		),
		ProviderErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_provider_errors_total",
				Help: "Total number of failed identity provider calls",
			},
			[]string{"provider", "operation", "kind"},
		),

		MembershipOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_membership_operations_total",
				Help: "Total number of membership operations",
			},
			[]string{"operation", "result"},
		),

		SessionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_session_cache_total",
				Help: "Session cache lookups by result",
			},
			[]string{"result"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),
	}

	registry.MustRegister(
		m.AuthAttemptsTotal,
		m.SessionValidationsTotal,
		m.SessionRefreshesTotal,
		m.SessionsPurgedTotal,
		m.ProviderCallDuration,
		m.ProviderErrorsTotal,
		m.MembershipOperationsTotal,
		m.SessionCacheTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
	)

	return m
}

// resultOf maps an error to a result label
func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case apperr.Family(apperr.KindOf(err)) == apperr.FamilyMembership,
		apperr.IsKind(err, apperr.KindOrganizationAccessDenied),
		apperr.IsKind(err, apperr.KindPermissionDenied):
		return ResultDenied
	default:
		return ResultFailure
	}
}

// RecordAuthAttempt counts a password login
func (m *Metrics) RecordAuthAttempt(err error) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(resultOf(err)).Inc()
}

// RecordSessionValidation counts a session validation
func (m *Metrics) RecordSessionValidation(err error) {
	if m == nil {
		return
	}
	m.SessionValidationsTotal.WithLabelValues(resultOf(err)).Inc()
}

// RecordSessionRefresh counts a token refresh
func (m *Metrics) RecordSessionRefresh(err error) {
	if m == nil {
		return
	}
	m.SessionRefreshesTotal.WithLabelValues(resultOf(err)).Inc()
}

// RecordSessionsPurged adds n deleted sessions
func (m *Metrics) RecordSessionsPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsPurgedTotal.Add(float64(n))
}

// RecordMembershipOperation counts a membership engine operation
func (m *Metrics) RecordMembershipOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.MembershipOperationsTotal.WithLabelValues(operation, resultOf(err)).Inc()
}

// RecordCacheResult counts a session cache lookup (hit, miss or error)
func (m *Metrics) RecordCacheResult(result string) {
	if m == nil {
		return
	}
	m.SessionCacheTotal.WithLabelValues(result).Inc()
}

// ObserveProviderCall records the duration and outcome of an identity provider call
func (m *Metrics) ObserveProviderCall(provider, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProviderCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
	if err != nil {
		kind := string(apperr.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		m.ProviderErrorsTotal.WithLabelValues(provider, operation, kind).Inc()
	}
}

// RecordDBStats copies connection pool statistics into the database gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// RegisterMetricsEndpoint serves registry on GET /metrics
func RegisterMetricsEndpoint(r *mux.Router, registry *prometheus.Registry) {
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
