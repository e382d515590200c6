// Package metrics provides Prometheus metrics for domainsync.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "domainsync"

var (
	// BuildInfo exposes version and Go version as labels on a constant 1.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "go_version"})

	// ReconciliationsTotal counts reconciliation passes by status.
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "reconciliations_total",
		Help:      "Total reconciliation passes by status (success, partial, error).",
	}, []string{"status"})

	ReconciliationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of a reconciliation pass for one tenant.",
		Buckets:   prometheus.DefBuckets,
	})

	// DriftUnits is the number of units per mismatch type seen in the last pass.
	DriftUnits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "drift_units",
		Help:      "Reconciliation units by mismatch type in the most recent pass.",
	}, []string{"mismatch_type"})

	RemediationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "remediations_total",
		Help:      "Remediation actions by action and status (success, failed, converged).",
	}, []string{"action", "status"})

	RemediationRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "remediation_retries_total",
		Help:      "Provider call retries performed by the remediation executor.",
	}, []string{"action"})

	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "validations_total",
		Help:      "Validation reports by overall status.",
	}, []string{"status"})

	ProviderAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "provider_api_requests_total",
		Help:      "Provider API calls by provider, operation and status.",
	}, []string{"provider", "operation", "status"})

	ProviderAPIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "provider_api_duration_seconds",
		Help:      "Provider API call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	// ProviderHealthy is 1 when the last ping of a provider succeeded.
	ProviderHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "provider_healthy",
		Help:      "Provider health from the last readiness check (1 healthy, 0 unhealthy).",
	}, []string{"provider"})

	SchedulerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "scheduler_runs_total",
		Help:      "Scheduled and manual runs by trigger and result (success, error, skipped, rate_limited).",
	}, []string{"trigger", "result"})
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// ObserveProviderCall records one provider API call.
func ObserveProviderCall(provider, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ProviderAPIRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	ProviderAPIDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// SetProviderHealth records the outcome of a provider ping.
func SetProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	ProviderHealthy.WithLabelValues(provider).Set(v)
}
