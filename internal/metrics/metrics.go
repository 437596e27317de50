package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PackagesTotal counts installed packages by their current MainStatus kind.
	PackagesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "appmgr_packages_total",
		Help: "Total installed packages by status",
	}, []string{"status"})

	BrokenPackagesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "appmgr_broken_packages_total",
		Help: "Installed packages with an unsatisfied non-optional dependency",
	})

	// ReconciliationDuration and ReconciliationCyclesTotal time and count
	// sync-loop sweeps; the reconciler observes them around each cycle.
	ReconciliationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appmgr_reconciliation_duration_seconds",
		Help:    "Sync-loop reconciliation cycle duration",
		Buckets: prometheus.DefBuckets,
	})

	ReconciliationCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appmgr_reconciliation_cycles_total",
		Help: "Total sync-loop reconciliation cycles completed",
	})

	RuntimeAnomaliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appmgr_runtime_anomalies_total",
		Help: "Total sweeps in which a stopped container was still observed running after a stop was issued",
	})

	HealthCheckDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appmgr_health_check_duration_seconds",
		Help:    "Health-loop check cycle duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"package_id"})

	HealthChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appmgr_health_checks_total",
		Help: "Total health check runs by outcome",
	}, []string{"package_id", "check", "result"})

	HealthChecksCriticalFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appmgr_health_checks_critical_failures_total",
		Help: "Total critical health check failures that transitioned a package to Stopping",
	}, []string{"package_id", "check"})

	DependencyBreaksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appmgr_dependency_breaks_total",
		Help: "Total times a package's dependency satisfaction transitioned from satisfied to unsatisfied",
	}, []string{"package_id", "dependency_id"})

	ActionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appmgr_action_duration_seconds",
		Help:    "Time to execute a manifest action container",
		Buckets: prometheus.DefBuckets,
	}, []string{"package_id", "action"})

	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appmgr_actions_total",
		Help: "Total action invocations by outcome",
	}, []string{"package_id", "action", "result"})

	InstallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appmgr_install_duration_seconds",
		Help:    "Time from s9pk validation start to package marked Installed",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ConfigureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appmgr_configure_duration_seconds",
		Help:    "Time to run one configure() transaction, including cascaded dependents",
		Buckets: prometheus.DefBuckets,
	})

	IPPoolAllocatedTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "appmgr_ip_pool_allocated_total",
		Help: "Addresses currently leased out of the container IP pool",
	})
)

func init() {
	prometheus.MustRegister(
		PackagesTotal,
		BrokenPackagesTotal,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		RuntimeAnomaliesTotal,
		HealthCheckDuration,
		HealthChecksTotal,
		HealthChecksCriticalFailuresTotal,
		DependencyBreaksTotal,
		ActionDuration,
		ActionsTotal,
		InstallDuration,
		ConfigureDuration,
		IPPoolAllocatedTotal,
	)
}

// Handler returns the HTTP handler the daemon mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an in-flight operation for later observation into a
// histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labelValues ...string) {
	h.WithLabelValues(labelValues...).Observe(t.Duration().Seconds())
}
