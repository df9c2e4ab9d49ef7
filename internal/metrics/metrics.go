package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReportRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gramtrack_report_runs_total",
		Help: "Total daily report runs",
	})
	ReportErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gramtrack_report_errors_total",
		Help: "Total daily report run errors",
	})
	ReportSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gramtrack_report_skips_total",
		Help: "Runs that returned an already generated report",
	})
	ReportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gramtrack_report_duration_seconds",
		Help:    "Daily report run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	ProfileCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gramtrack_profile_cache_total",
		Help: "Profile cache lookups by outcome",
	}, []string{"outcome"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gramtrack_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gramtrack_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(ReportRuns, ReportErrors, ReportSkips, ReportDuration,
		ProfileCacheHits, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveReportDuration records a run duration.
func ObserveReportDuration(start time.Time) {
	ReportDuration.Observe(time.Since(start).Seconds())
}

// IncProfileCache counts a cache lookup outcome ("hit" or "miss").
func IncProfileCache(outcome string) { ProfileCacheHits.WithLabelValues(outcome).Inc() }

// IncCommandRun counts a CLI command invocation.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError counts a CLI command failure.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
