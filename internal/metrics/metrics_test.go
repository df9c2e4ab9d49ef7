package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	ReportRuns.Inc()
	ReportErrors.Inc()
	ReportSkips.Inc()
	IncProfileCache("hit")
	IncCommandRun("report")
	ObserveReportDuration(time.Now().Add(-1500 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"gramtrack_report_runs_total",
		"gramtrack_report_errors_total",
		"gramtrack_report_skips_total",
		"gramtrack_report_duration_seconds",
		"gramtrack_profile_cache_total",
		"gramtrack_command_runs_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
