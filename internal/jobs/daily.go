// Package jobs wires the fetch-normalize-build-diff-save pipeline into the
// daily report entry point.
package jobs

import (
	"context"
	"fmt"
	"time"

	"gramtrack/internal/igclient"
	"gramtrack/internal/logging"
	"gramtrack/internal/metrics"
	"gramtrack/internal/model"
	"gramtrack/internal/report"
	"gramtrack/internal/snapshot"
	"gramtrack/internal/timeutil"
)

// ReportStore is the persistence the daily job needs from the report
// repository. The sqlite-backed repository satisfies it.
type ReportStore interface {
	FindLatest(ctx context.Context, before *time.Time) (*model.Report, error)
	FindByGeneratedAt(ctx context.Context, t time.Time) (*model.Report, error)
	Save(ctx context.Context, r model.Report) error
}

// Deps carries the collaborators of one run, injected at startup.
type Deps struct {
	Store  ReportStore
	Source igclient.Source
	// Loc is the zone the report day boundary is computed in; nil means local.
	Loc *time.Location
	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

// Options tune one invocation.
type Options struct {
	// Force regenerates and overwrites an existing report for today.
	Force bool
	// Limit caps both fetched lists for dry runs; 0 means everything.
	Limit int
}

// RunDailyReport generates today's report: check for an existing one unless
// forced, fetch both snapshots, normalize, build, diff against the latest
// prior report, persist, return. Returning an existing report is a normal
// outcome, not an error. On a save failure the computed report is returned
// alongside the error so the caller can retry persistence without refetching.
func RunDailyReport(ctx context.Context, deps Deps, opts Options) (model.Report, error) {
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	day := timeutil.Morning(now(), deps.Loc)

	if !opts.Force {
		existing, err := deps.Store.FindByGeneratedAt(ctx, day)
		if err != nil {
			return model.Report{}, fmt.Errorf("jobs: duplicate check: %w", err)
		}
		if existing != nil {
			metrics.ReportSkips.Inc()
			logging.Info("report_already_generated", map[string]any{"id": existing.ID})
			return *existing, nil
		}
	}

	start := now()
	metrics.ReportRuns.Inc()

	rawFollowers, err := deps.Source.FetchFollowers(ctx, opts.Limit)
	if err != nil {
		metrics.ReportErrors.Inc()
		return model.Report{}, fmt.Errorf("jobs: fetch followers: %w", err)
	}
	rawFollowing, err := deps.Source.FetchFollowing(ctx, opts.Limit)
	if err != nil {
		metrics.ReportErrors.Inc()
		return model.Report{}, fmt.Errorf("jobs: fetch following: %w", err)
	}
	followers, err := snapshot.Normalize(rawFollowers)
	if err != nil {
		metrics.ReportErrors.Inc()
		return model.Report{}, err
	}
	following, err := snapshot.Normalize(rawFollowing)
	if err != nil {
		metrics.ReportErrors.Inc()
		return model.Report{}, err
	}

	rep := report.Build(followers, following, day)
	prev, err := deps.Store.FindLatest(ctx, &day)
	if err != nil {
		metrics.ReportErrors.Inc()
		return model.Report{}, fmt.Errorf("jobs: find previous: %w", err)
	}
	report.Diff(&rep, prev)

	if err := deps.Store.Save(ctx, rep); err != nil {
		metrics.ReportErrors.Inc()
		// the computed report is still usable; persistence can be retried
		return rep, fmt.Errorf("jobs: save report: %w", err)
	}

	logging.Info("report_generated", map[string]any{
		"id":            rep.ID,
		"num_followers": rep.NumFollowers,
		"num_following": rep.NumFollowing,
		"first_report":  prev == nil,
	})
	metrics.ObserveReportDuration(start)
	return rep, nil
}

// RunDailyLoop runs RunDailyReport on a ticker until ctx is cancelled.
// The first run happens immediately.
func RunDailyLoop(ctx context.Context, deps Deps, opts Options, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	if _, err := RunDailyReport(ctx, deps, opts); err != nil {
		logging.Error("report_run_error", map[string]any{"error": err.Error()})
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info("report_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			if _, err := RunDailyReport(ctx, deps, opts); err != nil {
				logging.Error("report_run_error", map[string]any{"error": err.Error()})
			}
		}
	}
}
