package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gramtrack/internal/api"
	"gramtrack/internal/cmdlog"
	"gramtrack/internal/config"
	"gramtrack/internal/igclient"
	"gramtrack/internal/jobs"
	"gramtrack/internal/metrics"
	"gramtrack/internal/report"
	"gramtrack/internal/store/reportdb"
	"gramtrack/internal/theme"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "report":
		cmdReport()
	case "latest":
		cmdLatest()
	case "serve":
		cmdServe()
	case "loop":
		cmdLoop()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: gramtrack <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init    Create a config file at ./gramtrack.yaml")
	fmt.Println("  report  Generate today's follower report")
	fmt.Println("  latest  Show the most recent stored report")
	fmt.Println("  serve   Run the HTTP API server")
	fmt.Println("  loop    Run the daily report on a schedule")
}

func fatal(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	return cfg
}

func reportLocation(cfg config.Config) *time.Location {
	if cfg.Report.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		fatal(fmt.Errorf("bad report timezone %q: %w", cfg.Report.Timezone, err))
	}
	return loc
}

func openStore(cfg config.Config) *reportdb.DB {
	db, err := reportdb.Open(cfg.Storage.DBPath)
	if err != nil {
		fatal(err)
	}
	return db
}

func newSource(ctx context.Context, cfg config.Config) *igclient.Client {
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	client := igclient.New(cfg.Account.Username, cfg.Account.Password, cfg.Account.SessionDir)
	if err := client.EnsureSession(ctx); err != nil {
		fatal(err)
	}
	return client
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./gramtrack.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fatal(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdReport() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", "./gramtrack.yaml", "config path")
	force := fs.Bool("force", false, "regenerate even if today's report exists")
	limit := fs.Int("limit", 0, "cap fetched lists for a dry run (0 = all)")
	noColor := fs.Bool("no-color", false, "disable colored output")
	_ = fs.Parse(os.Args[2:])

	cfg := loadConfig(*cfgPath)
	ctx := context.Background()
	db := openStore(cfg)
	defer db.Close()
	client := newSource(ctx, cfg)

	err := cmdlog.Run("report", func() error {
		deps := jobs.Deps{
			Store:  reportdb.NewReportRepository(db),
			Source: client,
			Loc:    reportLocation(cfg),
		}
		rep, err := jobs.RunDailyReport(ctx, deps, jobs.Options{Force: *force, Limit: *limit})
		if err != nil {
			return err
		}
		report.Render(rep, os.Stdout, !*noColor)
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdLatest() {
	fs := flag.NewFlagSet("latest", flag.ExitOnError)
	cfgPath := fs.String("config", "./gramtrack.yaml", "config path")
	noColor := fs.Bool("no-color", false, "disable colored output")
	_ = fs.Parse(os.Args[2:])

	cfg := loadConfig(*cfgPath)
	db := openStore(cfg)
	defer db.Close()

	err := cmdlog.Run("latest", func() error {
		rep, err := reportdb.NewReportRepository(db).FindLatest(context.Background(), nil)
		if err != nil {
			return err
		}
		if rep == nil {
			return errors.New("no reports stored yet")
		}
		report.Render(*rep, os.Stdout, !*noColor)
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./gramtrack.yaml", "config path")
	addr := fs.String("addr", "", "listen address (overrides config)")
	_ = fs.Parse(os.Args[2:])

	cfg := loadConfig(*cfgPath)
	if *addr != "" {
		cfg.API.Addr = *addr
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := openStore(cfg)
	defer db.Close()
	client := newSource(ctx, cfg)
	metrics.StartServer(cfg.Metrics.Addr)

	srv := api.New(cfg,
		reportdb.NewReportRepository(db),
		reportdb.NewProfileCacheRepository(db),
		client,
		reportLocation(cfg))
	if err := srv.ListenAndServe(ctx, cfg.API.Addr); err != nil {
		fatal(err)
	}
}

func cmdLoop() {
	fs := flag.NewFlagSet("loop", flag.ExitOnError)
	cfgPath := fs.String("config", "./gramtrack.yaml", "config path")
	interval := fs.Duration("interval", 24*time.Hour, "time between report runs")
	_ = fs.Parse(os.Args[2:])

	cfg := loadConfig(*cfgPath)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := openStore(cfg)
	defer db.Close()
	client := newSource(ctx, cfg)
	metrics.StartServer(cfg.Metrics.Addr)

	deps := jobs.Deps{
		Store:  reportdb.NewReportRepository(db),
		Source: client,
		Loc:    reportLocation(cfg),
	}
	if err := jobs.RunDailyLoop(ctx, deps, jobs.Options{}, *interval); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}
