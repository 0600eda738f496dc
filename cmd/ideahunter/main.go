// Package main provides the ideahunter entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/ideahunter/internal/config"
	"github.com/thebtf/ideahunter/internal/pipeline"
	"github.com/thebtf/ideahunter/internal/scheduler"
	"github.com/thebtf/ideahunter/internal/watcher"
	"github.com/thebtf/ideahunter/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Settings file (default: <data-dir>/settings.yaml)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.ideahunter)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	daemon := flag.Bool("daemon", false, "Run on the cron schedule and serve the status API")
	once := flag.Bool("once", false, "Run the pipeline once and exit (default)")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if *dataDir != "" {
		config.SetDataDir(*dataDir)
	}
	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	settingsPath := config.SettingsPath()
	if *configPath != "" {
		settingsPath = *configPath
	}
	cfg, err := config.LoadFrom(settingsPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	config.Set(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down ideahunter")
		cancel()
	}()

	a, err := newApp(ctx, cfg, *debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	if *daemon && !*once {
		err = runDaemon(ctx, a, cfg, settingsPath)
	} else {
		err = runOnce(ctx, a)
	}
	if err != nil {
		log.Error().Err(err).Msg("ideahunter exited with error")
		_ = a.Close()
		os.Exit(1)
	}
}

// runOnce executes a single pipeline run. Per-item failures are recorded in
// the run; only an aborted run is an error.
func runOnce(ctx context.Context, a *app) error {
	_, err := a.runner.Run(ctx)
	return err
}

// runDaemon schedules recurring runs, serves the status API and reloads the
// schedule when the settings file changes.
func runDaemon(ctx context.Context, a *app, cfg *config.Config, settingsPath string) error {
	sched := scheduler.New(time.UTC)
	task := func(ctx context.Context) {
		if _, err := a.runner.Run(ctx); err != nil {
			if errors.Is(err, pipeline.ErrRunInProgress) {
				log.Info().Msg("Skipping scheduled run, another run is in progress")
				return
			}
			log.Error().Err(err).Msg("Scheduled pipeline run failed")
		}
	}
	if err := sched.Schedule(cfg.Schedule, task); err != nil {
		return err
	}

	svc := worker.NewService(worker.Options{
		DB:          a.store,
		Runs:        a.runs,
		Problems:    a.problems,
		Posts:       a.posts,
		Clusters:    a.clusters,
		Pipeline:    a.runner,
		Broadcaster: a.broadcaster,
		NextRun:     sched.Next,
		Version:     Version,
	})
	if err := svc.Start(fmt.Sprintf("127.0.0.1:%d", config.GetStatusPort())); err != nil {
		return err
	}
	sched.Start()

	w := startSettingsWatcher(settingsPath, sched, task)

	<-ctx.Done()

	if w != nil {
		_ = w.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Scheduler did not stop cleanly")
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Status server did not stop cleanly")
	}
	return nil
}

// startSettingsWatcher reschedules the pipeline when the settings file
// changes. Other settings take effect on restart.
func startSettingsWatcher(path string, sched *scheduler.Scheduler, task scheduler.Task) *watcher.Watcher {
	w, err := watcher.New(path, func() { reloadSchedule(path, sched, task) })
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return nil
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return nil
	}
	log.Info().Str("path", path).Msg("Settings watcher started")
	return w
}

func reloadSchedule(path string, sched *scheduler.Scheduler, task scheduler.Task) {
	cfg, err := config.LoadFrom(path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to reload settings")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("Ignoring invalid settings")
		return
	}
	config.Set(cfg)
	if cfg.Schedule == sched.Expr() {
		return
	}
	if err := sched.Schedule(cfg.Schedule, task); err != nil {
		log.Warn().Err(err).Msg("Keeping previous schedule")
	}
}
