// Command trailserver runs the long-lived skytrail service: a
// websocket render feed at /feed, a vehicle command API, Prometheus
// metrics, and OpenTelemetry tracing, all shut down together on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/skytrail/internal/config"
	"github.com/signalsfoundry/skytrail/internal/logging"
	"github.com/signalsfoundry/skytrail/internal/observability"
	"github.com/signalsfoundry/skytrail/internal/renderfeed"
	"github.com/signalsfoundry/skytrail/sim"
	"github.com/signalsfoundry/skytrail/trail"
)

func main() {
	configDir := flag.String("config-dir", "", "directory containing skytrail.yaml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Trace.Enabled,
		ServiceName: "trailserver",
		Exporter:    cfg.Trace.Exporter,
		Endpoint:    cfg.Trace.Endpoint,
		SampleRatio: cfg.Trace.SampleRatio,
	}, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	fleetMetrics, err := observability.NewFleetCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise fleet metrics", logging.Err(err))
		os.Exit(1)
	}
	feedMetrics, err := observability.NewFeedCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise feed metrics", logging.Err(err))
		os.Exit(1)
	}

	mode, err := trail.ParseMode(cfg.Sim.TrailMode)
	if err != nil {
		log.Error(ctx, "bad trail mode", logging.Err(err))
		os.Exit(1)
	}

	hub := renderfeed.NewHub(
		renderfeed.WithLogger(log),
		renderfeed.WithMetrics(feedMetrics),
	)
	world := sim.NewWorld(log,
		sim.WithTrailMode(mode),
		sim.WithRenderSurface(hub),
		sim.WithAssetProvider(hub),
		sim.WithMetricsRecorder(fleetMetrics),
		sim.WithMoveFrequency(cfg.Sim.MoveFrequencyHz),
		sim.WithVerticalSpeed(cfg.Sim.VerticalSpeed),
		sim.WithStepMeters(cfg.Sim.StepMeters),
	)

	api := newAPI(world, cfg.Sim.StepMeters, log)

	mux := http.NewServeMux()
	mux.Handle("/feed", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	api.register(mux)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", fleetMetrics.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.Server.MetricsAddr,
		Handler: metricsMux,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Info(ctx, "serving trailserver API", logging.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info(ctx, "serving Prometheus metrics", logging.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-runCtx.Done()
		log.Info(ctx, "shutting down")

		world.CancelAll()
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error(ctx, "trailserver exited", logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "trailserver stopped")
}
