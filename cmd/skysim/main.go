// Command skysim runs a headless demo fleet: it builds a world from
// configuration, plans a route (satellite ground track or synthetic
// circuit), flies the fleet along it for a fixed duration, and serves
// Prometheus metrics while it runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/signalsfoundry/skytrail/internal/config"
	"github.com/signalsfoundry/skytrail/internal/logging"
	"github.com/signalsfoundry/skytrail/internal/observability"
	"github.com/signalsfoundry/skytrail/model"
	"github.com/signalsfoundry/skytrail/route"
	"github.com/signalsfoundry/skytrail/sim"
	"github.com/signalsfoundry/skytrail/trail"
)

// Demo area: a patch of airspace over the Baltic Sea. Circuits are
// flown around it; ground tracks start wherever the TLE puts them.
var demoCenter = model.Position3D{Lon: 19.5, Lat: 57.2, Alt: 150}

func main() {
	configDir := flag.String("config-dir", "", "directory containing skytrail.yaml")
	duration := flag.Duration("duration", 60*time.Second, "how long to fly the fleet")
	vehicles := flag.Int("vehicles", 3, "number of simulated vehicles")
	plan := flag.String("plan", "circuit", "route plan: circuit or tle")
	tlePath := flag.String("tle", "", "path to a two-line element file (plan=tle)")
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

	collector, err := observability.NewFleetCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)

	mode, err := trail.ParseMode(cfg.Sim.TrailMode)
	if err != nil {
		log.Error(ctx, "bad trail mode", logging.Err(err))
		os.Exit(1)
	}

	world := sim.NewWorld(log,
		sim.WithTrailMode(mode),
		sim.WithMetricsRecorder(collector),
		sim.WithMoveFrequency(cfg.Sim.MoveFrequencyHz),
		sim.WithVerticalSpeed(cfg.Sim.VerticalSpeed),
		sim.WithStepMeters(cfg.Sim.StepMeters),
	)

	waypoints, err := buildPlan(*plan, *tlePath)
	if err != nil {
		log.Error(ctx, "failed to build route plan", logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "route plan ready",
		logging.String("plan", *plan),
		logging.Int("waypoints", len(waypoints)),
	)

	if err := launchFleet(world, waypoints, *vehicles, cfg.Sim.StepMeters, log); err != nil {
		log.Error(ctx, "failed to launch fleet", logging.Err(err))
		os.Exit(1)
	}

	log.Info(ctx, "fleet airborne",
		logging.Int("vehicles", *vehicles),
		logging.String("duration", duration.String()),
	)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	select {
	case <-stopCtx.Done():
		log.Info(ctx, "interrupted")
	case <-time.After(*duration):
	}

	world.CancelAll()
	for _, snap := range world.Snapshot() {
		log.Info(ctx, "vehicle summary",
			logging.String("entity", snap.ID),
			logging.Float64("lon", snap.Position.Lon),
			logging.Float64("lat", snap.Position.Lat),
			logging.Float64("alt", snap.Position.Alt),
			logging.Int("trail_entries", snap.Trail.Count),
			logging.Float64("trail_meters", snap.Trail.DistanceMeters),
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// launchFleet adds count vehicles and sends each around the shared
// waypoint loop, staggered so they do not fly in a stack. Each vehicle
// re-follows the loop when it finishes, until CancelAll.
func launchFleet(world *sim.World, waypoints []model.Position3D, count int, stepMeters float64, log logging.Logger) error {
	if count < 1 {
		return fmt.Errorf("need at least one vehicle, got %d", count)
	}
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("vehicle-%02d", i+1)
		loop := rotate(waypoints, i*len(waypoints)/count)
		if _, err := world.AddVehicle(id, loop[0]); err != nil {
			return err
		}
		if err := followForever(world, id, loop, stepMeters, log); err != nil {
			return err
		}
	}
	return nil
}

// followForever chains the route back onto itself so the vehicle keeps
// flying until its maneuvers are canceled.
func followForever(world *sim.World, id string, loop []model.Position3D, stepMeters float64, log logging.Logger) error {
	var again func()
	again = func() {
		if err := world.FollowRoute(id, loop, stepMeters, again); err != nil {
			log.Warn(context.Background(), "route restart failed",
				logging.String("entity", id),
				logging.Err(err),
			)
		}
	}
	return world.FollowRoute(id, loop, stepMeters, again)
}

// rotate returns waypoints shifted to start at index i, preserving
// order around the loop.
func rotate(waypoints []model.Position3D, i int) []model.Position3D {
	i %= len(waypoints)
	out := make([]model.Position3D, 0, len(waypoints))
	out = append(out, waypoints[i:]...)
	out = append(out, waypoints[:i]...)
	return out
}

// buildPlan produces the shared waypoint loop: a circuit around the
// demo area, or a satellite ground track sampled from a TLE file.
func buildPlan(kind, tlePath string) ([]model.Position3D, error) {
	switch kind {
	case "circuit":
		return route.Circuit(demoCenter, 400, 12)
	case "tle":
		line1, line2, err := readTLE(tlePath)
		if err != nil {
			return nil, err
		}
		return route.GroundTrack(line1, line2, time.Now().UTC(), 30*time.Minute, 24)
	default:
		return nil, fmt.Errorf("unknown plan %q (want circuit or tle)", kind)
	}
}

// readTLE reads the first two non-empty lines of a TLE file.
func readTLE(path string) (string, string, error) {
	if path == "" {
		return "", "", fmt.Errorf("plan=tle requires -tle")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading TLE file: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) < 2 {
		return "", "", fmt.Errorf("TLE file %q has %d non-empty lines, want 2", path, len(lines))
	}
	return lines[0], lines[1], nil
}

func serveMetrics(addr string, collector *observability.FleetCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
