// Package sim composes the fleet: one trail registry plus a vehicle
// state and stepper per entity, wired to shared render and metrics
// collaborators.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/skytrail/geo"
	"github.com/signalsfoundry/skytrail/internal/logging"
	"github.com/signalsfoundry/skytrail/model"
	"github.com/signalsfoundry/skytrail/nav"
	"github.com/signalsfoundry/skytrail/trail"
)

// Re-export registry sentinel errors under fleet names so callers can
// depend on sim.* instead of trail.* directly if they want to.
var (
	// ErrVehicleExists indicates a vehicle ID is already in the fleet.
	ErrVehicleExists = trail.ErrDuplicateEntity
	// ErrVehicleNotFound indicates a requested vehicle is not in the fleet.
	ErrVehicleNotFound = trail.ErrUnknownEntity
	// ErrEmptyRoute indicates a route with no waypoints.
	ErrEmptyRoute = errors.New("route has no waypoints")
)

// Fleet-wide defaults applied to new vehicles unless overridden.
const (
	DefaultMoveFrequency = 30.0 // Hz
	DefaultVerticalSpeed = 2.0  // m/s
	DefaultStepMeters    = 2.0
)

// MetricsRecorder is the union of the trail and stepper recorder
// interfaces, so one collector instance can serve the whole world.
type MetricsRecorder interface {
	trail.MetricsRecorder
	nav.MetricsRecorder
}

// AssetProvider hands out per-entity render collaborators for newly
// added vehicles.
type AssetProvider interface {
	VehicleAsset(entityID string) nav.VehicleAsset
	TargetMarker(entityID string) nav.TargetMarker
}

type nopAssets struct{}

func (nopAssets) VehicleAsset(string) nav.VehicleAsset { return nav.NopAsset{} }
func (nopAssets) TargetMarker(string) nav.TargetMarker { return nav.NopMarker{} }

// Vehicle pairs one entity's borrowed state with the stepper that
// drives it.
type Vehicle struct {
	State   *model.VehicleState
	Stepper *nav.Stepper
}

// World owns the fleet and the trail registry behind it.
type World struct {
	// mu is the fleet-level lock. Take this before any stepper or
	// registry lock to maintain the World -> Stepper -> Registry
	// ordering.
	mu    sync.RWMutex
	fleet map[string]*Vehicle

	trails *trail.Registry

	mode          trail.Mode
	moveFrequency float64
	verticalSpeed float64
	stepMeters    float64

	surface trail.RenderSurface
	assets  AssetProvider
	metrics MetricsRecorder
	log     logging.Logger
}

// WorldOption customises World construction.
type WorldOption func(*World)

// WithTrailMode selects point or segment trails for the whole fleet.
func WithTrailMode(m trail.Mode) WorldOption {
	return func(w *World) {
		w.mode = m
	}
}

// WithRenderSurface wires the surface that receives trail geometry.
func WithRenderSurface(s trail.RenderSurface) WorldOption {
	return func(w *World) {
		w.surface = s
	}
}

// WithAssetProvider wires the source of per-vehicle render assets.
func WithAssetProvider(p AssetProvider) WorldOption {
	return func(w *World) {
		if p != nil {
			w.assets = p
		}
	}
}

// WithMetricsRecorder attaches an optional recorder shared by the
// registry and every stepper.
func WithMetricsRecorder(m MetricsRecorder) WorldOption {
	return func(w *World) {
		w.metrics = m
	}
}

// WithMoveFrequency sets the tick rate, in Hz, given to new vehicles.
func WithMoveFrequency(hz float64) WorldOption {
	return func(w *World) {
		if hz > 0 {
			w.moveFrequency = hz
		}
	}
}

// WithVerticalSpeed sets the altitude glide rate, in m/s, given to new
// vehicles.
func WithVerticalSpeed(ms float64) WorldOption {
	return func(w *World) {
		if ms > 0 {
			w.verticalSpeed = ms
		}
	}
}

// WithStepMeters sets the per-tick step size used when a caller does
// not supply one.
func WithStepMeters(m float64) WorldOption {
	return func(w *World) {
		if m > 0 {
			w.stepMeters = m
		}
	}
}

// NewWorld builds an empty fleet around a fresh trail registry.
func NewWorld(log logging.Logger, opts ...WorldOption) *World {
	if log == nil {
		log = logging.Noop()
	}
	w := &World{
		fleet:         make(map[string]*Vehicle),
		mode:          trail.ModePoints,
		moveFrequency: DefaultMoveFrequency,
		verticalSpeed: DefaultVerticalSpeed,
		stepMeters:    DefaultStepMeters,
		assets:        nopAssets{},
		log:           log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	regOpts := []trail.Option{trail.WithLogger(w.log)}
	if w.surface != nil {
		regOpts = append(regOpts, trail.WithRenderSurface(w.surface))
	}
	if w.metrics != nil {
		regOpts = append(regOpts, trail.WithMetrics(w.metrics))
	}
	w.trails = trail.NewRegistry(w.mode, regOpts...)
	return w
}

// Trails exposes the registry for feed and visibility endpoints.
func (w *World) Trails() *trail.Registry {
	return w.trails
}

// AddVehicle registers a vehicle at the given start position with the
// fleet defaults and returns its handle. The ID must be unused.
func (w *World) AddVehicle(id string, start model.Position3D) (*Vehicle, error) {
	if err := geo.Validate(start); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.fleet[id]; exists {
		return nil, fmt.Errorf("vehicle %q: %w", id, ErrVehicleExists)
	}
	if _, err := w.trails.Create(id); err != nil {
		return nil, err
	}

	state := &model.VehicleState{
		ID:            id,
		Lon:           start.Lon,
		Lat:           start.Lat,
		Alt:           start.Alt,
		VerticalSpeed: w.verticalSpeed,
		MoveFrequency: w.moveFrequency,
	}
	stepperOpts := []nav.Option{
		nav.WithLogger(w.log),
		nav.WithAsset(w.assets.VehicleAsset(id)),
		nav.WithTargetMarker(w.assets.TargetMarker(id)),
	}
	if w.metrics != nil {
		stepperOpts = append(stepperOpts, nav.WithMetrics(w.metrics))
	}
	v := &Vehicle{
		State:   state,
		Stepper: nav.NewStepper(state, w.trails, stepperOpts...),
	}
	w.fleet[id] = v

	w.log.Info(context.Background(), "vehicle added",
		logging.String("entity", id),
		logging.Float64("lon", start.Lon),
		logging.Float64("lat", start.Lat),
		logging.Float64("alt", start.Alt),
	)
	return v, nil
}

// Vehicle returns the handle for a fleet member.
func (w *World) Vehicle(id string) (*Vehicle, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.fleet[id]
	if !ok {
		return nil, fmt.Errorf("vehicle %q: %w", id, ErrVehicleNotFound)
	}
	return v, nil
}

// Vehicles returns the sorted fleet IDs.
func (w *World) Vehicles() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]string, 0, len(w.fleet))
	for id := range w.fleet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveVehicle cancels any active maneuver, detaches the vehicle's
// trail, and forgets the vehicle.
func (w *World) RemoveVehicle(id string) error {
	w.mu.Lock()
	v, ok := w.fleet[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("vehicle %q: %w", id, ErrVehicleNotFound)
	}
	delete(w.fleet, id)
	w.mu.Unlock()

	v.Stepper.Cancel()
	if err := w.trails.Remove(id); err != nil {
		return err
	}
	w.log.Info(context.Background(), "vehicle removed", logging.String("entity", id))
	return nil
}

// CancelAll stops every active maneuver. Used on shutdown.
func (w *World) CancelAll() {
	w.mu.RLock()
	vehicles := make([]*Vehicle, 0, len(w.fleet))
	for _, v := range w.fleet {
		vehicles = append(vehicles, v)
	}
	w.mu.RUnlock()

	for _, v := range vehicles {
		v.Stepper.Cancel()
	}
}

// FollowRoute sends a vehicle through waypoints in order, chaining one
// maneuver per leg; onDone (optional) fires after the final arrival.
// stepMeters <= 0 selects the world default. A failure on the first
// leg is returned; later legs can only fail asynchronously and are
// logged. Starting a new route supersedes an active one.
func (w *World) FollowRoute(id string, waypoints []model.Position3D, stepMeters float64, onDone func()) error {
	v, err := w.Vehicle(id)
	if err != nil {
		return err
	}
	if len(waypoints) == 0 {
		return fmt.Errorf("vehicle %q: %w", id, ErrEmptyRoute)
	}
	for i, wp := range waypoints {
		if err := geo.Validate(wp); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	if stepMeters <= 0 {
		stepMeters = w.stepMeters
	}

	var fly func(i int) error
	fly = func(i int) error {
		if i >= len(waypoints) {
			w.log.Info(context.Background(), "route complete",
				logging.String("entity", id),
				logging.Int("waypoints", len(waypoints)),
			)
			if onDone != nil {
				onDone()
			}
			return nil
		}
		wp := waypoints[i]
		return v.Stepper.MoveToward(wp, wp.Alt, stepMeters, func() {
			if err := fly(i + 1); err != nil {
				w.log.Error(context.Background(), "route leg aborted",
					logging.String("entity", id),
					logging.Int("leg", i+1),
					logging.Err(err),
				)
			}
		})
	}
	return fly(0)
}

// VehicleSnapshot captures one vehicle's state at a point in time.
type VehicleSnapshot struct {
	ID       string
	Position model.Position3D
	Moving   bool
	Trail    trail.Stats
}

// Snapshot returns a consistent view of the fleet, sorted by ID.
func (w *World) Snapshot() []VehicleSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]VehicleSnapshot, 0, len(w.fleet))
	for id, v := range w.fleet {
		snap := VehicleSnapshot{
			ID:       id,
			Position: v.Stepper.Position(),
			Moving:   v.Stepper.Moving(),
		}
		if s, ok := w.trails.Get(id); ok {
			snap.Trail = s.Stats()
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
