// Package nav advances vehicles toward movement targets on fixed
// ticks: one Stepper per vehicle, one cancelable loop per maneuver.
package nav

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/skytrail/geo"
	"github.com/signalsfoundry/skytrail/internal/logging"
	"github.com/signalsfoundry/skytrail/model"
	"github.com/signalsfoundry/skytrail/tick"
	"github.com/signalsfoundry/skytrail/trail"
)

// Stepper errors.
var (
	ErrInvalidStep      = errors.New("step size must be positive and finite")
	ErrInvalidFrequency = errors.New("move frequency must be positive")
)

const (
	// assetYawOffset aligns a north-zero bearing with the forward axis
	// of the rendered vehicle asset, which faces south at zero yaw. It
	// is applied in exactly this one place; geo.BearingTo stays raw.
	assetYawOffset = math.Pi

	// DefaultFlyStepMeters is the per-tick step size used by FlyTo.
	DefaultFlyStepMeters = 2.0

	// altitudeSnapMeters is the remaining gap at or below which the
	// altitude glide snaps exactly to the target instead of stepping,
	// which keeps float noise from oscillating around convergence.
	altitudeSnapMeters = 0.5
)

// maneuver is the per-move state captured by MoveToward. The loop
// callback carries it by pointer; a superseded maneuver is recognised
// by its stale generation number.
type maneuver struct {
	gen        uint64
	target     model.Position3D // altitude carried separately
	targetAlt  float64
	stepMeters float64
	velocity   float64 // stepMeters * move frequency, m/s
	onComplete func()
	completed  bool
}

// Stepper drives one vehicle toward targets. It borrows the vehicle
// state for the duration of each maneuver and enforces at most one
// active movement loop by cancel-and-replace.
type Stepper struct {
	mu      sync.Mutex
	vehicle *model.VehicleState
	trails  *trail.Registry

	loop    *tick.Loop
	gen     uint64
	current *maneuver

	asset   VehicleAsset
	marker  TargetMarker
	metrics MetricsRecorder
	log     logging.Logger
}

// Option configures a Stepper.
type Option func(*Stepper)

// WithAsset wires the rendered vehicle model.
func WithAsset(a VehicleAsset) Option {
	return func(s *Stepper) {
		if a != nil {
			s.asset = a
		}
	}
}

// WithTargetMarker wires the map marker removed on arrival.
func WithTargetMarker(m TargetMarker) Option {
	return func(s *Stepper) {
		if m != nil {
			s.marker = m
		}
	}
}

// WithMetrics wires a stepper activity recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Stepper) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the stepper logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Stepper) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStepper constructs a stepper for one vehicle. The vehicle's trail
// must already be registered with trails.
func NewStepper(vehicle *model.VehicleState, trails *trail.Registry, opts ...Option) *Stepper {
	s := &Stepper{
		vehicle: vehicle,
		trails:  trails,
		asset:   NopAsset{},
		marker:  NopMarker{},
		metrics: nopMetrics{},
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logging.String("entity", vehicle.ID))
	return s
}

// Moving reports whether a movement loop is active.
func (s *Stepper) Moving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}

// Position returns the vehicle's current position. Reads race tick
// commits unless they go through here.
func (s *Stepper) Position() model.Position3D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vehicle.Position()
}

// MoveToward starts a maneuver toward target at stepMeters per tick,
// gliding altitude to targetAlt. An in-flight maneuver is canceled and
// replaced; its onComplete never fires. onComplete (optional) fires
// exactly once, on arrival.
//
// Heading is computed once, from the current position to the target,
// and handed to the vehicle asset before the first tick.
func (s *Stepper) MoveToward(target model.Position3D, targetAlt, stepMeters float64, onComplete func()) error {
	if err := geo.Validate(target); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if math.IsNaN(targetAlt) || math.IsInf(targetAlt, 0) {
		return fmt.Errorf("target altitude %v: %w", targetAlt, geo.ErrNonFinite)
	}
	if stepMeters <= 0 || math.IsNaN(stepMeters) || math.IsInf(stepMeters, 0) {
		return fmt.Errorf("step %v m: %w", stepMeters, ErrInvalidStep)
	}

	s.mu.Lock()
	freq := s.vehicle.MoveFrequency
	if freq <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%v Hz: %w", freq, ErrInvalidFrequency)
	}

	// Cancel-and-replace: at most one active loop per vehicle.
	s.gen++
	if s.loop != nil {
		s.loop.Stop()
		s.loop = nil
	}
	m := &maneuver{
		gen:        s.gen,
		target:     target,
		targetAlt:  targetAlt,
		stepMeters: stepMeters,
		velocity:   stepMeters * freq,
		onComplete: onComplete,
	}
	heading := geo.BearingTo(s.vehicle.Position(), target) + assetYawOffset
	period := time.Duration(float64(time.Second) / freq)
	if period < time.Nanosecond {
		// Frequencies above 1e9 Hz truncate to a zero period, which
		// time.NewTicker rejects.
		period = time.Nanosecond
	}
	s.mu.Unlock()

	// Collaborator call outside the lock, strictly before the first tick.
	if err := s.asset.SetHeading(heading); err != nil {
		s.log.Warn(context.Background(), "asset heading update failed", logging.Err(err))
	}

	s.mu.Lock()
	if m.gen != s.gen {
		// A concurrent MoveToward or Cancel superseded this maneuver
		// before its loop started.
		s.mu.Unlock()
		return nil
	}
	s.current = m
	s.loop = tick.Start(period, func(time.Time) { s.step(m) })
	s.mu.Unlock()

	s.metrics.SetManeuverActive(s.vehicle.ID, true)
	s.log.Info(context.Background(), "maneuver started",
		logging.Float64("target_lon", target.Lon),
		logging.Float64("target_lat", target.Lat),
		logging.Float64("target_alt", targetAlt),
		logging.Float64("step_m", stepMeters),
	)
	return nil
}

// FlyTo starts a maneuver toward (lon, lat) keeping the current
// altitude, at the default step size.
func (s *Stepper) FlyTo(lon, lat float64) error {
	s.mu.Lock()
	alt := s.vehicle.Alt
	s.mu.Unlock()
	return s.MoveToward(model.Position3D{Lon: lon, Lat: lat, Alt: alt}, alt, DefaultFlyStepMeters, nil)
}

// Cancel stops the active maneuver, if any, without firing its
// onComplete. Idempotent.
func (s *Stepper) Cancel() {
	s.mu.Lock()
	if s.loop == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.loop.Stop()
	s.loop = nil
	s.current = nil
	s.mu.Unlock()

	s.metrics.SetManeuverActive(s.vehicle.ID, false)
	s.log.Info(context.Background(), "maneuver canceled")
}

// step advances one tick of the given maneuver. Tick order: measure
// remaining distance, interpolate, glide altitude, commit the new
// position, record the pre-step position into the trail, reposition
// the asset, then run arrival side effects. The arrival check uses
// the pre-step distance.
func (s *Stepper) step(m *maneuver) {
	started := time.Now()

	s.mu.Lock()
	if m.gen != s.gen || m.completed {
		s.mu.Unlock()
		return
	}

	cur := s.vehicle.Position()
	dist := geo.DistanceMeters(cur, m.target)

	// Degenerate zero-length move: complete immediately, nothing to
	// record or reposition.
	if dist == 0 {
		s.finishLocked(m)
		s.mu.Unlock()
		s.complete(m)
		return
	}

	arrived := dist <= m.stepMeters

	var next model.Position3D
	if arrived {
		// Final tick: land on the target exactly rather than lerping
		// past it with factor > 1.
		next = model.Position3D{Lon: m.target.Lon, Lat: m.target.Lat}
	} else {
		next = geo.Lerp(cur, m.target, m.stepMeters/dist)
	}
	next.Alt = glideAltitude(cur.Alt, m.targetAlt, s.vehicle.VerticalSpeed, s.vehicle.MoveFrequency)

	s.vehicle.SetPosition(next)
	if arrived {
		s.finishLocked(m)
	}
	id := s.vehicle.ID
	s.mu.Unlock()

	// The trail receives the pre-step position: the rendered trail
	// always lags one tick behind the vehicle's visual position.
	if _, err := s.trails.Record(id, cur, next, m.velocity); err != nil {
		s.log.Warn(context.Background(), "trail record failed", logging.Err(err))
	}
	if err := s.asset.Reposition(next.Lon, next.Lat, next.Alt); err != nil {
		s.log.Warn(context.Background(), "asset reposition failed", logging.Err(err))
	}

	s.metrics.RecordStep(id, time.Since(started).Seconds())
	if arrived {
		s.complete(m)
	}
}

// finishLocked transitions Moving -> Idle. Callers hold s.mu.
func (s *Stepper) finishLocked(m *maneuver) {
	m.completed = true
	if s.loop != nil {
		s.loop.Stop()
		s.loop = nil
	}
	s.current = nil
}

// complete runs the arrival side effects outside the lock.
func (s *Stepper) complete(m *maneuver) {
	if err := s.marker.Remove(); err != nil {
		s.log.Warn(context.Background(), "target marker removal failed", logging.Err(err))
	}
	s.metrics.RecordArrival(s.vehicle.ID)
	s.metrics.SetManeuverActive(s.vehicle.ID, false)
	s.log.Info(context.Background(), "maneuver complete",
		logging.Float64("lon", m.target.Lon),
		logging.Float64("lat", m.target.Lat),
	)
	if m.onComplete != nil {
		m.onComplete()
	}
}

// glideAltitude advances altitude toward target by verticalSpeed/freq
// per tick, landing exactly on the target: a step that would overshoot
// is truncated, and a remaining gap within altitudeSnapMeters snaps.
func glideAltitude(cur, target, verticalSpeed, freq float64) float64 {
	gap := target - cur
	if math.Abs(gap) <= altitudeSnapMeters {
		return target
	}
	step := math.Abs(verticalSpeed) / freq
	if gap > 0 {
		if step >= gap {
			return target
		}
		return cur + step
	}
	if step >= -gap {
		return target
	}
	return cur - step
}
