package nav

// VehicleAsset is the stepper's view of the rendered vehicle model.
// Reposition is invoked once per tick during a maneuver, SetHeading
// once at maneuver start. Calls are fire-and-forget: failures are
// logged, never propagated into the movement loop.
type VehicleAsset interface {
	Reposition(lon, lat, alt float64) error
	SetHeading(radians float64) error
}

// TargetMarker marks the current movement target on the map; Remove is
// invoked when the vehicle arrives.
type TargetMarker interface {
	Remove() error
}

// NopAsset is a VehicleAsset that does nothing.
type NopAsset struct{}

func (NopAsset) Reposition(float64, float64, float64) error { return nil }
func (NopAsset) SetHeading(float64) error                   { return nil }

// NopMarker is a TargetMarker that does nothing.
type NopMarker struct{}

func (NopMarker) Remove() error { return nil }

// MetricsRecorder receives stepper activity. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	// RecordStep counts one movement tick and its processing time.
	RecordStep(entityID string, seconds float64)
	// RecordArrival counts a completed maneuver.
	RecordArrival(entityID string)
	// SetManeuverActive reports whether the entity has an active loop.
	SetManeuverActive(entityID string, active bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordStep(string, float64)     {}
func (nopMetrics) RecordArrival(string)           {}
func (nopMetrics) SetManeuverActive(string, bool) {}
