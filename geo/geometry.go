package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/skytrail/model"
)

// MetersPerDegree is the flat-earth scale used to convert degree-space
// distances to metres. It is adequate at the latitudes and zoom levels
// the simulator operates at; nothing here attempts geodesic accuracy.
const MetersPerDegree = 111_000.0

// ErrNonFinite is returned when a coordinate is NaN or infinite.
var ErrNonFinite = errors.New("non-finite coordinate")

// Finite reports whether every component of p is a finite number.
func Finite(p model.Position3D) bool {
	return finite(p.Lon) && finite(p.Lat) && finite(p.Alt)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate rejects positions with NaN or infinite components so they
// never reach the interpolation path.
func Validate(p model.Position3D) error {
	if !Finite(p) {
		return fmt.Errorf("lon=%v lat=%v alt=%v: %w", p.Lon, p.Lat, p.Alt, ErrNonFinite)
	}
	return nil
}

// Distance returns the planar distance between two positions in degree
// space. It is the significance measure for trail recording and must
// not be used for physical step sizing; see DistanceMeters.
func Distance(a, b model.Position3D) float64 {
	dLon := a.Lon - b.Lon
	dLat := a.Lat - b.Lat
	return math.Sqrt(dLon*dLon + dLat*dLat)
}

// DistanceMeters returns the planar distance between two positions
// scaled to metres. It is the step-sizing measure; see Distance for
// the recording-significance measure. The two must not be mixed.
func DistanceMeters(a, b model.Position3D) float64 {
	return Distance(a, b) * MetersPerDegree
}

// BearingTo returns the bearing from one position to another in
// radians: 0 points north, values increase clockwise. Altitude is
// ignored. Any render-asset alignment offset is applied by the caller,
// not here.
func BearingTo(from, to model.Position3D) float64 {
	return math.Atan2(to.Lon-from.Lon, to.Lat-from.Lat)
}

// Lerp interpolates componentwise between two positions. t in [0, 1]
// yields interior points; callers advancing by a fixed step may pass
// t > 1 near the end of a move and handle the overshoot themselves.
func Lerp(from, to model.Position3D, t float64) model.Position3D {
	return model.Position3D{
		Lon: from.Lon + (to.Lon-from.Lon)*t,
		Lat: from.Lat + (to.Lat-from.Lat)*t,
		Alt: from.Alt + (to.Alt-from.Alt)*t,
	}
}
