// Package route generates waypoint plans for simulated fleets: SGP4
// ground tracks sampled from a TLE, and synthetic circuits.
package route

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/skytrail/geo"
	"github.com/signalsfoundry/skytrail/model"
)

// Plan errors.
var (
	ErrBadTLE      = errors.New("malformed TLE line")
	ErrInvalidPlan = errors.New("invalid plan parameters")
)

// DefaultAltitudeCeiling caps ground-track altitudes so aerial
// vehicles can shadow a satellite at a flyable height, in metres.
const DefaultAltitudeCeiling = 12_000.0

const tleLineLen = 69

type trackConfig struct {
	ceiling float64
}

// Option adjusts ground-track generation.
type Option func(*trackConfig)

// WithAltitudeCeiling overrides the altitude cap, in metres.
func WithAltitudeCeiling(m float64) Option {
	return func(c *trackConfig) { c.ceiling = m }
}

// GroundTrack propagates a TLE with SGP4 and samples the
// sub-satellite point: samples waypoints evenly spaced across period,
// the first at start. Altitudes are clamped to the ceiling.
// go-satellite works in kilometres; waypoints carry metres.
func GroundTrack(line1, line2 string, start time.Time, period time.Duration, samples int, opts ...Option) ([]model.Position3D, error) {
	line1 = strings.TrimRight(line1, " \t\r\n")
	line2 = strings.TrimRight(line2, " \t\r\n")
	if err := checkTLELine(line1, '1'); err != nil {
		return nil, err
	}
	if err := checkTLELine(line2, '2'); err != nil {
		return nil, err
	}
	if samples < 2 {
		return nil, fmt.Errorf("%d samples: %w", samples, ErrInvalidPlan)
	}
	if period <= 0 {
		return nil, fmt.Errorf("period %v: %w", period, ErrInvalidPlan)
	}
	cfg := trackConfig{ceiling: DefaultAltitudeCeiling}
	for _, opt := range opts {
		opt(&cfg)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	interval := period / time.Duration(samples)
	track := make([]model.Position3D, 0, samples)
	for i := 0; i < samples; i++ {
		t := start.Add(time.Duration(i) * interval).UTC()
		year, month, day := t.Date()
		hour, min, sec := t.Clock()

		posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
		jd := satellite.JDay(year, int(month), day, hour, min, sec)
		gmst := satellite.ThetaG_JD(jd)
		altKm, _, ll := satellite.ECIToLLA(posECI, gmst)
		deg := satellite.LatLongDeg(ll)

		const kmToM = 1000.0
		p := model.Position3D{
			Lon: deg.Longitude,
			Lat: deg.Latitude,
			Alt: math.Min(altKm*kmToM, cfg.ceiling),
		}
		// SGP4 yields NaNs for decayed or badly conditioned elements.
		if err := geo.Validate(p); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		track = append(track, p)
	}
	return track, nil
}

func checkTLELine(line string, wantNum byte) error {
	if len(line) != tleLineLen || line[0] != wantNum || line[1] != ' ' {
		return fmt.Errorf("line %c: %w", wantNum, ErrBadTLE)
	}
	return nil
}

// Circuit returns n waypoints on a circle of radiusMeters around
// center, clockwise from due north, all at the center's altitude.
func Circuit(center model.Position3D, radiusMeters float64, n int) ([]model.Position3D, error) {
	if err := geo.Validate(center); err != nil {
		return nil, fmt.Errorf("center: %w", err)
	}
	if radiusMeters <= 0 || math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) {
		return nil, fmt.Errorf("radius %v m: %w", radiusMeters, ErrInvalidPlan)
	}
	if n < 2 {
		return nil, fmt.Errorf("%d waypoints: %w", n, ErrInvalidPlan)
	}

	radiusDeg := radiusMeters / geo.MetersPerDegree
	loop := make([]model.Position3D, 0, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		loop = append(loop, model.Position3D{
			Lon: center.Lon + radiusDeg*math.Sin(theta),
			Lat: center.Lat + radiusDeg*math.Cos(theta),
			Alt: center.Alt,
		})
	}
	return loop, nil
}
