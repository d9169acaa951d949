package trail

import "github.com/signalsfoundry/skytrail/model"

// Velocity brackets for trail colouring, in m/s. A boundary value maps
// to the bracket above it: exactly 2 m/s is yellow, not green.
const (
	slowVelocity   = 2.0
	cruiseVelocity = 8.0
	fastVelocity   = 15.0
)

// Width derivation constants. Width grows with altitude so high trails
// stay readable when the camera pulls back.
const (
	baseWidth          = 3.0
	maxWidth           = 8.0
	widthAltitudeScale = 100.0 // metres of altitude per width multiple
)

// ColourForVelocity maps a velocity to its trail colour bracket.
func ColourForVelocity(velocity float64) model.RGB {
	switch {
	case velocity < slowVelocity:
		return model.ColourGreen
	case velocity < cruiseVelocity:
		return model.ColourYellow
	case velocity < fastVelocity:
		return model.ColourOrange
	default:
		return model.ColourRed
	}
}

// WidthForAltitude derives a render width from the destination
// altitude: baseWidth times max(1, altitude/widthAltitudeScale),
// clamped to maxWidth.
func WidthForAltitude(altitude float64) float64 {
	scale := altitude / widthAltitudeScale
	if scale < 1 {
		scale = 1
	}
	w := baseWidth * scale
	if w > maxWidth {
		w = maxWidth
	}
	return w
}
