package model

// RGB is an 8-bit-per-channel colour used for trail styling.
type RGB struct {
	R uint8
	G uint8
	B uint8
}

// Trail palette, keyed by velocity bracket.
var (
	ColourGreen  = RGB{R: 0, G: 255, B: 0}
	ColourYellow = RGB{R: 255, G: 255, B: 0}
	ColourOrange = RGB{R: 255, G: 165, B: 0}
	ColourRed    = RGB{R: 255, G: 0, B: 0}
)

// TrailPoint is one recorded path sample, tagged with the velocity
// that produced it. Immutable once stored.
type TrailPoint struct {
	Position Position3D
	Velocity float64 // m/s
}

// TrailSegment is a recorded (from, to) pair with styling derived from
// the motion state at record time. Immutable once stored.
type TrailSegment struct {
	From     Position3D
	To       Position3D
	Velocity float64 // m/s
	Colour   RGB
	Width    float64 // render units
}
