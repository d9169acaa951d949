package model

// Position3D is a georeferenced position: longitude and latitude in
// degrees, altitude in metres above the surface.
type Position3D struct {
	Lon float64
	Lat float64
	Alt float64
}

// At returns a copy of p with the given altitude.
func (p Position3D) At(alt float64) Position3D {
	p.Alt = alt
	return p
}
