package model

// VehicleState is the live kinematic state of one simulated vehicle.
// The stepper borrows it for the duration of a maneuver; it never takes
// ownership.
type VehicleState struct {
	ID string

	Lon float64 // degrees
	Lat float64 // degrees
	Alt float64 // metres

	VerticalSpeed float64 // m/s, used for altitude glides
	MoveFrequency float64 // Hz, tick rate of movement loops
}

// Position returns the vehicle's current position as a value.
func (v *VehicleState) Position() Position3D {
	return Position3D{Lon: v.Lon, Lat: v.Lat, Alt: v.Alt}
}

// SetPosition commits a new position to the vehicle state.
func (v *VehicleState) SetPosition(p Position3D) {
	v.Lon = p.Lon
	v.Lat = p.Lat
	v.Alt = p.Alt
}
