package trail

import (
	"sync"

	"github.com/signalsfoundry/skytrail/geo"
	"github.com/signalsfoundry/skytrail/model"
)

// PointStore records individual positions for polyline rendering.
// It holds at most MaxPoints entries; older entries are evicted FIFO.
type PointStore struct {
	mu      sync.Mutex
	points  []model.TrailPoint
	visible bool
	limit   int
}

// NewPointStore returns an empty, visible point-mode store.
func NewPointStore() *PointStore {
	return &PointStore{visible: true, limit: MaxPoints}
}

// Append records p with no velocity tag. The first call always stores
// its input; later calls are silent no-ops when p is within
// MinRecordDistance of the last stored point.
func (s *PointStore) Append(p model.Position3D) (bool, error) {
	return s.append(p, 0)
}

// Record implements Store. Point mode stores the pre-step position,
// tagged with the velocity that produced the step.
func (s *PointStore) Record(from, to model.Position3D, velocity float64) (bool, error) {
	if err := validateRecord(from, to, velocity); err != nil {
		return false, err
	}
	return s.append(from, velocity)
}

func (s *PointStore) append(p model.Position3D, velocity float64) (bool, error) {
	if err := geo.Validate(p); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.points); n > 0 {
		if geo.Distance(s.points[n-1].Position, p) <= MinRecordDistance {
			return false, nil
		}
	}

	s.points = append(s.points, model.TrailPoint{Position: p, Velocity: velocity})
	if len(s.points) > s.limit {
		s.points = s.points[1:]
	}
	return true, nil
}

// Clear implements Store.
func (s *PointStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = nil
}

// SetVisible implements Store.
func (s *PointStore) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
}

// Visible implements Store.
func (s *PointStore) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Len implements Store.
func (s *PointStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Points returns a copy of the recorded points in insertion order.
func (s *PointStore) Points() []model.TrailPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TrailPoint, len(s.points))
	copy(out, s.points)
	return out
}

// Stats implements Store.
func (s *PointStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Count: len(s.points)}
	if st.Count == 0 {
		return st
	}
	var velocitySum float64
	for i, p := range s.points {
		velocitySum += p.Velocity
		if i > 0 {
			st.DistanceMeters += geo.DistanceMeters(s.points[i-1].Position, p.Position)
		}
	}
	st.MeanVelocity = velocitySum / float64(st.Count)
	return st
}

// Geometry implements Store.
func (s *PointStore) Geometry() Geometry {
	return Geometry{Mode: ModePoints, Points: s.Points()}
}

// Mode implements Store.
func (s *PointStore) Mode() Mode { return ModePoints }
