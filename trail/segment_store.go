package trail

import (
	"fmt"
	"math"
	"sync"

	"github.com/signalsfoundry/skytrail/geo"
	"github.com/signalsfoundry/skytrail/model"
)

// SegmentStore records discrete (from, to) pairs with styling derived
// from the motion state at record time. It holds at most MaxSegments
// entries; older entries are evicted FIFO.
type SegmentStore struct {
	mu       sync.Mutex
	segments []model.TrailSegment
	visible  bool
	limit    int
}

// NewSegmentStore returns an empty, visible segment-mode store.
func NewSegmentStore() *SegmentStore {
	return &SegmentStore{visible: true, limit: MaxSegments}
}

// AppendSegment records the (from, to) pair tagged with velocity.
// Segments shorter than MinRecordDistance in degree space are dropped
// silently; a pair that collapses to a single point falls under the
// same filter. Accepted segments get their colour from the velocity
// bracket and their width from the destination altitude.
func (s *SegmentStore) AppendSegment(from, to model.Position3D, velocity float64) (bool, error) {
	if err := validateRecord(from, to, velocity); err != nil {
		return false, err
	}

	if geo.Distance(from, to) <= MinRecordDistance {
		return false, nil
	}

	seg := model.TrailSegment{
		From:     from,
		To:       to,
		Velocity: velocity,
		Colour:   ColourForVelocity(velocity),
		Width:    WidthForAltitude(to.Alt),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
	if len(s.segments) > s.limit {
		s.segments = s.segments[1:]
	}
	return true, nil
}

// Record implements Store. Segment mode records the pair directly.
func (s *SegmentStore) Record(from, to model.Position3D, velocity float64) (bool, error) {
	return s.AppendSegment(from, to, velocity)
}

// Clear implements Store.
func (s *SegmentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = nil
}

// SetVisible implements Store.
func (s *SegmentStore) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
}

// Visible implements Store.
func (s *SegmentStore) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Len implements Store.
func (s *SegmentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Segments returns a copy of the recorded segments in insertion order.
func (s *SegmentStore) Segments() []model.TrailSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TrailSegment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Stats implements Store.
func (s *SegmentStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Count: len(s.segments)}
	if st.Count == 0 {
		return st
	}
	var velocitySum float64
	for _, seg := range s.segments {
		velocitySum += seg.Velocity
		st.DistanceMeters += geo.DistanceMeters(seg.From, seg.To)
	}
	st.MeanVelocity = velocitySum / float64(st.Count)
	return st
}

// Geometry implements Store.
func (s *SegmentStore) Geometry() Geometry {
	return Geometry{Mode: ModeSegments, Segments: s.Segments()}
}

// Mode implements Store.
func (s *SegmentStore) Mode() Mode { return ModeSegments }

// validateRecord rejects non-finite positions and velocities at the
// recording boundary so they never reach stored state.
func validateRecord(from, to model.Position3D, velocity float64) error {
	if err := geo.Validate(from); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if err := geo.Validate(to); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	if math.IsNaN(velocity) || math.IsInf(velocity, 0) {
		return fmt.Errorf("velocity=%v: %w", velocity, geo.ErrNonFinite)
	}
	return nil
}
