// Package trail records the traveled path of simulated vehicles as
// bounded, deduplicated sample sequences and keeps a render surface in
// sync with the visible geometry.
package trail

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/skytrail/model"
)

// Mode selects which geometry representation a store produces.
type Mode int

const (
	// ModePoints records individual positions rendered as one polyline.
	ModePoints Mode = iota
	// ModeSegments records discrete (from, to) pairs, each styled by the
	// motion state that produced it.
	ModeSegments
)

// String returns the config-file spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSegments:
		return "segments"
	default:
		return "points"
	}
}

// ParseMode converts a config-file spelling into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "points", "":
		return ModePoints, nil
	case "segments":
		return ModeSegments, nil
	default:
		return ModePoints, fmt.Errorf("unknown trail mode %q", s)
	}
}

const (
	// MinRecordDistance is the degree-space significance threshold for
	// recording a new entry: about one metre at the latitudes the
	// simulator operates at. Entries closer than this to their
	// predecessor are dropped silently.
	MinRecordDistance = 9e-6

	// MaxPoints bounds a point-mode store.
	MaxPoints = 200
	// MaxSegments bounds a segment-mode store.
	MaxSegments = 300
)

// Stats summarises a store's recorded contents.
type Stats struct {
	Count          int
	DistanceMeters float64 // sum of consecutive/segment distances
	MeanVelocity   float64 // 0 when the store is empty
}

// Geometry is the render payload for one entity's trail. Points is
// populated in point mode, Segments in segment mode.
type Geometry struct {
	Mode     Mode
	Points   []model.TrailPoint
	Segments []model.TrailSegment
}

// Empty reports whether the payload carries no geometry.
func (g Geometry) Empty() bool {
	return len(g.Points) == 0 && len(g.Segments) == 0
}

// Store is one entity's bounded trail container. Two implementations
// exist, selected by Mode: PointStore and SegmentStore. Stores are pure
// data; render synchronisation is the registry's job.
type Store interface {
	// Record feeds one tick's movement into the trail: from is the
	// pre-step position, to the post-step position, velocity the speed
	// that produced the step. Point mode records from; segment mode
	// records the pair. It reports whether an entry was stored; entries
	// under the significance threshold are dropped without error.
	// Non-finite input is rejected with geo.ErrNonFinite.
	Record(from, to model.Position3D, velocity float64) (bool, error)

	// Clear empties the store. Idempotent.
	Clear()

	// SetVisible marks whether render syncs should include this store's
	// geometry. It never mutates recorded data.
	SetVisible(visible bool)
	Visible() bool

	Len() int
	Stats() Stats
	Geometry() Geometry
	Mode() Mode
}

// NewStore builds an empty store for the given mode.
func NewStore(mode Mode) Store {
	if mode == ModeSegments {
		return NewSegmentStore()
	}
	return NewPointStore()
}
