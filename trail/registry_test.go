package trail

import (
	"errors"
	"fmt"
	"testing"
)

// captureSurface records every render call for assertions.
type captureSurface struct {
	upserts    []Geometry
	upsertIDs  []string
	clears     []string
	clearAlls  int
	visibility []bool

	failWith error // when set, every call fails
}

func (c *captureSurface) UpsertTrailGeometry(id string, g Geometry) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.upsertIDs = append(c.upsertIDs, id)
	c.upserts = append(c.upserts, g)
	return nil
}

func (c *captureSurface) ClearTrailGeometry(id string) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.clears = append(c.clears, id)
	return nil
}

func (c *captureSurface) ClearAllTrailGeometry() error {
	if c.failWith != nil {
		return c.failWith
	}
	c.clearAlls++
	return nil
}

func (c *captureSurface) SetTrailVisibility(visible bool) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.visibility = append(c.visibility, visible)
	return nil
}

// captureMetrics counts recorder calls.
type captureMetrics struct {
	appends      int
	recorded     int
	syncFailures int
	sizes        map[string]int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{sizes: make(map[string]int)}
}

func (m *captureMetrics) RecordAppend(id string, recorded bool) {
	m.appends++
	if recorded {
		m.recorded++
	}
}
func (m *captureMetrics) RecordSyncFailure(string)      { m.syncFailures++ }
func (m *captureMetrics) SetTrailSize(id string, n int) { m.sizes[id] = n }

func TestRegistryCreateRejectsDuplicate(t *testing.T) {
	r := NewRegistry(ModePoints)

	if _, err := r.Create("veh-1"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := r.Create("veh-1")
	if !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("second Create error = %v, want ErrDuplicateEntity", err)
	}
}

func TestRegistryRecordUnknownEntity(t *testing.T) {
	r := NewRegistry(ModePoints)

	_, err := r.Record("ghost", spaced(0), spaced(1), 5)
	if !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("Record error = %v, want ErrUnknownEntity", err)
	}
}

func TestRegistryRecordSyncsAfterStore(t *testing.T) {
	surface := &captureSurface{}
	r := NewRegistry(ModePoints, WithRenderSurface(surface))
	r.Create("veh-1")

	from, to := spaced(0), spaced(1)
	recorded, err := r.Record("veh-1", from, to, 5)
	if err != nil || !recorded {
		t.Fatalf("Record = (%v, %v), want (true, nil)", recorded, err)
	}

	if len(surface.upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(surface.upserts))
	}
	// The payload must already include the entry that triggered the call.
	g := surface.upserts[0]
	if len(g.Points) != 1 || g.Points[0].Position != from {
		t.Fatalf("synced geometry = %+v, want the recorded point %+v", g.Points, from)
	}
}

func TestRegistryRecordFilteredEntryDoesNotSync(t *testing.T) {
	surface := &captureSurface{}
	r := NewRegistry(ModePoints, WithRenderSurface(surface))
	r.Create("veh-1")

	r.Record("veh-1", spaced(0), spaced(1), 5)
	// Same pre-step position again: filtered, no second sync.
	recorded, err := r.Record("veh-1", spaced(0), spaced(1), 5)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if recorded {
		t.Fatalf("duplicate position recorded, want filtered")
	}
	if len(surface.upserts) != 1 {
		t.Fatalf("got %d upserts, want 1 (no sync for filtered entries)", len(surface.upserts))
	}
}

func TestRegistryHiddenEntityRecordsWithoutSync(t *testing.T) {
	surface := &captureSurface{}
	r := NewRegistry(ModePoints, WithRenderSurface(surface))
	r.Create("veh-1")

	if err := r.SetVisible("veh-1", false); err != nil {
		t.Fatalf("SetVisible: %v", err)
	}
	surface.clears = nil // ignore the hide-triggered clear here

	recorded, err := r.Record("veh-1", spaced(0), spaced(1), 5)
	if err != nil || !recorded {
		t.Fatalf("Record = (%v, %v), want (true, nil)", recorded, err)
	}

	s, _ := r.Get("veh-1")
	if s.Len() != 1 {
		t.Fatalf("hidden store Len() = %d, want 1 (visibility never blocks recording)", s.Len())
	}
	if len(surface.upserts) != 0 {
		t.Fatalf("hidden entity synced %d times, want 0", len(surface.upserts))
	}
}

func TestRegistrySetVisibleShowReupserts(t *testing.T) {
	surface := &captureSurface{}
	r := NewRegistry(ModePoints, WithRenderSurface(surface))
	r.Create("veh-1")
	r.Record("veh-1", spaced(0), spaced(1), 5)

	r.SetVisible("veh-1", false)
	if len(surface.clears) != 1 || surface.clears[0] != "veh-1" {
		t.Fatalf("hide clears = %v, want [veh-1]", surface.clears)
	}

	r.SetVisible("veh-1", true)
	if got := len(surface.upserts); got != 2 {
		t.Fatalf("upserts after re-show = %d, want 2", got)
	}
	if g := surface.upserts[1]; len(g.Points) != 1 {
		t.Fatalf("re-shown geometry has %d points, want 1", len(g.Points))
	}
}

func TestRegistryClearAllBatchesOneRenderCall(t *testing.T) {
	surface := &captureSurface{}
	r := NewRegistry(ModeSegments, WithRenderSurface(surface))

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("veh-%d", i)
		r.Create(id)
		r.Record(id, spaced(0), spaced(1), 5)
	}

	r.ClearAll()

	if surface.clearAlls != 1 {
		t.Fatalf("ClearAllTrailGeometry called %d times, want 1", surface.clearAlls)
	}
	for _, id := range r.Entities() {
		s, _ := r.Get(id)
		if s.Len() != 0 {
			t.Fatalf("store %s not emptied by ClearAll", id)
		}
	}
}

func TestRegistryToggleVisibilityIsOneGlobalCall(t *testing.T) {
	surface := &captureSurface{}
	r := NewRegistry(ModePoints, WithRenderSurface(surface))
	r.Create("veh-1")
	r.Create("veh-2")

	if got := r.ToggleVisibility(); got {
		t.Fatalf("ToggleVisibility() = true, want false after first flip")
	}
	if got := r.ToggleVisibility(); !got {
		t.Fatalf("ToggleVisibility() = false, want true after second flip")
	}

	want := []bool{false, true}
	if len(surface.visibility) != len(want) {
		t.Fatalf("visibility calls = %v, want %v", surface.visibility, want)
	}
	for i, v := range want {
		if surface.visibility[i] != v {
			t.Fatalf("visibility call %d = %v, want %v", i, surface.visibility[i], v)
		}
	}
	if len(surface.upserts) != 0 {
		t.Fatalf("toggle caused %d per-store upserts, want 0", len(surface.upserts))
	}
}

func TestRegistryRemoveClearsRenderAndForgets(t *testing.T) {
	surface := &captureSurface{}
	r := NewRegistry(ModePoints, WithRenderSurface(surface))
	r.Create("veh-1")
	r.Record("veh-1", spaced(0), spaced(1), 5)

	if err := r.Remove("veh-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(surface.clears) != 1 || surface.clears[0] != "veh-1" {
		t.Fatalf("clears = %v, want [veh-1]", surface.clears)
	}
	if _, ok := r.Get("veh-1"); ok {
		t.Fatalf("entity still registered after Remove")
	}
	if err := r.Remove("veh-1"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("second Remove error = %v, want ErrUnknownEntity", err)
	}
}

func TestRegistryRenderFailureNeverCorruptsState(t *testing.T) {
	surface := &captureSurface{failWith: errors.New("surface offline")}
	metrics := newCaptureMetrics()
	r := NewRegistry(ModePoints, WithRenderSurface(surface), WithMetrics(metrics))
	r.Create("veh-1")

	recorded, err := r.Record("veh-1", spaced(0), spaced(1), 5)
	if err != nil {
		t.Fatalf("Record returned render error %v, want nil (logged, not propagated)", err)
	}
	if !recorded {
		t.Fatalf("Record = false, want true despite sync failure")
	}

	s, _ := r.Get("veh-1")
	if s.Len() != 1 {
		t.Fatalf("store Len() = %d after sync failure, want 1", s.Len())
	}
	if metrics.syncFailures != 1 {
		t.Fatalf("syncFailures = %d, want 1", metrics.syncFailures)
	}

	// The registry keeps working afterwards.
	if recorded, err := r.Record("veh-1", spaced(1), spaced(2), 5); err != nil || !recorded {
		t.Fatalf("subsequent Record = (%v, %v), want (true, nil)", recorded, err)
	}
}

func TestRegistryMetricsSeeFilteredAppends(t *testing.T) {
	metrics := newCaptureMetrics()
	r := NewRegistry(ModePoints, WithMetrics(metrics))
	r.Create("veh-1")

	r.Record("veh-1", spaced(0), spaced(1), 5)
	r.Record("veh-1", spaced(0), spaced(1), 5) // filtered

	if metrics.appends != 2 || metrics.recorded != 1 {
		t.Fatalf("appends/recorded = %d/%d, want 2/1", metrics.appends, metrics.recorded)
	}
	if got := metrics.sizes["veh-1"]; got != 1 {
		t.Fatalf("last reported size = %d, want 1", got)
	}
}
