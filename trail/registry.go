package trail

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/skytrail/internal/logging"
	"github.com/signalsfoundry/skytrail/model"
)

// Registry errors.
var (
	ErrDuplicateEntity = errors.New("entity already registered")
	ErrUnknownEntity   = errors.New("entity not registered")
)

// RenderSurface is the registry's view of the map layer. Calls are
// fire-and-forget: a failure is logged and counted, never propagated
// into store state.
type RenderSurface interface {
	// UpsertTrailGeometry replaces the rendered trail for one entity.
	UpsertTrailGeometry(entityID string, g Geometry) error
	// ClearTrailGeometry removes one entity's rendered trail.
	ClearTrailGeometry(entityID string) error
	// ClearAllTrailGeometry removes every rendered trail in one call.
	ClearAllTrailGeometry() error
	// SetTrailVisibility flips the surface-wide trail visibility.
	SetTrailVisibility(visible bool) error
}

// NopSurface is a RenderSurface that does nothing. It is the default
// when no surface is wired, and useful in tests.
type NopSurface struct{}

func (NopSurface) UpsertTrailGeometry(string, Geometry) error { return nil }
func (NopSurface) ClearTrailGeometry(string) error            { return nil }
func (NopSurface) ClearAllTrailGeometry() error               { return nil }
func (NopSurface) SetTrailVisibility(bool) error              { return nil }

// MetricsRecorder receives trail activity counts. Implementations must
// be safe for concurrent use.
type MetricsRecorder interface {
	// RecordAppend counts one Record call; recorded tells whether the
	// entry passed the significance filter.
	RecordAppend(entityID string, recorded bool)
	// RecordSyncFailure counts a failed render-surface call.
	RecordSyncFailure(entityID string)
	// SetTrailSize reports the store's current length.
	SetTrailSize(entityID string, size int)
}

type nopMetrics struct{}

func (nopMetrics) RecordAppend(string, bool) {}
func (nopMetrics) RecordSyncFailure(string)  {}
func (nopMetrics) SetTrailSize(string, int)  {}

// Registry maps entity IDs to trail stores and keeps the render
// surface in sync with their visible geometry. The registry-wide
// visibility flag is an explicit field here; there is no package-level
// state, so independent registries can coexist in one process.
type Registry struct {
	mu      sync.RWMutex
	mode    Mode
	visible bool
	stores  map[string]Store

	surface RenderSurface
	metrics MetricsRecorder
	log     logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithRenderSurface wires the surface that receives geometry updates.
func WithRenderSurface(s RenderSurface) Option {
	return func(r *Registry) {
		if s != nil {
			r.surface = s
		}
	}
}

// WithMetrics wires a trail activity recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry constructs an empty registry whose stores produce the
// given geometry mode. Trails start visible.
func NewRegistry(mode Mode, opts ...Option) *Registry {
	r := &Registry{
		mode:    mode,
		visible: true,
		stores:  make(map[string]Store),
		surface: NopSurface{},
		metrics: nopMetrics{},
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new entity and returns its store. It returns an
// error if the ID is already registered.
func (r *Registry) Create(id string) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[id]; exists {
		return nil, fmt.Errorf("entity %q: %w", id, ErrDuplicateEntity)
	}
	s := NewStore(r.mode)
	r.stores[id] = s
	return s, nil
}

// Get returns the store for an entity, if registered.
func (r *Registry) Get(id string) (Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	return s, ok
}

// Entities returns a snapshot of the registered entity IDs.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	return ids
}

// Record feeds one tick's movement into an entity's trail and, when an
// entry was stored and the trail is visible at both levels, pushes the
// updated geometry to the render surface. The store mutation is
// committed before the surface is notified, so the surface never sees
// a payload missing the entry that triggered the call.
func (r *Registry) Record(id string, from, to model.Position3D, velocity float64) (bool, error) {
	r.mu.RLock()
	s, ok := r.stores[id]
	visible := r.visible
	r.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("entity %q: %w", id, ErrUnknownEntity)
	}

	recorded, err := s.Record(from, to, velocity)
	if err != nil {
		return false, err
	}

	r.metrics.RecordAppend(id, recorded)
	r.metrics.SetTrailSize(id, s.Len())

	if recorded && visible && s.Visible() {
		r.syncUpsert(id, s)
	}
	return recorded, nil
}

// Clear empties one entity's trail and clears its rendered geometry.
func (r *Registry) Clear(id string) error {
	r.mu.RLock()
	s, ok := r.stores[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("entity %q: %w", id, ErrUnknownEntity)
	}

	s.Clear()
	r.metrics.SetTrailSize(id, 0)
	if err := r.surface.ClearTrailGeometry(id); err != nil {
		r.syncFailed(id, "clear", err)
	}
	return nil
}

// ClearAll empties every store, then issues one aggregated clear to the
// render surface rather than one call per store.
func (r *Registry) ClearAll() {
	r.mu.RLock()
	stores := make(map[string]Store, len(r.stores))
	for id, s := range r.stores {
		stores[id] = s
	}
	r.mu.RUnlock()

	for id, s := range stores {
		s.Clear()
		r.metrics.SetTrailSize(id, 0)
	}
	if err := r.surface.ClearAllTrailGeometry(); err != nil {
		r.syncFailed("*", "clear-all", err)
	}
}

// Remove deregisters an entity, discarding its store, and clears its
// rendered geometry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.stores[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("entity %q: %w", id, ErrUnknownEntity)
	}
	delete(r.stores, id)
	r.mu.Unlock()

	if err := r.surface.ClearTrailGeometry(id); err != nil {
		r.syncFailed(id, "remove", err)
	}
	return nil
}

// ToggleVisibility flips the registry-wide visibility flag and reports
// the new state. The surface gets a single global visibility call, not
// a per-store recompute.
func (r *Registry) ToggleVisibility() bool {
	r.mu.Lock()
	r.visible = !r.visible
	v := r.visible
	r.mu.Unlock()

	if err := r.surface.SetTrailVisibility(v); err != nil {
		r.syncFailed("*", "visibility", err)
	}
	return v
}

// Visible reports the registry-wide visibility flag.
func (r *Registry) Visible() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.visible
}

// SetVisible flips one entity's visibility flag. Hiding clears the
// entity's rendered geometry; showing re-upserts it (when the
// registry-wide flag allows).
func (r *Registry) SetVisible(id string, visible bool) error {
	r.mu.RLock()
	s, ok := r.stores[id]
	registryVisible := r.visible
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("entity %q: %w", id, ErrUnknownEntity)
	}

	s.SetVisible(visible)
	if !visible {
		if err := r.surface.ClearTrailGeometry(id); err != nil {
			r.syncFailed(id, "hide", err)
		}
	} else if registryVisible {
		r.syncUpsert(id, s)
	}
	return nil
}

// Mode reports the geometry mode this registry's stores produce.
func (r *Registry) Mode() Mode { return r.mode }

func (r *Registry) syncUpsert(id string, s Store) {
	if err := r.surface.UpsertTrailGeometry(id, s.Geometry()); err != nil {
		r.syncFailed(id, "upsert", err)
	}
}

// syncFailed records a render-surface failure. Store state is already
// committed by the time any surface call is made, so the worst case is
// a stale rendered trail, never a corrupted one.
func (r *Registry) syncFailed(id, op string, err error) {
	r.metrics.RecordSyncFailure(id)
	r.log.Warn(context.Background(), "render sync failed",
		logging.String("entity", id),
		logging.String("op", op),
		logging.Err(err),
	)
}
