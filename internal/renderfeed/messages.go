package renderfeed

import "encoding/json"

// Message type constants for the feed protocol.
const (
	TypeTrailUpsert     = "trail_upsert"
	TypeTrailClear      = "trail_clear"
	TypeTrailClearAll   = "trail_clear_all"
	TypeTrailVisibility = "trail_visibility"
	TypeVehicleMoved    = "vehicle_moved"
	TypeVehicleHeading  = "vehicle_heading"
	TypeMarkerRemoved   = "marker_removed"
)

// Envelope wraps every message sent over the feed.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TrailUpsertPayload carries one entity's full visible trail. WKT is
// in lon/lat degrees (EPSG:4326); Mercator holds [x, y] vertices in
// EPSG:3857 metres and is populated in point mode only. Segment mode
// carries its projected coordinates per segment instead.
type TrailUpsertPayload struct {
	EntityID string           `json:"entityId"`
	Mode     string           `json:"mode"`
	WKT      string           `json:"wkt"`
	Mercator [][]float64      `json:"mercator,omitempty"`
	Segments []SegmentPayload `json:"segments,omitempty"`
}

// SegmentPayload is one styled trail segment. From and To are [x, y]
// in EPSG:3857 metres.
type SegmentPayload struct {
	From     []float64 `json:"from"`
	To       []float64 `json:"to"`
	Colour   string    `json:"colour"` // #rrggbb
	Width    float64   `json:"width"`
	Velocity float64   `json:"velocity"` // m/s
}

// TrailClearPayload names the entity whose rendered trail disappears.
type TrailClearPayload struct {
	EntityID string `json:"entityId"`
}

// TrailVisibilityPayload flips the surface-wide trail layer.
type TrailVisibilityPayload struct {
	Visible bool `json:"visible"`
}

// VehicleMovedPayload repositions one vehicle model. Mercator is the
// projected [x, y] in EPSG:3857 metres.
type VehicleMovedPayload struct {
	EntityID string    `json:"entityId"`
	Lon      float64   `json:"lon"`
	Lat      float64   `json:"lat"`
	Alt      float64   `json:"alt"`
	Mercator []float64 `json:"mercator"`
}

// VehicleHeadingPayload rotates one vehicle model.
type VehicleHeadingPayload struct {
	EntityID string  `json:"entityId"`
	Radians  float64 `json:"radians"`
}

// MarkerRemovedPayload removes one vehicle's target marker.
type MarkerRemovedPayload struct {
	EntityID string `json:"entityId"`
}
