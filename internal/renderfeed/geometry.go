package renderfeed

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/signalsfoundry/skytrail/model"
	"github.com/signalsfoundry/skytrail/trail"
)

// newProjection builds the EPSG:4326 -> EPSG:3857 transform used for
// viewport payloads.
func newProjection() func(lon, lat, z float64) (float64, float64, float64) {
	return wgs84.EPSG().Transform(4326, 3857)
}

// trailPayload converts one entity's geometry into its wire form: WKT
// in lon/lat degrees plus web-mercator vertices.
func (h *Hub) trailPayload(entityID string, g trail.Geometry) (TrailUpsertPayload, error) {
	wkt, err := trailWKT(g)
	if err != nil {
		return TrailUpsertPayload{}, fmt.Errorf("entity %s: %w", entityID, err)
	}
	p := TrailUpsertPayload{
		EntityID: entityID,
		Mode:     g.Mode.String(),
		WKT:      wkt,
	}
	switch g.Mode {
	case trail.ModeSegments:
		p.Segments = make([]SegmentPayload, 0, len(g.Segments))
		for _, seg := range g.Segments {
			fx, fy, _ := h.project(seg.From.Lon, seg.From.Lat, 0)
			tx, ty, _ := h.project(seg.To.Lon, seg.To.Lat, 0)
			p.Segments = append(p.Segments, SegmentPayload{
				From:     []float64{fx, fy},
				To:       []float64{tx, ty},
				Colour:   hexColour(seg.Colour),
				Width:    seg.Width,
				Velocity: seg.Velocity,
			})
		}
	default:
		p.Mercator = make([][]float64, 0, len(g.Points))
		for _, pt := range g.Points {
			x, y, _ := h.project(pt.Position.Lon, pt.Position.Lat, 0)
			p.Mercator = append(p.Mercator, []float64{x, y})
		}
	}
	return p, nil
}

// trailWKT renders the geometry as WKT in lon/lat degrees: one
// LINESTRING Z for a point trail, a MULTILINESTRING Z with one member
// per segment for a segment trail. A point trail with fewer than two
// vertices has no polyline yet and renders as the empty linestring.
func trailWKT(g trail.Geometry) (string, error) {
	switch g.Mode {
	case trail.ModeSegments:
		lines := make([]geom.LineString, 0, len(g.Segments))
		for _, seg := range g.Segments {
			seq := geom.NewSequence([]float64{
				seg.From.Lon, seg.From.Lat, seg.From.Alt,
				seg.To.Lon, seg.To.Lat, seg.To.Alt,
			}, geom.DimXYZ)
			ls, err := geom.NewLineString(seq)
			if err != nil {
				return "", fmt.Errorf("building segment linestring: %w", err)
			}
			lines = append(lines, ls)
		}
		return geom.NewMultiLineString(lines).AsText(), nil
	default:
		if len(g.Points) < 2 {
			return geom.LineString{}.AsText(), nil
		}
		coords := make([]float64, 0, len(g.Points)*3)
		for _, pt := range g.Points {
			coords = append(coords, pt.Position.Lon, pt.Position.Lat, pt.Position.Alt)
		}
		seq := geom.NewSequence(coords, geom.DimXYZ)
		ls, err := geom.NewLineString(seq)
		if err != nil {
			return "", fmt.Errorf("building trail linestring: %w", err)
		}
		return ls.AsText(), nil
	}
}

// hexColour renders an RGB in the #rrggbb form web map layers expect.
func hexColour(c model.RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
