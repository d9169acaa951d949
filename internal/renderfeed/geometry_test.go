package renderfeed

import (
	"strings"
	"testing"

	"github.com/signalsfoundry/skytrail/model"
	"github.com/signalsfoundry/skytrail/trail"
)

func TestTrailWKTPoints(t *testing.T) {
	g := trail.Geometry{
		Mode: trail.ModePoints,
		Points: []model.TrailPoint{
			{Position: model.Position3D{Lon: 30, Lat: 45, Alt: 100}},
			{Position: model.Position3D{Lon: 31, Lat: 46, Alt: 110}},
		},
	}
	wkt, err := trailWKT(g)
	if err != nil {
		t.Fatalf("trailWKT: %v", err)
	}
	if !strings.HasPrefix(wkt, "LINESTRING Z") {
		t.Fatalf("wkt = %q, want LINESTRING Z prefix", wkt)
	}
	for _, vertex := range []string{"30 45 100", "31 46 110"} {
		if !strings.Contains(wkt, vertex) {
			t.Fatalf("wkt = %q, missing vertex %q", wkt, vertex)
		}
	}
}

// A freshly bootstrapped trail holds a single point, which is not
// enough for a polyline; its WKT must be the empty linestring rather
// than an error.
func TestTrailWKTSinglePointIsEmptyLinestring(t *testing.T) {
	g := trail.Geometry{
		Mode: trail.ModePoints,
		Points: []model.TrailPoint{
			{Position: model.Position3D{Lon: 30, Lat: 45, Alt: 100}},
		},
	}
	wkt, err := trailWKT(g)
	if err != nil {
		t.Fatalf("trailWKT: %v", err)
	}
	if !strings.Contains(wkt, "EMPTY") {
		t.Fatalf("wkt = %q, want an empty linestring", wkt)
	}

	if _, err := NewHub().trailPayload("veh-1", g); err != nil {
		t.Fatalf("trailPayload: %v", err)
	}
}

func TestTrailWKTSegments(t *testing.T) {
	g := trail.Geometry{
		Mode: trail.ModeSegments,
		Segments: []model.TrailSegment{
			{
				From: model.Position3D{Lon: 30, Lat: 45, Alt: 100},
				To:   model.Position3D{Lon: 30.5, Lat: 45, Alt: 100},
			},
			{
				From: model.Position3D{Lon: 30.5, Lat: 45, Alt: 100},
				To:   model.Position3D{Lon: 31, Lat: 45, Alt: 100},
			},
		},
	}
	wkt, err := trailWKT(g)
	if err != nil {
		t.Fatalf("trailWKT: %v", err)
	}
	if !strings.HasPrefix(wkt, "MULTILINESTRING Z") {
		t.Fatalf("wkt = %q, want MULTILINESTRING Z prefix", wkt)
	}
	for _, vertex := range []string{"30 45 100", "30.5 45 100", "31 45 100"} {
		if !strings.Contains(wkt, vertex) {
			t.Fatalf("wkt = %q, missing vertex %q", wkt, vertex)
		}
	}
}

func TestProjectionWebMercator(t *testing.T) {
	h := NewHub()

	x, y, _ := h.project(0, 0, 0)
	if x > 0.5 || x < -0.5 || y > 0.5 || y < -0.5 {
		t.Fatalf("origin projects to (%v, %v), want about (0, 0)", x, y)
	}

	x, y, _ = h.project(30, 45, 0)
	wantX, wantY := 3339584.7237982065, 5621521.486192335
	if dx := x - wantX; dx > 0.5 || dx < -0.5 {
		t.Fatalf("x = %v, want about %v", x, wantX)
	}
	if dy := y - wantY; dy > 0.5 || dy < -0.5 {
		t.Fatalf("y = %v, want about %v", y, wantY)
	}
}

func TestHexColour(t *testing.T) {
	cases := []struct {
		colour model.RGB
		want   string
	}{
		{model.ColourGreen, "#00ff00"},
		{model.ColourYellow, "#ffff00"},
		{model.ColourOrange, "#ffa500"},
		{model.ColourRed, "#ff0000"},
	}
	for _, tc := range cases {
		if got := hexColour(tc.colour); got != tc.want {
			t.Fatalf("hexColour(%+v) = %q, want %q", tc.colour, got, tc.want)
		}
	}
}
