package renderfeed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/skytrail/model"
	"github.com/signalsfoundry/skytrail/sim"
	"github.com/signalsfoundry/skytrail/trail"
)

// Compile-time interface checks.
var (
	_ trail.RenderSurface = (*Hub)(nil)
	_ sim.AssetProvider   = (*Hub)(nil)
	_ http.Handler        = (*Hub)(nil)
)

type captureMetrics struct {
	mu         sync.Mutex
	clients    []int
	broadcasts int
	dropped    int
}

func (m *captureMetrics) SetConnectedClients(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append(m.clients, count)
}

func (m *captureMetrics) ObserveBroadcast(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts++
}

func (m *captureMetrics) IncDroppedFrames() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *captureMetrics) droppedFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *captureMetrics) broadcastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcasts
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing feed: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForClients polls until the hub sees the wanted client count. The
// hub registers a client after the handshake, so a successful dial can
// briefly precede registration.
func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return env
}

func TestHubBroadcastsTrailUpsert(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dialFeed(t, srv)
	waitForClients(t, h, 1)

	g := trail.Geometry{
		Mode: trail.ModePoints,
		Points: []model.TrailPoint{
			{Position: model.Position3D{Lon: 30, Lat: 45, Alt: 100}, Velocity: 2},
			{Position: model.Position3D{Lon: 31, Lat: 46, Alt: 110}, Velocity: 2},
		},
	}
	if err := h.UpsertTrailGeometry("veh-1", g); err != nil {
		t.Fatalf("UpsertTrailGeometry: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != TypeTrailUpsert {
		t.Fatalf("envelope type = %q, want %q", env.Type, TypeTrailUpsert)
	}
	var p TrailUpsertPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.EntityID != "veh-1" {
		t.Fatalf("entity = %q, want veh-1", p.EntityID)
	}
	if p.Mode != "points" {
		t.Fatalf("mode = %q, want points", p.Mode)
	}
	if !strings.HasPrefix(p.WKT, "LINESTRING Z") {
		t.Fatalf("wkt = %q, want LINESTRING Z prefix", p.WKT)
	}
	if len(p.Segments) != 0 {
		t.Fatalf("segments = %d, want 0 in point mode", len(p.Segments))
	}
	if len(p.Mercator) != 2 {
		t.Fatalf("mercator vertices = %d, want 2", len(p.Mercator))
	}
	// Web-mercator x of 30 degrees east, y of 45 degrees north.
	wantX, wantY := 3339584.7237982065, 5621521.486192335
	if dx := p.Mercator[0][0] - wantX; dx > 0.5 || dx < -0.5 {
		t.Fatalf("mercator x = %v, want about %v", p.Mercator[0][0], wantX)
	}
	if dy := p.Mercator[0][1] - wantY; dy > 0.5 || dy < -0.5 {
		t.Fatalf("mercator y = %v, want about %v", p.Mercator[0][1], wantY)
	}
}

func TestHubBroadcastsSegmentStyling(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dialFeed(t, srv)
	waitForClients(t, h, 1)

	g := trail.Geometry{
		Mode: trail.ModeSegments,
		Segments: []model.TrailSegment{
			{
				From:     model.Position3D{Lon: 30, Lat: 45, Alt: 100},
				To:       model.Position3D{Lon: 30.001, Lat: 45, Alt: 100},
				Velocity: 1.5,
				Colour:   model.ColourGreen,
				Width:    3,
			},
		},
	}
	if err := h.UpsertTrailGeometry("veh-2", g); err != nil {
		t.Fatalf("UpsertTrailGeometry: %v", err)
	}

	env := readEnvelope(t, conn)
	var p TrailUpsertPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.Mode != "segments" {
		t.Fatalf("mode = %q, want segments", p.Mode)
	}
	if !strings.HasPrefix(p.WKT, "MULTILINESTRING Z") {
		t.Fatalf("wkt = %q, want MULTILINESTRING Z prefix", p.WKT)
	}
	if len(p.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(p.Segments))
	}
	seg := p.Segments[0]
	if seg.Colour != "#00ff00" {
		t.Fatalf("colour = %q, want #00ff00", seg.Colour)
	}
	if seg.Width != 3 {
		t.Fatalf("width = %v, want 3", seg.Width)
	}
	if seg.Velocity != 1.5 {
		t.Fatalf("velocity = %v, want 1.5", seg.Velocity)
	}
	if len(seg.From) != 2 || len(seg.To) != 2 {
		t.Fatalf("segment endpoints = %d/%d values, want 2/2", len(seg.From), len(seg.To))
	}
}

func TestHubFansOutToAllClients(t *testing.T) {
	h, srv := newTestHub(t)
	first := dialFeed(t, srv)
	second := dialFeed(t, srv)
	waitForClients(t, h, 2)

	if err := h.SetTrailVisibility(false); err != nil {
		t.Fatalf("SetTrailVisibility: %v", err)
	}

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		if env.Type != TypeTrailVisibility {
			t.Fatalf("envelope type = %q, want %q", env.Type, TypeTrailVisibility)
		}
		var p TrailVisibilityPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if p.Visible {
			t.Fatal("visible = true, want false")
		}
	}
}

func TestAssetAndMarkerBroadcasts(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dialFeed(t, srv)
	waitForClients(t, h, 1)

	asset := h.VehicleAsset("veh-9")
	if err := asset.SetHeading(1.25); err != nil {
		t.Fatalf("SetHeading: %v", err)
	}
	if err := asset.Reposition(30, 45, 120); err != nil {
		t.Fatalf("Reposition: %v", err)
	}
	if err := h.TargetMarker("veh-9").Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != TypeVehicleHeading {
		t.Fatalf("first envelope = %q, want %q", env.Type, TypeVehicleHeading)
	}
	var hp VehicleHeadingPayload
	if err := json.Unmarshal(env.Payload, &hp); err != nil {
		t.Fatalf("decoding heading payload: %v", err)
	}
	if hp.EntityID != "veh-9" || hp.Radians != 1.25 {
		t.Fatalf("heading payload = %+v", hp)
	}

	env = readEnvelope(t, conn)
	if env.Type != TypeVehicleMoved {
		t.Fatalf("second envelope = %q, want %q", env.Type, TypeVehicleMoved)
	}
	var mp VehicleMovedPayload
	if err := json.Unmarshal(env.Payload, &mp); err != nil {
		t.Fatalf("decoding moved payload: %v", err)
	}
	if mp.EntityID != "veh-9" || mp.Lon != 30 || mp.Lat != 45 || mp.Alt != 120 {
		t.Fatalf("moved payload = %+v", mp)
	}
	if len(mp.Mercator) != 2 {
		t.Fatalf("mercator = %d values, want 2", len(mp.Mercator))
	}

	env = readEnvelope(t, conn)
	if env.Type != TypeMarkerRemoved {
		t.Fatalf("third envelope = %q, want %q", env.Type, TypeMarkerRemoved)
	}
}

func TestBroadcastDropsWhenClientQueueFull(t *testing.T) {
	rec := &captureMetrics{}
	h := NewHub(WithMetrics(rec))

	// A client with a tiny queue and no write loop stands in for a
	// stalled peer.
	c := &client{send: make(chan []byte, 1), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if err := h.SetTrailVisibility(true); err != nil {
		t.Fatalf("SetTrailVisibility: %v", err)
	}
	if err := h.SetTrailVisibility(false); err != nil {
		t.Fatalf("SetTrailVisibility: %v", err)
	}

	if got := rec.droppedFrames(); got != 1 {
		t.Fatalf("dropped frames = %d, want 1", got)
	}
	if got := rec.broadcastCount(); got != 2 {
		t.Fatalf("broadcasts = %d, want 2", got)
	}
}

func TestRegistrySyncReachesClients(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dialFeed(t, srv)
	waitForClients(t, h, 1)

	reg := trail.NewRegistry(trail.ModePoints, trail.WithRenderSurface(h))
	if _, err := reg.Create("veh-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	from := model.Position3D{Lon: 30, Lat: 45, Alt: 100}
	to := model.Position3D{Lon: 30.001, Lat: 45, Alt: 100}
	recorded, err := reg.Record("veh-1", from, to, 2)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !recorded {
		t.Fatal("movement was filtered, want recorded")
	}

	env := readEnvelope(t, conn)
	if env.Type != TypeTrailUpsert {
		t.Fatalf("envelope type = %q, want %q", env.Type, TypeTrailUpsert)
	}
	var p TrailUpsertPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.EntityID != "veh-1" {
		t.Fatalf("entity = %q, want veh-1", p.EntityID)
	}
	if len(p.Mercator) != 1 {
		t.Fatalf("mercator vertices = %d, want 1", len(p.Mercator))
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dialFeed(t, srv)
	waitForClients(t, h, 1)

	h.Close()

	if got := h.ClientCount(); got != 0 {
		t.Fatalf("client count after close = %d, want 0", got)
	}
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded after hub close, want error")
	}
}

func TestClientDisconnectUpdatesCount(t *testing.T) {
	h, srv := newTestHub(t)
	keep := dialFeed(t, srv)
	drop := dialFeed(t, srv)
	waitForClients(t, h, 2)

	drop.Close()
	waitForClients(t, h, 1)

	// The surviving client still receives broadcasts.
	if err := h.ClearAllTrailGeometry(); err != nil {
		t.Fatalf("ClearAllTrailGeometry: %v", err)
	}
	env := readEnvelope(t, keep)
	if env.Type != TypeTrailClearAll {
		t.Fatalf("envelope type = %q, want %q", env.Type, TypeTrailClearAll)
	}
}
