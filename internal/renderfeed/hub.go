// Package renderfeed streams render-surface updates to websocket
// clients as JSON envelopes. A Hub is the fleet's live map layer:
// trail geometry, vehicle repositions and target markers all flow
// through it to whoever is connected.
package renderfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/skytrail/internal/logging"
	"github.com/signalsfoundry/skytrail/nav"
	"github.com/signalsfoundry/skytrail/trail"
)

const tracerName = "github.com/signalsfoundry/skytrail/internal/renderfeed"

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// sendBuffer is the per-client frame queue. A full queue drops the
	// frame; the hub never blocks the tick loop on a slow client.
	sendBuffer = 256
)

// MetricsRecorder counts feed activity. Implementations must be safe
// for concurrent use.
type MetricsRecorder interface {
	// SetConnectedClients reports the current client count.
	SetConnectedClients(count int)
	// ObserveBroadcast records one fan-out and its duration.
	ObserveBroadcast(d time.Duration)
	// IncDroppedFrames counts a frame lost to a full client queue.
	IncDroppedFrames()
}

type nopMetrics struct{}

func (nopMetrics) SetConnectedClients(int)        {}
func (nopMetrics) ObserveBroadcast(time.Duration) {}
func (nopMetrics) IncDroppedFrames()              {}

// Hub fans render updates out to connected websocket clients. It is a
// trail render surface and an asset provider at the same time, so a
// world wired to a hub streams every visual change it produces.
type Hub struct {
	upgrader websocket.Upgrader
	project  func(lon, lat, z float64) (float64, float64, float64)
	tracer   trace.Tracer

	mu      sync.Mutex
	clients map[*client]struct{}

	metrics MetricsRecorder
	log     logging.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMetrics wires a feed activity recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewHub constructs a hub with no connected clients.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		project:  newProjection(),
		tracer:   otel.Tracer(tracerName),
		clients:  make(map[*client]struct{}),
		metrics:  nopMetrics{},
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// ServeHTTP upgrades the request and streams feed envelopes to the
// peer until it disconnects. One span covers the whole session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Feed/ClientSession",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("client_addr", r.RemoteAddr)),
	)
	defer span.End()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		span.RecordError(err)
		h.log.Warn(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.addClient(ctx, c)
	defer h.removeClient(ctx, c)

	go c.writeLoop()
	c.readLoop()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. The hub stays usable; later
// broadcasts simply reach an empty client set.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.metrics.SetConnectedClients(0)
}

// UpsertTrailGeometry broadcasts one entity's full visible trail.
func (h *Hub) UpsertTrailGeometry(entityID string, g trail.Geometry) error {
	p, err := h.trailPayload(entityID, g)
	if err != nil {
		return err
	}
	return h.broadcast(TypeTrailUpsert, p)
}

// ClearTrailGeometry broadcasts the removal of one entity's trail.
func (h *Hub) ClearTrailGeometry(entityID string) error {
	return h.broadcast(TypeTrailClear, TrailClearPayload{EntityID: entityID})
}

// ClearAllTrailGeometry broadcasts a single wipe of every trail.
func (h *Hub) ClearAllTrailGeometry() error {
	return h.broadcast(TypeTrailClearAll, nil)
}

// SetTrailVisibility broadcasts the surface-wide visibility flag.
func (h *Hub) SetTrailVisibility(visible bool) error {
	return h.broadcast(TypeTrailVisibility, TrailVisibilityPayload{Visible: visible})
}

// VehicleAsset returns an asset whose reposition and heading calls
// broadcast to the feed.
func (h *Hub) VehicleAsset(entityID string) nav.VehicleAsset {
	return &feedAsset{hub: h, entityID: entityID}
}

// TargetMarker returns a marker whose removal broadcasts to the feed.
func (h *Hub) TargetMarker(entityID string) nav.TargetMarker {
	return &feedMarker{hub: h, entityID: entityID}
}

// broadcast marshals one envelope and queues it to every connected
// client. Dropped frames are counted, never retried.
func (h *Hub) broadcast(msgType string, payload any) error {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling %s envelope: %w", msgType, err)
	}

	started := time.Now()
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range clients {
		if !c.enqueue(frame) {
			dropped++
			h.metrics.IncDroppedFrames()
		}
	}
	h.metrics.ObserveBroadcast(time.Since(started))

	if dropped > 0 {
		h.log.Warn(context.Background(), "feed frames dropped",
			logging.String("type", msgType),
			logging.Int("dropped", dropped),
		)
	}
	return nil
}

func (h *Hub) addClient(ctx context.Context, c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetConnectedClients(n)
	h.log.Info(ctx, "feed client connected", logging.Int("clients", n))
}

func (h *Hub) removeClient(ctx context.Context, c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	h.metrics.SetConnectedClients(n)
	h.log.Info(ctx, "feed client disconnected", logging.Int("clients", n))
}

type feedAsset struct {
	hub      *Hub
	entityID string
}

func (a *feedAsset) Reposition(lon, lat, alt float64) error {
	x, y, _ := a.hub.project(lon, lat, 0)
	return a.hub.broadcast(TypeVehicleMoved, VehicleMovedPayload{
		EntityID: a.entityID,
		Lon:      lon,
		Lat:      lat,
		Alt:      alt,
		Mercator: []float64{x, y},
	})
}

func (a *feedAsset) SetHeading(radians float64) error {
	return a.hub.broadcast(TypeVehicleHeading, VehicleHeadingPayload{
		EntityID: a.entityID,
		Radians:  radians,
	})
}

type feedMarker struct {
	hub      *Hub
	entityID string
}

func (m *feedMarker) Remove() error {
	return m.hub.broadcast(TypeMarkerRemoved, MarkerRemovedPayload{EntityID: m.entityID})
}

// client is one websocket session. Writes go through a buffered queue
// so a stalled peer can only lose frames, never back up the hub.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// enqueue hands a frame to the client without blocking.
func (c *client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readLoop drains the connection until it errors. The feed is one-way;
// inbound frames are discarded, but reading is what surfaces close
// frames and dead peers.
func (c *client) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.close()
			return
		}
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.Close()
}
