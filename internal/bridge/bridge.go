package bridge

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartbus/internal/geo"
	"smartbus/internal/location"
	"smartbus/internal/metrics"
)

// ErrSurfaceUnavailable is returned when the rendering surface could not be
// reached at all for this session.
var ErrSurfaceUnavailable = errors.New("bridge: surface unavailable")

// State of the channel's session with the rendering surface.
type State int

const (
	// StateUninitialized: no surface handle yet. The latest user sample is
	// buffered; bus broadcasts are dropped (a new one supersedes them
	// within one cadence period anyway).
	StateUninitialized State = iota
	// StateReady: surface handle acquired, buffered user sample being
	// flushed with initial forced on. Transient.
	StateReady
	// StateActive: every message forwards immediately.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	}
	return "unknown"
}

// Surface is the embedded rendering surface endpoint. It is reachable only
// through message passing; Send posts one encoded message.
type Surface interface {
	Send(data []byte) error
}

// Channel is the asynchronous message bus between the host and the
// rendering surface. It owns the outbound buffer exclusively and guarantees
// that exactly one user message with initial=true is delivered per session,
// as the first user message the surface receives.
type Channel struct {
	sessionID string
	metrics   *metrics.Collector

	mu         sync.Mutex
	state      State
	surface    Surface
	lastUser   *location.Sample // latest-wins buffer; retained for resend
	firstSent  bool
	lastPlaced *geo.Coordinate
	closed     bool
}

func NewChannel(m *metrics.Collector) *Channel {
	c := &Channel{
		sessionID: uuid.NewString(),
		metrics:   m,
		state:     StateUninitialized,
	}
	c.setStateMetric(StateUninitialized)
	return c
}

// SessionID identifies this channel session in logs.
func (c *Channel) SessionID() string { return c.sessionID }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setStateMetric(s State) {
	if c.metrics != nil {
		c.metrics.BridgeState.Set(float64(s))
	}
}

// Attach hands the channel its surface. The buffered user sample, if any,
// is flushed exactly once with initial forced on, then the channel goes
// Active. Attaching twice, or after Close, is a no-op.
func (c *Channel) Attach(surface Surface) {
	c.mu.Lock()
	if c.closed || c.state != StateUninitialized {
		c.mu.Unlock()
		return
	}
	c.surface = surface
	c.state = StateReady
	c.setStateMetric(StateReady)
	buffered := c.lastUser
	c.mu.Unlock()

	if buffered != nil {
		msg := Message{Type: TypeUser, Lat: buffered.Lat, Lng: buffered.Lng, Initial: true}
		if err := c.forward(msg); err == nil {
			c.mu.Lock()
			c.firstSent = true
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	if !c.closed && c.state == StateReady {
		c.state = StateActive
		c.setStateMetric(StateActive)
	}
	c.mu.Unlock()
	log.Printf("bridge %s: surface attached", c.sessionID)
}

// SendUser delivers a location sample toward the surface. While the surface
// is not ready only the most recent sample survives; superseded samples are
// dropped, not queued.
func (c *Channel) SendUser(s location.Sample) {
	if !geo.ValidPair(s.Lat, s.Lng) {
		c.drop("invalid_coords", "user sample lat=%v lng=%v", s.Lat, s.Lng)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.lastUser = &s
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	initial := !c.firstSent
	c.mu.Unlock()

	msg := Message{Type: TypeUser, Lat: s.Lat, Lng: s.Lng, Initial: initial}
	if err := c.forward(msg); err == nil && initial {
		c.mu.Lock()
		c.firstSent = true
		c.mu.Unlock()
	}
}

// SendBuses delivers a wholesale bus broadcast. Broadcasts generated while
// the surface is not ready are stale by the time it appears, so they are
// dropped rather than queued.
func (c *Channel) SendBuses(buses []BusPosition) {
	for _, b := range buses {
		if !geo.ValidPair(b.Lat, b.Lng) {
			c.drop("invalid_coords", "bus %s lat=%v lng=%v", b.ID, b.Lat, b.Lng)
			return
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.state != StateActive {
		c.mu.Unlock()
		c.drop("not_ready", "buses broadcast (%d buses)", len(buses))
		return
	}
	c.mu.Unlock()

	c.forward(Message{Type: TypeBuses, Buses: buses})
}

// ResendUser re-sends the last known user sample with initial forced on,
// recentering the surface on the user. No-op when nothing was sampled yet
// or the surface is not active.
func (c *Channel) ResendUser() {
	c.mu.Lock()
	if c.closed || c.state != StateActive || c.lastUser == nil {
		c.mu.Unlock()
		return
	}
	s := *c.lastUser
	c.mu.Unlock()
	c.forward(Message{Type: TypeUser, Lat: s.Lat, Lng: s.Lng, Initial: true})
}

// HandleInbound processes one payload received from the surface. Malformed
// payloads and unknown types are dropped, never fatal. A placed
// acknowledgment updates last-placed state and triggers no outbound message.
func (c *Channel) HandleInbound(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		c.drop("malformed", "inbound payload: %v", err)
		return
	}
	switch msg.Type {
	case TypePlaced:
		if !geo.ValidPair(msg.Lat, msg.Lng) {
			c.drop("invalid_coords", "placed ack lat=%v lng=%v", msg.Lat, msg.Lng)
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.lastPlaced = &geo.Coordinate{Lat: msg.Lat, Lng: msg.Lng}
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.PlacedAcks.Inc()
		}
	default:
		c.drop("unknown_type", "inbound type %q", msg.Type)
	}
}

// LastPlaced returns where the surface last acknowledged placing the user
// marker.
func (c *Channel) LastPlaced() (geo.Coordinate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastPlaced == nil {
		return geo.Coordinate{}, false
	}
	return *c.lastPlaced, true
}

// LastUser returns the most recent buffered user sample.
func (c *Channel) LastUser() (location.Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastUser == nil {
		return location.Sample{}, false
	}
	return *c.lastUser, true
}

// Close tears the channel down. Idempotent; no completion mutates state
// afterwards.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.surface = nil
}

// forward encodes and posts one message. Transport errors are swallowed:
// the next cadence tick retries with current state, there is no replay
// queue.
func (c *Channel) forward(msg Message) error {
	c.mu.Lock()
	surface := c.surface
	c.mu.Unlock()
	if surface == nil {
		return ErrSurfaceUnavailable
	}

	data, err := Encode(msg)
	if err != nil {
		c.drop("malformed", "encode %s: %v", msg.Type, err)
		return err
	}
	start := time.Now()
	err = surface.Send(data)
	if c.metrics != nil {
		c.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.drop("transport", "send %s: %v", msg.Type, err)
		return err
	}
	if c.metrics != nil {
		c.metrics.MessagesForwarded.WithLabelValues(msg.Type).Inc()
	}
	return nil
}

func (c *Channel) drop(reason, format string, args ...any) {
	if c.metrics != nil {
		c.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	}
	log.Printf("bridge %s: dropped (%s): "+format, append([]any{c.sessionID, reason}, args...)...)
}
