package route

import (
	"context"
	"log"
	"sync"
	"time"

	"smartbus/internal/geo"
	"smartbus/internal/metrics"
)

// MarkerMessage is the simulated bus marker position published on each tick.
type MarkerMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Step      int       `json:"step"`
	Steps     int       `json:"steps"`
	Progress  float64   `json:"progress"`
}

// MarkerPublisher delivers marker positions to whoever renders them.
type MarkerPublisher interface {
	PublishMarker(routeKey string, msg MarkerMessage) error
}

// Tracker drives a Cursor along a fetched route on a fixed cadence and
// publishes the marker position after every tick. The cursor clamps at the
// terminal point; ticks continue (as no-ops) until Stop.
type Tracker struct {
	source   Source
	pub      MarkerPublisher
	interval time.Duration
	routeKey string
	metrics  *metrics.Collector

	mu      sync.Mutex
	cursor  *Cursor
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

func NewTracker(source Source, pub MarkerPublisher, routeKey string, interval time.Duration, m *metrics.Collector) *Tracker {
	return &Tracker{
		source:   source,
		pub:      pub,
		interval: interval,
		routeKey: routeKey,
		metrics:  m,
	}
}

// Start fetches the route and begins ticking. The initial position (the
// first path point) is published immediately; every subsequent publish
// follows a timer tick.
func (t *Tracker) Start(ctx context.Context, origin, destination geo.Coordinate) error {
	path, err := t.source.FetchRoute(ctx, origin, destination)
	if err != nil {
		return err
	}
	cursor, err := NewCursor(path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.cursor = cursor
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	log.Printf("tracker %s: starting with %d points", t.routeKey, cursor.Len())
	t.publishCurrent()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.mu.Lock()
				if t.stopped {
					t.mu.Unlock()
					return
				}
				t.cursor.Tick()
				t.mu.Unlock()
				if t.metrics != nil {
					t.metrics.TrackerTicks.Inc()
				}
				t.publishCurrent()
			}
		}
	}()
	return nil
}

// Reset replaces the tracked path and rewinds to its first point. Used when
// a new origin/destination pair is selected mid-session.
func (t *Tracker) Reset(path Path) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cursor == nil {
		cursor, err := NewCursor(path)
		if err != nil {
			return err
		}
		t.cursor = cursor
		return nil
	}
	return t.cursor.Reset(path)
}

func (t *Tracker) publishCurrent() {
	t.mu.Lock()
	if t.cursor == nil || t.stopped {
		t.mu.Unlock()
		return
	}
	pos := t.cursor.Current()
	step := t.cursor.Index()
	steps := t.cursor.Len()
	t.mu.Unlock()

	progress := 0.0
	if steps > 1 {
		progress = float64(step) / float64(steps-1)
	}
	if t.metrics != nil {
		t.metrics.RouteProgress.Set(progress)
	}
	msg := MarkerMessage{
		Timestamp: time.Now(),
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Step:      step,
		Steps:     steps,
		Progress:  progress,
	}
	if err := t.pub.PublishMarker(t.routeKey, msg); err != nil {
		log.Printf("tracker %s: publish error: %v", t.routeKey, err)
	}
}

// Stop halts the tick loop. Idempotent; no publish happens after it returns.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}
