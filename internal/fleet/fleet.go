package fleet

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"smartbus/internal/bridge"
	"smartbus/internal/geo"
	"smartbus/internal/metrics"
)

// Bus is one fleet member with its home coordinate. Broadcast positions
// jitter around home.
type Bus struct {
	ID   string
	Name string
	Home geo.Coordinate
}

// DefaultFleet is the built-in demo fleet used when no registry is
// configured.
func DefaultFleet() []Bus {
	return []Bus{
		{ID: "b1", Name: "Bus 1", Home: geo.Coordinate{Lat: 19.07, Lng: 72.87}},
		{ID: "b2", Name: "Bus 2", Home: geo.Coordinate{Lat: 19.2, Lng: 72.9}},
	}
}

// Sink receives each generated broadcast. The bridge channel satisfies it.
type Sink interface {
	SendBuses(buses []bridge.BusPosition)
}

// Simulator regenerates the whole bus set on each tick and hands it to the
// sink. Consumers only rely on ids being stable: same id updates an
// existing marker, a new id creates one.
type Simulator struct {
	buses    []Bus
	interval time.Duration
	jitter   float64 // degrees
	sink     Sink
	metrics  *metrics.Collector

	mu      sync.Mutex
	rng     *rand.Rand
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

func NewSimulator(buses []Bus, sink Sink, interval time.Duration, m *metrics.Collector) *Simulator {
	return &Simulator{
		buses:    buses,
		interval: interval,
		jitter:   0.1,
		sink:     sink,
		metrics:  m,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Broadcast builds one wholesale position set.
func (s *Simulator) Broadcast() []bridge.BusPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bridge.BusPosition, 0, len(s.buses))
	for _, b := range s.buses {
		out = append(out, bridge.BusPosition{
			ID:   b.ID,
			Name: b.Name,
			Lat:  b.Home.Lat + s.rng.Float64()*s.jitter,
			Lng:  b.Home.Lng + s.rng.Float64()*s.jitter,
		})
	}
	return out
}

// Start begins the broadcast ticker.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopped || s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				stopped := s.stopped
				s.mu.Unlock()
				if stopped {
					return
				}
				s.sink.SendBuses(s.Broadcast())
				if s.metrics != nil {
					s.metrics.FleetBroadcasts.Inc()
				}
			}
		}
	}()
}

// Stop halts the ticker. Idempotent.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
