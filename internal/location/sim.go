package location

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"smartbus/internal/geo"
)

// SimWatcher is a simulated location service: a random walk starting from a
// seed coordinate. It stands in for the device location stack in headless
// runs and in tests.
type SimWatcher struct {
	granted bool
	stepDeg float64

	mu      sync.Mutex
	rng     *rand.Rand
	pos     geo.Coordinate
	emitted bool
}

// NewSimWatcher returns a watcher seeded at start. When granted is false,
// every operation fails with ErrPermissionDenied.
func NewSimWatcher(start geo.Coordinate, granted bool) *SimWatcher {
	return &SimWatcher{
		granted: granted,
		stepDeg: 0.0005,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		pos:     start,
	}
}

func (w *SimWatcher) RequestPermission(ctx context.Context) error {
	if !w.granted {
		return ErrPermissionDenied
	}
	return nil
}

func (w *SimWatcher) CurrentPosition(ctx context.Context) (Sample, error) {
	if !w.granted {
		return Sample{}, ErrPermissionDenied
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLocked(), nil
}

// nextLocked advances the walk one jittered step and stamps the sample.
// The first sample of the session carries Initial.
func (w *SimWatcher) nextLocked() Sample {
	w.pos.Lat += (w.rng.Float64() - 0.5) * w.stepDeg
	w.pos.Lng += (w.rng.Float64() - 0.5) * w.stepDeg
	s := Sample{
		Lat:       w.pos.Lat,
		Lng:       w.pos.Lng,
		Timestamp: time.Now(),
		Initial:   !w.emitted,
	}
	w.emitted = true
	return s
}

type simSubscription struct {
	cancel context.CancelFunc
	wg     *sync.WaitGroup
	once   sync.Once
}

func (s *simSubscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

func (w *SimWatcher) Subscribe(fn func(Sample), cadence time.Duration, minDistanceM float64) (Subscription, error) {
	if !w.granted {
		return nil, ErrPermissionDenied
	}
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	sub := &simSubscription{cancel: cancel, wg: wg}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cadence)
		defer ticker.Stop()
		var last geo.Coordinate
		var delivered bool
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.mu.Lock()
				s := w.nextLocked()
				w.mu.Unlock()
				here := geo.Coordinate{Lat: s.Lat, Lng: s.Lng}
				if delivered && geo.DistanceMeters(last, here) < minDistanceM {
					continue
				}
				// the Cancel contract: never deliver after cancellation
				select {
				case <-ctx.Done():
					return
				default:
				}
				fn(s)
				last = here
				delivered = true
			}
		}
	}()
	return sub, nil
}
