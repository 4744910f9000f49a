package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartbus/internal/geo"
)

var mumbai = geo.Coordinate{Lat: 19.0176, Lng: 72.8562}

func TestDeniedPermissionIsTerminal(t *testing.T) {
	w := NewSimWatcher(mumbai, false)

	if err := w.RequestPermission(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("RequestPermission err = %v, want ErrPermissionDenied", err)
	}
	if _, err := w.CurrentPosition(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("CurrentPosition err = %v, want ErrPermissionDenied", err)
	}
	if _, err := w.Subscribe(func(Sample) {}, time.Millisecond, 0); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Subscribe err = %v, want ErrPermissionDenied", err)
	}
}

func TestFirstSampleOfSessionIsInitial(t *testing.T) {
	w := NewSimWatcher(mumbai, true)

	first, err := w.CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition: %v", err)
	}
	if !first.Initial {
		t.Errorf("first sample should carry Initial")
	}
	second, _ := w.CurrentPosition(context.Background())
	if second.Initial {
		t.Errorf("Initial must be delivered exactly once per session")
	}
	if !geo.ValidPair(first.Lat, first.Lng) {
		t.Errorf("sample out of range: %+v", first)
	}
}

func TestSubscribeDeliversAndCancelIsFinal(t *testing.T) {
	w := NewSimWatcher(mumbai, true)

	var mu sync.Mutex
	var samples []Sample
	sub, err := w.Subscribe(func(s Sample) {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
	}, 5*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	sub.Cancel()
	sub.Cancel() // idempotent

	mu.Lock()
	count := len(samples)
	mu.Unlock()
	if count < 2 {
		t.Fatalf("delivered %d samples, want at least 2", count)
	}

	mu.Lock()
	if !samples[0].Initial {
		t.Errorf("first delivered sample should carry Initial")
	}
	for _, s := range samples[1:] {
		if s.Initial {
			t.Errorf("Initial delivered more than once")
		}
	}
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := len(samples)
	mu.Unlock()
	if after != count {
		t.Errorf("samples delivered after Cancel: %d -> %d", count, after)
	}
}

func TestMinDistanceFiltersUpdates(t *testing.T) {
	w := NewSimWatcher(mumbai, true)
	// the walk moves tens of meters per step; an absurd threshold should
	// suppress everything after the first delivery
	var mu sync.Mutex
	count := 0
	sub, err := w.Subscribe(func(Sample) {
		mu.Lock()
		count++
		mu.Unlock()
	}, 5*time.Millisecond, 1e6)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	sub.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("delivered %d samples, want only the first", count)
	}
}
