package location

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is terminal for a session: no samples are ever
// produced, but nothing else crashes.
var ErrPermissionDenied = errors.New("location: permission denied")

// Sample is one position fix. Initial marks the first sample of a session
// and is delivered exactly once, before any subsequent sample.
type Sample struct {
	Lat       float64
	Lng       float64
	Timestamp time.Time
	Initial   bool
}

// Subscription is a handle on a position stream. Cancel is idempotent and
// guarantees no callback runs after it returns.
type Subscription interface {
	Cancel()
}

// Watcher wraps a device location service.
type Watcher interface {
	// RequestPermission returns nil when granted, ErrPermissionDenied
	// otherwise.
	RequestPermission(ctx context.Context) error

	// CurrentPosition returns a one-shot position fix.
	CurrentPosition(ctx context.Context) (Sample, error)

	// Subscribe delivers samples at the given cadence, skipping updates
	// that moved less than minDistanceM meters since the last delivery.
	Subscribe(fn func(Sample), cadence time.Duration, minDistanceM float64) (Subscription, error)
}
