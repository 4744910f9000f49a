package carousel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"smartbus/internal/metrics"
)

// Item is one promotional card.
type Item struct {
	ID       string
	Title    string
	ImageRef string
}

// Source selects up to n items for one carousel session. Selection order
// may be randomized; it is fixed once loaded.
type Source interface {
	SelectItems(ctx context.Context, n int) ([]Item, error)
}

// View is the finite scrolling primitive the controller drives. ScrollTo
// must not call back into the controller.
type View interface {
	ScrollTo(frame int, animated bool)
}

// ErrNoItems is returned when the source has nothing to show.
var ErrNoItems = errors.New("carousel: no items")

// Controller presents baseCount items as an apparently infinite forward
// loop. The window holds the real items plus one sentinel clone of the
// first; landing on the clone frame schedules a delayed non-animated jump
// back to frame zero, which erases the seam.
//
// The reset delay must exceed the scroll animation duration and stay below
// the tick interval; it is a tuned constant, not derived.
type Controller struct {
	source       Source
	view         View
	requestCount int
	interval     time.Duration
	resetDelay   time.Duration
	metrics      *metrics.Collector

	mu        sync.Mutex
	items     []Item // baseCount real items + 1 clone
	baseCount int
	position  int // 0..baseCount inclusive; baseCount is the clone frame
	closed    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewController(source Source, view View, requestCount int, interval, resetDelay time.Duration, m *metrics.Collector) *Controller {
	if requestCount < 1 {
		requestCount = 1
	}
	return &Controller{
		source:       source,
		view:         view,
		requestCount: requestCount,
		interval:     interval,
		resetDelay:   resetDelay,
		metrics:      m,
	}
}

// Load selects the window for this session. The window is immutable until
// the next Load; reselection never happens mid-cycle.
func (c *Controller) Load(ctx context.Context) error {
	selected, err := c.source.SelectItems(ctx, c.requestCount)
	if err != nil {
		return fmt.Errorf("carousel load: %w", err)
	}
	if len(selected) == 0 {
		return ErrNoItems
	}

	clone := selected[0]
	clone.ID = clone.ID + "-clone"
	window := make([]Item, 0, len(selected)+1)
	window = append(window, selected...)
	window = append(window, clone)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.items = window
	c.baseCount = len(selected)
	c.position = 0
	return nil
}

// Start begins the advance timer. Load must have succeeded first.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
}

// Tick advances one frame. When the clone frame is reached, a delayed
// non-animated jump to frame zero is scheduled; until it fires the
// displayed indicator already reads zero (position mod baseCount).
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.closed || c.baseCount == 0 {
		c.mu.Unlock()
		return
	}
	if c.position >= c.baseCount {
		// the wrap reset has not fired yet; complete it before advancing
		c.view.ScrollTo(0, false)
		c.position = 0
	}
	c.position++
	frame := c.position
	wrap := c.position == c.baseCount
	c.view.ScrollTo(frame, true)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CarouselTicks.Inc()
	}
	if wrap {
		if c.metrics != nil {
			c.metrics.CarouselWraps.Inc()
		}
		time.AfterFunc(c.resetDelay, c.completeWrap)
	}
}

// completeWrap jumps back to the real first frame without animation. By now
// the animated scroll onto the clone has finished, so the change is
// invisible.
func (c *Controller) completeWrap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.position != c.baseCount {
		return
	}
	c.view.ScrollTo(0, false)
	c.position = 0
}

// Position is the physical frame index, 0..baseCount inclusive.
func (c *Controller) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// DisplayedIndex is the indicator index, always a valid real-item index
// even while the scroll sits on the clone frame.
func (c *Controller) DisplayedIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseCount == 0 {
		return 0
	}
	return c.position % c.baseCount
}

// BaseCount is the number of real items in the window.
func (c *Controller) BaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseCount
}

// Items returns a copy of the window, clone included.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Close stops the timer. Idempotent; a pending wrap reset that fires after
// Close does nothing.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	log.Printf("carousel: closed")
}

// StaticItems is an in-memory Source that hands out a randomized selection.
type StaticItems []Item

func (s StaticItems) SelectItems(ctx context.Context, n int) ([]Item, error) {
	picked := make([]Item, len(s))
	copy(picked, s)
	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	if n < len(picked) {
		picked = picked[:n]
	}
	return picked, nil
}
