package route

import (
	"errors"

	"smartbus/internal/geo"
)

// Path is an ordered, non-empty sequence of coordinates describing one route.
// It is immutable after construction and owned by a single Cursor.
type Path []geo.Coordinate

// ErrEmptyPath is returned when a cursor is constructed or reset with no points.
var ErrEmptyPath = errors.New("route: empty path")

// Cursor walks a Path one step at a time. The index is monotonically
// non-decreasing and clamps at the final point; it only returns to zero
// when a new path is supplied via Reset.
type Cursor struct {
	path  Path
	index int
}

func NewCursor(path Path) (*Cursor, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	return &Cursor{path: path}, nil
}

// Tick advances the cursor by one point. At the terminal point it is a no-op.
func (c *Cursor) Tick() {
	if c.index < len(c.path)-1 {
		c.index++
	}
}

// Current returns the coordinate under the cursor.
func (c *Cursor) Current() geo.Coordinate {
	return c.path[c.index]
}

// Index returns the current position within the path.
func (c *Cursor) Index() int { return c.index }

// Len returns the number of points in the path.
func (c *Cursor) Len() int { return len(c.path) }

// Done reports whether the cursor sits on the terminal point.
func (c *Cursor) Done() bool { return c.index == len(c.path)-1 }

// Reset replaces the path and rewinds the cursor to the first point.
func (c *Cursor) Reset(path Path) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	c.path = path
	c.index = 0
	return nil
}
