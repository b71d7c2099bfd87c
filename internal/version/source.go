// Package version stamps dirty entities with fresh version numbers after a
// merge. Stamps come from a Source and are strictly increasing across every
// entity kind, so any two stamps can be compared.
package version

import (
	"context"
	"sync/atomic"
)

// Source allocates version stamps. Every call returns a value greater than
// all values returned before.
type Source interface {
	NextVersion(ctx context.Context) (int64, error)
}

// Counter is an in-process Source. The zero value starts at 1.
type Counter struct {
	last atomic.Int64
}

// NewCounter returns a Counter whose first stamp is after+1.
func NewCounter(after int64) *Counter {
	c := &Counter{}
	c.last.Store(after)

	return c
}

// NextVersion returns the next stamp.
func (c *Counter) NextVersion(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return c.last.Add(1), nil
}

// Last returns the most recently issued stamp.
func (c *Counter) Last() int64 {
	return c.last.Load()
}

// Advance moves the counter forward so the next stamp exceeds floor.
func (c *Counter) Advance(floor int64) {
	for {
		cur := c.last.Load()
		if cur >= floor || c.last.CompareAndSwap(cur, floor) {
			return
		}
	}
}
