// Package system provides the wall clock.
package system

import "time"

// Precision is the resolution of every timestamp the clock hands out. It
// matches Postgres timestamptz so stored and in-memory values compare equal.
const Precision = time.Microsecond

// Clock implements crawler.Clock.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to Precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}

// NowFunc adapts the clock to the func form used by crawler.Options.
func (c Clock) NowFunc() func() time.Time {
	return c.Now
}
