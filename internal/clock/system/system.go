// Package system provides the wall clock used outside tests.
package system

import "time"

// Precision matches Postgres timestamptz so times read back from the store
// compare equal to the times that were written.
const Precision = time.Microsecond

// Clock implements crawler.Clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to Precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}
