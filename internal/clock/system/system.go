// Package system provides a real clock implementation.
package system

import "time"

// Clock implements reader.Clock using time.Now. The monotonic reading is kept so
// cache TTLs and processing times are immune to wall-clock jumps.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now()
}
