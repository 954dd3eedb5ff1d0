// Package system provides a real clock implementation.
package system

import "time"

// Clock implements scrape.Clock using time.Now. Timestamps are UTC so run
// documents and status files compare cleanly across hosts.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
