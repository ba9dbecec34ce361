// Package clock abstracts the time source so lock expiry and cleanup sweeps
// can be driven deterministically in tests.
package clock

import "time"

// Clock provides the current time and periodic ticks.
type Clock interface {
	Now() time.Time
	// Tick returns a channel that delivers ticks at the given interval and a
	// stop function that releases the underlying resources.
	Tick(d time.Duration) (<-chan time.Time, func())
}

// System is the wall-clock implementation used in production.
type System struct{}

func NewSystem() *System { return &System{} }

func (*System) Now() time.Time { return time.Now() }

func (*System) Tick(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
