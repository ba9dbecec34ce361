package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced clock for tests. Advance moves the current
// time; Fire delivers one tick to every channel handed out by Tick.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	ticks []chan time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Tick returns a channel that only fires when the test calls Fire.
func (f *Fake) Tick(time.Duration) (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.ticks = append(f.ticks, ch)
	return ch, func() {}
}

// Fire delivers one tick at the current fake time to every ticker.
func (f *Fake) Fire() {
	f.mu.Lock()
	now := f.now
	ticks := make([]chan time.Time, len(f.ticks))
	copy(ticks, f.ticks)
	f.mu.Unlock()

	for _, ch := range ticks {
		select {
		case ch <- now:
		default:
		}
	}
}
