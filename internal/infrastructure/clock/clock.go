// Package clock provides the calendar used by the scheduler.
package clock

import (
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
)

// SystemClock reads the wall clock in a fixed location so "today" is the
// account's local calendar date regardless of the host timezone.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock creates a clock for loc; nil means time.Local
func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return &SystemClock{loc: loc}
}

// Now returns the current instant in the clock's location
func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Today returns the current calendar date in the clock's location
func (c *SystemClock) Today() civil.Date {
	return civil.DateOf(c.Now())
}

// FixedClock is a settable clock for tests and manual replays
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixedClock creates a clock frozen at 09:00 UTC on day
func NewFixedClock(day civil.Date) *FixedClock {
	c := &FixedClock{}
	c.Set(day)
	return c
}

// Set moves the clock to 09:00 UTC on day
func (c *FixedClock) Set(day civil.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = day.In(time.UTC).Add(9 * time.Hour)
}

// AdvanceDays moves the clock forward by n calendar days
func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *FixedClock) Today() civil.Date {
	return civil.DateOf(c.Now())
}

var (
	_ port.Clock = (*SystemClock)(nil)
	_ port.Clock = (*FixedClock)(nil)
)
