package navstate

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source of the machine and of everything that has to
// agree with it on how long ago the return happened.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualClock only moves when told to. Timers due at or before the new time
// fire synchronously, in order, inside Advance. The clock never moves back,
// even when a timer advances it further from within Advance.
type ManualClock struct {
	mutex  sync.Mutex
	now    time.Time
	timers []*manualTimer
	seq    int
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers.
func (c *ManualClock) Advance(d time.Duration) {
	c.mutex.Lock()
	target := c.now.Add(d)
	c.mutex.Unlock()
	for {
		c.mutex.Lock()
		next := c.nextDue(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mutex.Unlock()
			return
		}
		c.remove(next)
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mutex.Unlock()
		next.f()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *ManualClock) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.timers)
}

func (c *ManualClock) nextDue(target time.Time) *manualTimer {
	sort.SliceStable(c.timers, func(i, j int) bool {
		if !c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].at.Before(c.timers[j].at)
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	if len(c.timers) == 0 || c.timers[0].at.After(target) {
		return nil
	}
	return c.timers[0]
}

func (c *ManualClock) remove(t *manualTimer) bool {
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

type manualTimer struct {
	clock *ManualClock
	at    time.Time
	seq   int
	f     func()
}

func (t *manualTimer) Stop() bool {
	t.clock.mutex.Lock()
	defer t.clock.mutex.Unlock()
	return t.clock.remove(t)
}
