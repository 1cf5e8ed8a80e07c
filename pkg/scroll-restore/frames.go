package restore

import (
	"context"
	"time"

	navstate "github.com/always-cache/anti-reload/pkg/nav-state"
)

const (
	DefaultFirstFrame    = 500 * time.Millisecond
	DefaultFrameInterval = 400 * time.Millisecond
)

// Frames paces the attempts of a restoration.
type Frames interface {
	// Next blocks until attempt n (counted from zero) may run,
	// or returns the context error.
	Next(ctx context.Context, n int) error
}

// TimedFrames waits First before the first attempt and Interval before each
// later one, on the given clock.
type TimedFrames struct {
	Clock    navstate.Clock
	First    time.Duration
	Interval time.Duration
}

func (f TimedFrames) Next(ctx context.Context, n int) error {
	d := f.Interval
	if n == 0 {
		d = f.First
	}
	clock := f.Clock
	if clock == nil {
		clock = navstate.SystemClock{}
	}
	ready := make(chan struct{})
	timer := clock.AfterFunc(d, func() { close(ready) })
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}
