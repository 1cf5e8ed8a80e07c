// Package restore brings a viewport back to a saved scroll offset while the
// content below it is still loading.
//
// Each attempt scrolls to the target and then checks for convergence: the
// offset is within tolerance of the target and the content is tall enough to
// hold a full viewport below it. Attempts repeat until convergence, the
// deadline, or cancellation.
package restore

import (
	"context"
	"math"
	"time"

	"github.com/always-cache/anti-reload/pkg/metrics"
	navstate "github.com/always-cache/anti-reload/pkg/nav-state"
	"github.com/rs/zerolog"
)

const (
	DefaultTolerance = 200
	DefaultMaxWait   = 12 * time.Second
)

// Viewport is the scrollable page area.
type Viewport interface {
	ScrollTo(offset float64) error
	Offset() float64
	Height() float64
	ContentExtent() float64
}

// Fallback is implemented by viewports with a second scrolling primitive,
// used when ScrollTo fails.
type Fallback interface {
	JumpTo(offset float64) error
}

type Outcome int

const (
	Skipped Outcome = iota
	Converged
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Converged:
		return "converged"
	case TimedOut:
		return "timeout"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

type Result struct {
	Outcome  Outcome       `json:"outcome"`
	Target   float64       `json:"target"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
}

type Config struct {
	// Allowed distance from the target. Defaults to DefaultTolerance.
	Tolerance float64
	// Time budget measured from the start of Run. Defaults to DefaultMaxWait.
	MaxWait time.Duration
	// Defaults to navstate.SystemClock.
	Clock navstate.Clock
	// Defaults to TimedFrames with the default delays on Clock.
	Frames Frames
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

type Loop struct {
	tolerance float64
	maxWait   time.Duration
	clock     navstate.Clock
	frames    Frames
	log       zerolog.Logger
}

func NewLoop(config Config) *Loop {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	l := &Loop{
		tolerance: config.Tolerance,
		maxWait:   config.MaxWait,
		clock:     config.Clock,
		frames:    config.Frames,
		log:       logger.With().Str("component", "restore").Logger(),
	}
	if l.tolerance <= 0 {
		l.tolerance = DefaultTolerance
	}
	if l.maxWait <= 0 {
		l.maxWait = DefaultMaxWait
	}
	if l.clock == nil {
		l.clock = navstate.SystemClock{}
	}
	if l.frames == nil {
		l.frames = TimedFrames{Clock: l.clock, First: DefaultFirstFrame, Interval: DefaultFrameInterval}
	}
	return l
}

// Run restores vp to target. It blocks until the outcome is known.
func (l *Loop) Run(ctx context.Context, vp Viewport, target float64) Result {
	res := Result{Target: target}
	defer func() { metrics.ObserveRestore(res.Outcome.String()) }()

	if math.IsNaN(target) || math.IsInf(target, 0) || target <= 0 {
		res.Outcome = Skipped
		return res
	}

	l.log.Debug().Msgf("Restoring scroll offset %.0f", target)
	start := l.clock.Now()
	for {
		if err := l.frames.Next(ctx, res.Attempts); err != nil {
			res.Outcome = Cancelled
			res.Elapsed = l.clock.Now().Sub(start)
			l.log.Debug().Err(err).Int("attempts", res.Attempts).Msg("Scroll restoration cancelled")
			return res
		}
		res.Attempts++
		l.scroll(vp, target)

		res.Elapsed = l.clock.Now().Sub(start)
		if l.converged(vp, target) {
			res.Outcome = Converged
			l.log.Debug().Int("attempts", res.Attempts).Dur("elapsed", res.Elapsed).Msg("Scroll restored")
			return res
		}
		if res.Elapsed >= l.maxWait {
			res.Outcome = TimedOut
			l.log.Info().
				Int("attempts", res.Attempts).
				Float64("offset", vp.Offset()).
				Float64("extent", vp.ContentExtent()).
				Msgf("Gave up restoring scroll offset %.0f", target)
			return res
		}
	}
}

func (l *Loop) scroll(vp Viewport, target float64) {
	err := vp.ScrollTo(target)
	if err == nil {
		return
	}
	if fb, ok := vp.(Fallback); ok {
		l.log.Trace().Err(err).Msg("Scroll failed, jumping instead")
		err = fb.JumpTo(target)
	}
	if err != nil {
		l.log.Trace().Err(err).Msg("Could not scroll this attempt")
	}
}

func (l *Loop) converged(vp Viewport, target float64) bool {
	return math.Abs(vp.Offset()-target) <= l.tolerance &&
		vp.ContentExtent() >= target+vp.Height()+l.tolerance
}
