// Package navstate tracks whether the current page load is a return from
// navigation, and guards the one scroll restoration each return gets.
//
// A Machine starts Fresh. Return moves it to Returning for Window (plus a
// Grace period before it settles to Normal); StartFresh moves it to
// FreshStart after a detected full reload. Each Return begins a new
// generation: restoration tickets and deadline timers of older generations
// have no effect.
package navstate

import (
	"context"
	"sync"
	"time"

	"github.com/always-cache/anti-reload/pkg/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultWindow = 15 * time.Second
	DefaultGrace  = 500 * time.Millisecond
)

type State int

const (
	Fresh State = iota
	Returning
	Normal
	FreshStart
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Returning:
		return "returning"
	case Normal:
		return "normal"
	case FreshStart:
		return "fresh-start"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Config struct {
	// How long after a return cached responses are preferred.
	// Defaults to DefaultWindow.
	Window time.Duration
	// Extra time after Window before the machine settles to Normal.
	// Defaults to DefaultGrace.
	Grace time.Duration
	// Defaults to SystemClock.
	Clock Clock
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Ticket is the permission to run one restoration.
type Ticket struct {
	ctx        context.Context
	generation uint64
}

// Context is cancelled when the machine starts a new return or is closed.
func (t Ticket) Context() context.Context {
	return t.ctx
}

// Snapshot is a copy of the machine state.
type Snapshot struct {
	State          State     `json:"state"`
	ReturnedAt     time.Time `json:"returnedAt"`
	ScrollRestored bool      `json:"scrollRestored"`
	Restoring      bool      `json:"restoring"`
}

type Machine struct {
	mutex          sync.Mutex
	window         time.Duration
	grace          time.Duration
	clock          Clock
	log            zerolog.Logger
	state          State
	returnedAt     time.Time
	scrollRestored bool
	restoring      bool
	generation     uint64
	deadline       Timer
	cancel         context.CancelFunc
}

func New(config Config) *Machine {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	m := &Machine{
		window: config.Window,
		grace:  config.Grace,
		clock:  config.Clock,
		log:    logger.With().Str("component", "navstate").Logger(),
		state:  Fresh,
	}
	if m.window <= 0 {
		m.window = DefaultWindow
	}
	if m.grace <= 0 {
		m.grace = DefaultGrace
	}
	if m.clock == nil {
		m.clock = SystemClock{}
	}
	return m
}

func (m *Machine) Clock() Clock {
	return m.clock
}

func (m *Machine) State() State {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

func (m *Machine) Snapshot() Snapshot {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return Snapshot{
		State:          m.state,
		ReturnedAt:     m.returnedAt,
		ScrollRestored: m.scrollRestored,
		Restoring:      m.restoring,
	}
}

// Return records a return from navigation. Any running restoration is
// cancelled and the returning window starts over.
func (m *Machine) Return() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stopLocked()
	m.generation++
	m.returnedAt = m.clock.Now()
	m.scrollRestored = false
	m.restoring = false
	m.setLocked(Returning)

	generation := m.generation
	m.deadline = m.clock.AfterFunc(m.window+m.grace, func() {
		m.expire(generation)
	})
}

// StartFresh records a full reload. Saving is allowed right away and
// restoration stays disabled until the next Return.
func (m *Machine) StartFresh() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stopLocked()
	m.generation++
	m.scrollRestored = true
	m.restoring = false
	m.setLocked(FreshStart)
}

// WithinWindow reports whether cached responses should be preferred.
func (m *Machine) WithinWindow() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state == Returning && m.clock.Now().Sub(m.returnedAt) < m.window
}

// SavingAllowed reports whether the view state may be overwritten.
// It is false while a return is waiting for its restoration.
func (m *Machine) SavingAllowed() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state != Returning || m.scrollRestored
}

// BeginRestore hands out the ticket for the restoration of the current
// return. It fails outside Returning, while a restoration is running, and
// once one has finished.
func (m *Machine) BeginRestore(ctx context.Context) (Ticket, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.state != Returning || m.scrollRestored || m.restoring {
		return Ticket{}, false
	}
	m.restoring = true
	ctx, m.cancel = context.WithCancel(ctx)
	return Ticket{ctx: ctx, generation: m.generation}, true
}

// FinishRestore marks the restoration of the ticket's return as done.
func (m *Machine) FinishRestore(t Ticket) {
	m.end(t, true)
}

// ReleaseRestore gives the ticket back without marking the restoration done,
// so a later attempt in the same return may run.
func (m *Machine) ReleaseRestore(t Ticket) {
	m.end(t, false)
}

// Close stops the deadline timer and cancels a running restoration.
func (m *Machine) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stopLocked()
}

func (m *Machine) end(t Ticket, done bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if t.generation != m.generation || !m.restoring {
		return
	}
	m.restoring = false
	if done {
		m.scrollRestored = true
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Machine) expire(generation uint64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if generation != m.generation || m.state != Returning {
		return
	}
	m.deadline = nil
	m.setLocked(Normal)
}

func (m *Machine) stopLocked() {
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Machine) setLocked(s State) {
	if m.state != s {
		m.log.Debug().Msgf("Navigation state %s -> %s", m.state, s)
	}
	m.state = s
	metrics.ObserveTransition(s.String())
}
