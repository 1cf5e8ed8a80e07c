package navstate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMachine() (*Machine, *ManualClock) {
	clock := NewManualClock(start)
	logger := zerolog.Nop()
	return New(Config{Clock: clock, Logger: &logger}), clock
}

func TestInitialState(t *testing.T) {
	m, _ := newMachine()
	if m.State() != Fresh {
		t.Fatalf("state is %s", m.State())
	}
	if m.WithinWindow() {
		t.Fatal("fresh machine is within window")
	}
	if !m.SavingAllowed() {
		t.Fatal("fresh machine does not allow saving")
	}
	if _, ok := m.BeginRestore(context.Background()); ok {
		t.Fatal("fresh machine allowed restoration")
	}
}

func TestReturningWindow(t *testing.T) {
	m, clock := newMachine()
	m.Return()
	if m.State() != Returning || !m.WithinWindow() {
		t.Fatalf("state after return is %s", m.State())
	}
	clock.Advance(DefaultWindow - time.Millisecond)
	if !m.WithinWindow() {
		t.Fatal("window closed early")
	}
	clock.Advance(time.Millisecond)
	if m.WithinWindow() {
		t.Fatal("window still open at its end")
	}
	if m.State() != Returning {
		t.Fatalf("state during grace is %s", m.State())
	}
	clock.Advance(DefaultGrace)
	if m.State() != Normal {
		t.Fatalf("state after grace is %s", m.State())
	}
	if clock.Pending() != 0 {
		t.Fatalf("%d timers pending", clock.Pending())
	}
}

func TestReturnRearms(t *testing.T) {
	m, clock := newMachine()
	m.Return()
	clock.Advance(10 * time.Second)
	m.Return()
	clock.Advance(10 * time.Second)
	if m.State() != Returning || !m.WithinWindow() {
		t.Fatal("old deadline ended the new return")
	}
	if clock.Pending() != 1 {
		t.Fatalf("%d timers pending", clock.Pending())
	}
	clock.Advance(6 * time.Second)
	if m.State() != Normal {
		t.Fatalf("state is %s", m.State())
	}
}

func TestRestoreOnce(t *testing.T) {
	m, _ := newMachine()
	m.Return()
	if m.SavingAllowed() {
		t.Fatal("saving allowed before restoration")
	}
	ticket, ok := m.BeginRestore(context.Background())
	if !ok {
		t.Fatal("restoration refused")
	}
	if _, ok := m.BeginRestore(context.Background()); ok {
		t.Fatal("second restoration allowed while first is running")
	}
	m.FinishRestore(ticket)
	if ticket.Context().Err() == nil {
		t.Fatal("ticket context still live after finish")
	}
	if _, ok := m.BeginRestore(context.Background()); ok {
		t.Fatal("restoration allowed after finish")
	}
	if !m.SavingAllowed() {
		t.Fatal("saving not allowed after restoration")
	}
}

func TestReleaseRestore(t *testing.T) {
	m, _ := newMachine()
	m.Return()
	ticket, _ := m.BeginRestore(context.Background())
	m.ReleaseRestore(ticket)
	if m.SavingAllowed() {
		t.Fatal("released restoration counted as done")
	}
	if _, ok := m.BeginRestore(context.Background()); !ok {
		t.Fatal("restoration refused after release")
	}
}

func TestReturnCancelsRestore(t *testing.T) {
	m, _ := newMachine()
	m.Return()
	old, _ := m.BeginRestore(context.Background())
	m.Return()
	if old.Context().Err() == nil {
		t.Fatal("return did not cancel the running restoration")
	}
	m.FinishRestore(old)
	if m.SavingAllowed() {
		t.Fatal("stale ticket finished the new return")
	}
	ticket, ok := m.BeginRestore(context.Background())
	if !ok {
		t.Fatal("new return refused restoration")
	}
	m.FinishRestore(ticket)
	if !m.SavingAllowed() {
		t.Fatal("restoration of the new return not recorded")
	}
}

func TestStartFresh(t *testing.T) {
	m, clock := newMachine()
	m.StartFresh()
	if m.State() != FreshStart {
		t.Fatalf("state is %s", m.State())
	}
	if !m.SavingAllowed() {
		t.Fatal("fresh start does not allow saving")
	}
	if m.WithinWindow() {
		t.Fatal("fresh start is within window")
	}
	if _, ok := m.BeginRestore(context.Background()); ok {
		t.Fatal("fresh start allowed restoration")
	}
	clock.Advance(time.Minute)
	if m.State() != FreshStart {
		t.Fatalf("state is %s", m.State())
	}

	m.Return()
	if _, ok := m.BeginRestore(context.Background()); !ok {
		t.Fatal("return after fresh start refused restoration")
	}
}

func TestCloseStopsTimers(t *testing.T) {
	m, clock := newMachine()
	m.Return()
	ticket, _ := m.BeginRestore(context.Background())
	m.Close()
	if clock.Pending() != 0 {
		t.Fatalf("%d timers pending", clock.Pending())
	}
	if ticket.Context().Err() == nil {
		t.Fatal("close did not cancel restoration")
	}
}

func TestManualClockOrder(t *testing.T) {
	clock := NewManualClock(start)
	var fired []int
	var at []time.Duration
	record := func(n int) func() {
		return func() {
			fired = append(fired, n)
			at = append(at, clock.Now().Sub(start))
		}
	}
	clock.AfterFunc(300*time.Millisecond, record(3))
	clock.AfterFunc(100*time.Millisecond, record(1))
	stopped := clock.AfterFunc(200*time.Millisecond, record(2))
	clock.AfterFunc(100*time.Millisecond, func() {
		fired = append(fired, 4)
		clock.AfterFunc(50*time.Millisecond, record(5))
	})
	if !stopped.Stop() {
		t.Fatal("stop of pending timer failed")
	}
	clock.Advance(time.Second)
	want := []int{1, 4, 5, 3}
	if len(fired) != len(want) {
		t.Fatalf("fired %v", fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired %v", fired)
		}
	}
	if at[1] != 150*time.Millisecond {
		t.Fatalf("nested timer fired at %v", at[1])
	}
	if clock.Now().Sub(start) != time.Second {
		t.Fatalf("clock at %v", clock.Now().Sub(start))
	}
	if stopped.Stop() {
		t.Fatal("second stop succeeded")
	}
}

func TestManualClockNeverMovesBack(t *testing.T) {
	clock := NewManualClock(start)
	clock.AfterFunc(100*time.Millisecond, func() {
		clock.Advance(time.Second)
	})
	clock.Advance(200 * time.Millisecond)
	if d := clock.Now().Sub(start); d != 1100*time.Millisecond {
		t.Fatalf("clock at %v", d)
	}
}
