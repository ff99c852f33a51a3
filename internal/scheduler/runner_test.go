package scheduler

import (
	"testing"

	"github.com/ironrail/stcore/internal/eventlog"
)

func runCounting(calls *[]string) ProgramRunner {
	return func(name string) error {
		*calls = append(*calls, name)
		return nil
	}
}

// TestOverrunAccounting is scenario O1: a 5ms task with a program that
// takes negligible simulated time, executed at now=15ms, should report
// exactly one TaskOverrun{missed: 2} and align next_due to now.
func TestOverrunAccounting(t *testing.T) {
	clock := NewManualClock()
	var calls []string
	log := eventlog.NewLog()
	r := NewRunner(clock, nil, runCounting(&calls), log, SafeHalt)
	r.AddTask(Task{Name: "fast", Interval: 5_000_000, Priority: 0, Programs: []string{"P"}})

	clock.Advance(15_000_000)
	if err := r.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	var overruns []eventlog.Event
	for _, e := range log.Events() {
		if e.Kind == eventlog.TaskOverrun {
			overruns = append(overruns, e)
		}
	}
	if len(overruns) != 1 {
		t.Fatalf("got %d TaskOverrun events, want 1", len(overruns))
	}
	if overruns[0].Missed != 2 {
		t.Errorf("Missed = %d, want 2", overruns[0].Missed)
	}
	if r.states[0].NextDue != 15_000_000 {
		t.Errorf("NextDue = %d, want 15000000 (no catch-up)", r.states[0].NextDue)
	}
}

// TestPriorityOrdering verifies the (priority asc, registration_order
// asc) execution order within one tick.
func TestPriorityOrdering(t *testing.T) {
	clock := NewManualClock()
	var calls []string
	log := eventlog.NewLog()
	r := NewRunner(clock, nil, runCounting(&calls), log, SafeHalt)
	r.AddTask(Task{Name: "low", Interval: 1, Priority: 5, Programs: []string{"Low"}})
	r.AddTask(Task{Name: "high", Interval: 1, Priority: 0, Programs: []string{"High"}})
	r.AddTask(Task{Name: "mid-a", Interval: 1, Priority: 2, Programs: []string{"MidA"}})
	r.AddTask(Task{Name: "mid-b", Interval: 1, Priority: 2, Programs: []string{"MidB"}})

	clock.Advance(1)
	if err := r.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	want := []string{"High", "MidA", "MidB", "Low"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

// TestDeterminism is testable property 4: two independent runs driven
// by the same ManualClock schedule and program set emit identical
// RuntimeEvent sequences.
func TestDeterminism(t *testing.T) {
	build := func() []eventlog.Event {
		clock := NewManualClock()
		var calls []string
		log := eventlog.NewLog()
		r := NewRunner(clock, nil, runCounting(&calls), log, SafeHalt)
		r.AddTask(Task{Name: "a", Interval: 10, Priority: 1, Programs: []string{"A"}})
		r.AddTask(Task{Name: "b", Interval: 10, Priority: 0, Programs: []string{"B"}})
		for i := 0; i < 5; i++ {
			clock.Advance(10)
			r.Tick()
		}
		return log.Events()
	}
	a, b := build(), build()
	if len(a) != len(b) {
		t.Fatalf("trace lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("event %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

// TestSafeHaltFaultsRuntime verifies scenario O2's SafeHalt behavior: a
// faulting program marks the runtime faulted and a subsequent Tick
// returns ResourceFaulted.
func TestSafeHaltFaultsRuntime(t *testing.T) {
	clock := NewManualClock()
	log := eventlog.NewLog()
	failing := func(name string) error { return &divByZero{} }
	r := NewRunner(clock, nil, failing, log, SafeHalt)
	r.AddTask(Task{Name: "t", Interval: 1, Priority: 0, Programs: []string{"P"}})

	clock.Advance(1)
	if err := r.Tick(); err == nil {
		t.Fatal("expected first Tick to return the fault")
	}
	if !r.Faulted() {
		t.Fatal("expected runtime to be faulted after SafeHalt")
	}
	clock.Advance(1)
	if err := r.Tick(); err == nil {
		t.Fatal("expected subsequent Tick to return ResourceFaulted")
	}
}

type divByZero struct{}

func (*divByZero) Error() string { return "division by zero" }

// TestWatchdogTripsSafeHalt verifies the supplemented per-task watchdog:
// a task whose cycle time repeatedly exceeds its watchdog deadline is
// forced into SafeHalt even though its own policy is lenient.
func TestWatchdogTripsSafeHalt(t *testing.T) {
	clock := NewManualClock()
	log := eventlog.NewLog()
	slow := func(name string) error {
		clock.Advance(10) // simulate program execution taking 10ns
		return nil
	}
	r := NewRunner(clock, nil, slow, log, ContinueWithLastValues)
	r.AddTask(Task{Name: "slow", Interval: 100, Priority: 0, Programs: []string{"P"}, WatchdogNs: 5, WatchdogTrips: 2})

	clock.Advance(100)
	if err := r.Tick(); err != nil {
		t.Fatalf("first overrun should not trip yet: %v", err)
	}
	if r.Faulted() {
		t.Fatal("watchdog should not trip after a single overrun")
	}

	clock.Advance(100)
	if err := r.Tick(); err == nil {
		t.Fatal("expected second consecutive overrun to trip the watchdog")
	}
	if !r.Faulted() {
		t.Fatal("expected watchdog trip to force SafeHalt regardless of task policy")
	}

	var tripped bool
	for _, e := range log.Events() {
		if e.Kind == eventlog.WatchdogTripped {
			tripped = true
			if e.TaskName != "slow" {
				t.Errorf("TaskName = %q, want %q", e.TaskName, "slow")
			}
		}
	}
	if !tripped {
		t.Fatal("expected a WatchdogTripped event")
	}
}

// TestSetTaskWatchdog verifies a watchdog can be installed on an
// already-registered task by name, the UpdateWatchdog command's effect.
func TestSetTaskWatchdog(t *testing.T) {
	clock := NewManualClock()
	log := eventlog.NewLog()
	r := NewRunner(clock, nil, runCounting(&[]string{}), log, SafeHalt)
	r.AddTask(Task{Name: "t", Interval: 10, Priority: 0, Programs: []string{"P"}})

	if !r.SetTaskWatchdog("t", 1_000_000, 2) {
		t.Fatal("expected SetTaskWatchdog to find task \"t\"")
	}
	if r.SetTaskWatchdog("missing", 1, 1) {
		t.Fatal("expected SetTaskWatchdog to report false for an unknown task")
	}
	stats := r.TaskStats()
	if stats[0].WatchdogNs != 1_000_000 || stats[0].WatchdogTrips != 2 {
		t.Errorf("watchdog not applied: %+v", stats[0])
	}
}
