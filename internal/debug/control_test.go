package debug

import (
	"testing"
	"time"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/storage"
)

func loc(fileId uint32, start, end uint32) program.SourceLocation {
	return program.SourceLocation{FileId: fileId, Start: start, End: end}
}

func newTestControl() *Control {
	return NewControl(storage.New(), func() int64 { return 0 })
}

// TestBreakpointStopsAndContinueResumes covers the basic breakpoint hit
// -> stop event -> continue_run resume cycle.
func TestBreakpointStopsAndContinueResumes(t *testing.T) {
	c := newTestControl()
	c.SetBreakpointsForFile(1, []Breakpoint{{Location: loc(1, 10, 20)}})

	var got StopEvent
	stopped := make(chan struct{})
	c.SetEmitter(func(e StopEvent) {
		got = e
		close(stopped)
	})

	done := make(chan struct{})
	go func() {
		c.StatementBoundary("task:main", 0, loc(1, 10, 20))
		close(done)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stop event")
	}
	if got.Reason != ReasonBreakpoint {
		t.Errorf("Reason = %v, want breakpoint", got.Reason)
	}

	c.ContinueRun("task:main")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for thread to resume")
	}
}

// TestStaleBreakpointDropped is scenario S3: while paused, the
// breakpoint table is replaced (generation increments); a stop computed
// against the old generation must not be delivered.
func TestStaleBreakpointDropped(t *testing.T) {
	c := newTestControl()
	c.SetBreakpointsForFile(1, []Breakpoint{{Location: loc(1, 10, 20)}})

	// Hold the gate open to simulate a control request in flight while
	// the boundary computes its (soon to be stale) stop.
	c.gate.Enter()

	published := make(chan struct{}, 1)
	c.SetEmitter(func(e StopEvent) { published <- struct{}{} })

	done := make(chan struct{})
	go func() {
		c.StatementBoundary("task:main", 0, loc(1, 10, 20))
		close(done)
	}()

	// Give the boundary goroutine a moment to reach gate.Drain() and
	// block there.
	time.Sleep(50 * time.Millisecond)

	// Replace the table (generation g -> g+1) while the request is
	// still "in flight", then release the gate.
	c.SetBreakpointsForFile(1, nil)
	c.gate.Leave()

	select {
	case <-published:
		t.Fatal("stale stop must not be published")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StatementBoundary should return immediately once the stop is dropped as stale")
	}
}

// TestStepInEntersCallee is scenario S1: after a breakpoint stop,
// step_in yields a stop at the very next statement boundary regardless
// of call depth, including one inside a just-entered callee.
func TestStepInEntersCallee(t *testing.T) {
	c := newTestControl()
	c.SetBreakpointsForFile(1, []Breakpoint{{Location: loc(1, 0, 10)}})

	var stops []StopEvent
	stopCh := make(chan struct{}, 8)
	c.SetEmitter(func(e StopEvent) {
		stops = append(stops, e)
		stopCh <- struct{}{}
	})

	go func() {
		// Caller statement (depth 0): hits the breakpoint.
		c.StatementBoundary("task:main", 0, loc(1, 0, 10))
	}()
	<-stopCh
	if stops[0].Reason != ReasonBreakpoint {
		t.Fatalf("first stop = %+v, want breakpoint", stops[0])
	}

	c.StepIn("task:main")
	go func() {
		// Enters AddTwo's body at depth 1 — step_in must stop here,
		// on AddTwo's first statement, not wait for the caller.
		c.StatementBoundary("task:main", 1, loc(2, 0, 5))
	}()

	select {
	case <-stopCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for step_in stop")
	}
	last := stops[len(stops)-1]
	if last.Reason != ReasonStep || last.Location.FileId != 2 || last.Location.Start != 0 {
		t.Errorf("stop = %+v, want step stop in file 2 (AddTwo body) at offset 0", last)
	}
	c.ContinueRun("task:main")
}

// TestStepOverSkipsCallee is scenario S2: after a breakpoint stop,
// step_over yields a stop at the next boundary whose frame depth is <=
// the depth captured at the request.
func TestStepOverSkipsCallee(t *testing.T) {
	c := newTestControl()

	var stops []StopEvent
	stopCh := make(chan struct{}, 8)
	c.SetEmitter(func(e StopEvent) {
		stops = append(stops, e)
		stopCh <- struct{}{}
	})

	go func() {
		// Caller statement (depth 0): breakpoint-free pause to start.
		c.Pause("task:main")
		c.StatementBoundary("task:main", 0, loc(1, 0, 10))
	}()
	<-stopCh

	c.StepOver("task:main", 0)
	go func() {
		// Enters callee at depth 1 — step_over must not stop here.
		c.StatementBoundary("task:main", 1, loc(2, 0, 5))
		// Back in caller at depth 0 — step_over stops here.
		c.StatementBoundary("task:main", 0, loc(1, 10, 20))
	}()

	select {
	case <-stopCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for step_over stop")
	}
	last := stops[len(stops)-1]
	if last.Reason != ReasonStep || last.Location.FileId != 1 {
		t.Errorf("stop = %+v, want step stop back in file 1", last)
	}
	c.ContinueRun("task:main")
}

type intComparable int

func (i intComparable) Equal(other Comparable) bool {
	o, ok := other.(intComparable)
	return ok && i == o
}

// TestWatchChangedDetection covers the watch-expression side: a
// registered watch re-evaluated after every stop, reporting a change
// only when its value actually differs from the prior stop.
func TestWatchChangedDetection(t *testing.T) {
	c := newTestControl()
	c.SetBreakpointsForFile(1, []Breakpoint{{Location: loc(1, 0, 10)}})

	counter := 0
	values := []int{1, 1, 2}
	c.SetWatchEvaluator(func(expr *program.Expr) (Comparable, error) {
		v := values[counter]
		if counter < len(values)-1 {
			counter++
		}
		return intComparable(v), nil
	})
	c.AddWatch("w1", &program.Expr{})

	stopCh := make(chan struct{}, 8)
	c.SetEmitter(func(e StopEvent) { stopCh <- struct{}{} })

	go c.StatementBoundary("task:main", 0, loc(1, 0, 10))
	<-stopCh
	if !c.TakeWatchChanged() {
		t.Fatal("first evaluation of a watch must report changed")
	}
	if c.TakeWatchChanged() {
		t.Fatal("TakeWatchChanged did not reset its flag")
	}
	c.ContinueRun("task:main")

	c.StepIn("task:main")
	go c.StatementBoundary("task:main", 0, loc(1, 20, 30))
	<-stopCh
	if c.TakeWatchChanged() {
		t.Fatal("watch value unchanged (1 -> 1) must not report changed")
	}
	c.ContinueRun("task:main")

	c.StepIn("task:main")
	go c.StatementBoundary("task:main", 0, loc(1, 40, 50))
	<-stopCh
	if !c.TakeWatchChanged() {
		t.Fatal("watch value changed (1 -> 2) must report changed")
	}
	c.ContinueRun("task:main")
}
