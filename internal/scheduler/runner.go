// Package scheduler implements the cyclic task scheduler: periodic and
// event-triggered tasks, priority plus registration-order execution
// order, overrun accounting, and fault-policy handling on program
// error.
package scheduler

import (
	"fmt"

	"github.com/ironrail/stcore/internal/eventlog"
	"github.com/ironrail/stcore/internal/vmerr"
)

// FaultPolicy selects what Runner does when a program raises a
// RuntimeError during a tick.
type FaultPolicy int

const (
	// SafeHalt is the default and only policy spec.md pins down:
	// subsequent ticks refuse to run (ResourceFaulted) until restart;
	// the caller is responsible for driving I/O outputs to their
	// configured safe state before the next WritePhase.
	SafeHalt FaultPolicy = iota
	// ContinueWithLastValues keeps running subsequent tasks and ticks,
	// leaving outputs at whatever program writes last produced. Left
	// undistinguished in behavior from Reset beyond this module's
	// boundary (see DESIGN.md open question).
	ContinueWithLastValues
	// Reset reinitializes storage to its load-time defaults before the
	// next tick, as if a cold restart had occurred.
	Reset
)

func (p FaultPolicy) String() string {
	switch p {
	case SafeHalt:
		return "SafeHalt"
	case ContinueWithLastValues:
		return "ContinueWithLastValues"
	case Reset:
		return "Reset"
	default:
		return "Unknown"
	}
}

// GlobalReader is the minimal storage surface the scheduler needs to
// evaluate a Single (event) task's level trigger.
type GlobalReader interface {
	GetGlobalBool(name string) bool
}

// ProgramRunner executes one named program for one tick and reports any
// RuntimeError it raised. Supplied by the engine facade, which owns the
// evaluator and the instance-per-program mapping; the scheduler itself
// knows nothing about the evaluator.
type ProgramRunner func(programName string) error

// ResetFn reinitializes storage to load-time defaults, used by the
// Reset fault policy.
type ResetFn func()

// Runner drives tasks against a clock, recording RuntimeEvents and
// applying FaultPolicy on error.
type Runner struct {
	clock   Clock
	globals GlobalReader
	run     ProgramRunner
	reset   ResetFn
	log     *eventlog.Log
	policy  FaultPolicy

	tasks   []*Task
	states  []*State
	faulted bool

	profiler *profiler
}

func NewRunner(clock Clock, globals GlobalReader, run ProgramRunner, log *eventlog.Log, policy FaultPolicy) *Runner {
	return &Runner{
		clock: clock, globals: globals, run: run, log: log, policy: policy,
		profiler: newProfiler(),
	}
}

// SetResetFn installs the callback invoked when FaultPolicy is Reset;
// optional — if never set, Reset behaves like ContinueWithLastValues.
func (r *Runner) SetResetFn(fn ResetFn) { r.reset = fn }

// SetFaultPolicy reconfigures the policy applied on the next program
// fault, the UpdateFaultPolicy command spec.md's command channel lists.
func (r *Runner) SetFaultPolicy(p FaultPolicy) { r.policy = p }

// AddTask registers t, assigning it the next registration order. Tasks
// must be added before the first Tick.
func (r *Runner) AddTask(t Task) {
	t.registrationOrder = len(r.tasks)
	r.tasks = append(r.tasks, &t)
	r.states = append(r.states, &State{NextDue: 0})
}

func (r *Runner) Faulted() bool { return r.faulted }

// TaskStat is one task's current scheduling bookkeeping, exposed for
// the tasks.stats control response.
type TaskStat struct {
	Name          string
	Interval      int64
	Single        string
	Priority      int
	Programs      []string
	NextDue       int64
	LastRun       int64
	Missed        int
	WatchdogNs    int64
	WatchdogTrips int
}

// TaskStats reports every registered task's current State in
// registration order.
func (r *Runner) TaskStats() []TaskStat {
	out := make([]TaskStat, len(r.tasks))
	for i, t := range r.tasks {
		st := r.states[i]
		out[i] = TaskStat{
			Name: t.Name, Interval: t.Interval, Single: t.Single,
			Priority: t.Priority, Programs: append([]string(nil), t.Programs...),
			NextDue: st.NextDue, LastRun: st.LastRun, Missed: st.Missed,
			WatchdogNs: t.WatchdogNs, WatchdogTrips: t.WatchdogTrips,
		}
	}
	return out
}

// Tick reads the clock without advancing it (for a ManualClock, the
// caller calls Advance beforehand), computes the runnable set, executes it
// in (priority, registration_order) order, and applies the fault policy
// on the first program error encountered.
func (r *Runner) Tick() error {
	if r.faulted {
		return vmerr.New(vmerr.ResourceFaulted, "runtime is faulted; restart required")
	}
	now := r.clock.Now()

	runnable := r.runnableTasks(now)
	r.sortRunnable(runnable)

	for _, idx := range runnable {
		t, st := r.tasks[idx], r.states[idx]
		taskErr := r.runTask(t, st, now)
		if r.checkWatchdog(t, st, now) {
			r.faulted = true
			return fmt.Errorf("watchdog tripped for task %q: SafeHalt forced", t.Name)
		}
		if taskErr != nil {
			return r.applyFault(taskErr, now)
		}
	}
	return nil
}

// checkWatchdog updates t's consecutive-overrun counter from the cycle
// time just recorded and reports whether it has now tripped. Tripping
// forces SafeHalt even when t's own FaultPolicy is more lenient, the
// per-task watchdog named but unelaborated in the command channel.
func (r *Runner) checkWatchdog(t *Task, st *State, now int64) bool {
	if t.WatchdogNs <= 0 {
		return false
	}
	elapsed := r.clock.Now() - now
	if elapsed <= t.WatchdogNs {
		st.watchdogMisses = 0
		return false
	}
	st.watchdogMisses++
	trips := t.WatchdogTrips
	if trips <= 0 {
		trips = 3
	}
	if st.watchdogMisses < trips {
		return false
	}
	r.log.Record(eventlog.Event{Kind: eventlog.WatchdogTripped, Time: now, TaskName: t.Name, ConsecutiveMisses: st.watchdogMisses})
	return true
}

// SetTaskWatchdog reconfigures task name's watchdog deadline and trip
// threshold from an auxiliary thread, the UpdateWatchdog command
// spec.md's command channel lists. Reports whether name was found.
func (r *Runner) SetTaskWatchdog(name string, watchdogNs int64, trips int) bool {
	for i, t := range r.tasks {
		if t.Name == name {
			t.WatchdogNs = watchdogNs
			t.WatchdogTrips = trips
			r.states[i].watchdogMisses = 0
			return true
		}
	}
	return false
}

// SetTaskNextDue overrides name's next scheduled firing time, used to
// replay a mesh peer's task phase onto this runner (MeshApply). Reports
// whether name was found.
func (r *Runner) SetTaskNextDue(name string, nextDue int64) bool {
	for i, t := range r.tasks {
		if t.Name == name {
			r.states[i].NextDue = nextDue
			return true
		}
	}
	return false
}

func (r *Runner) runnableTasks(now int64) []int {
	var out []int
	for i, t := range r.tasks {
		st := r.states[i]
		single := t.Single != "" && r.globals != nil && r.globals.GetGlobalBool(t.Single)
		if t.due(now, st, single) {
			out = append(out, i)
		}
	}
	return out
}

// sortRunnable orders idx by (priority asc, registration_order asc).
// idx is already in registration order on entry, so a stable
// insertion sort on priority alone reproduces the canonical trace.
func (r *Runner) sortRunnable(idx []int) {
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && r.tasks[idx[j]].Priority < r.tasks[idx[j-1]].Priority; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
}

func (r *Runner) runTask(t *Task, st *State, now int64) error {
	r.log.Record(eventlog.Event{Kind: eventlog.TaskStart, Time: now, TaskName: t.Name})

	var taskErr error
	for _, prog := range t.Programs {
		start := now
		taskErr = r.run(prog)
		r.profiler.record(t.Name, prog, r.clock.Now()-start)
		if taskErr != nil {
			break
		}
	}

	r.log.Record(eventlog.Event{Kind: eventlog.TaskEnd, Time: r.clock.Now(), TaskName: t.Name})

	if t.Interval > 0 {
		missed := 0
		next := st.NextDue + t.Interval
		for next <= now {
			missed++
			next += t.Interval
		}
		if missed > 1 {
			r.log.Record(eventlog.Event{Kind: eventlog.TaskOverrun, Time: now, TaskName: t.Name, Missed: missed - 1})
			st.Missed += missed - 1
			st.NextDue = now
		} else {
			st.NextDue = now + t.Interval
		}
	}
	st.LastRun = now

	return taskErr
}

func (r *Runner) applyFault(err error, now int64) error {
	ve, _ := vmerr.As(err)
	r.log.Record(eventlog.Event{Kind: eventlog.Fault, Time: now, Err: ve})

	switch r.policy {
	case ContinueWithLastValues:
		return nil
	case Reset:
		if r.reset != nil {
			r.reset()
		}
		return nil
	default: // SafeHalt
		r.faulted = true
		return fmt.Errorf("fault under SafeHalt policy: %w", err)
	}
}
