package scheduler

// Task is one registered IEC 61131-3 task: a periodic or event-driven
// binding of priority to an ordered list of programs.
type Task struct {
	Name string
	// Interval is the periodic period in nanoseconds; zero means this
	// task only runs when Single's global goes TRUE (event-only).
	Interval int64
	// Single, if non-empty, names a BOOL global acting as a level
	// trigger: the task runs on that global's rising edge.
	Single string
	// Priority is the task's scheduling priority; 0 is highest.
	Priority int
	Programs []string

	// WatchdogNs is a soft per-cycle execution deadline beyond the
	// single-cycle execution_deadline: when the task's total program
	// execution time exceeds WatchdogNs for WatchdogTrips consecutive
	// ticks, the runtime is forced into SafeHalt regardless of the
	// task's own FaultPolicy. Zero disables the watchdog.
	WatchdogNs int64
	// WatchdogTrips is the number of consecutive overruns that trips
	// the watchdog; zero means the default of 3.
	WatchdogTrips int

	// registrationOrder is assigned by Runner.AddTask and used as the
	// tie-break within equal-priority tasks.
	registrationOrder int
}

// State tracks one Task's runtime bookkeeping across ticks.
type State struct {
	NextDue        int64
	LastRun        int64
	Missed         int
	prevSingle     bool
	watchdogMisses int
}

// due reports whether t is runnable at now given its current State.
// It also records singleVal so the next call can detect a rising edge
// of Single (for event tasks, that edge is the runnability condition).
func (t *Task) due(now int64, st *State, singleVal bool) bool {
	risingEdge := t.Single != "" && singleVal && !st.prevSingle
	st.prevSingle = singleVal
	if t.Interval > 0 {
		return now >= st.NextDue
	}
	if t.Single != "" {
		return risingEdge
	}
	return false
}
