// Package eventlog defines RuntimeEvent, the closed set of observable
// occurrences a runtime instance reports to its control server and test
// harnesses: task lifecycle, faults, forces, debug stops, and restarts.
package eventlog

import "github.com/ironrail/stcore/internal/vmerr"

// Kind is one of the non-overlapping RuntimeEvent variants.
type Kind int

const (
	TaskStart Kind = iota
	TaskEnd
	TaskOverrun
	Fault
	ForceApplied
	ForceCleared
	DebugStop
	RestartOccurred
	WatchdogTripped
)

func (k Kind) String() string {
	switch k {
	case TaskStart:
		return "TaskStart"
	case TaskEnd:
		return "TaskEnd"
	case TaskOverrun:
		return "TaskOverrun"
	case Fault:
		return "Fault"
	case ForceApplied:
		return "ForceApplied"
	case ForceCleared:
		return "ForceCleared"
	case DebugStop:
		return "DebugStop"
	case RestartOccurred:
		return "RestartOccurred"
	case WatchdogTripped:
		return "WatchdogTripped"
	default:
		return "Unknown"
	}
}

// Event is one RuntimeEvent occurrence. Only the fields relevant to Kind
// are populated; the rest stay at zero value.
type Event struct {
	Kind Kind
	Time int64 // simulated ticks (ns) at the moment the event was recorded

	TaskName    string
	ProgramName string

	// TaskOverrun
	Missed int

	// WatchdogTripped
	ConsecutiveMisses int

	// Fault
	Err *vmerr.Error

	// ForceApplied / ForceCleared
	Address string

	// DebugStop
	Reason               string
	ThreadId             int
	BreakpointGeneration uint64

	// RestartOccurred
	Mode string // "warm" | "cold"
}

// Log is an append-only, in-memory sink for Events, read back through
// Events/Since by determinism property tests that compare two
// independently produced traces. The control server's `status` and
// `health` responses do not include it.
type Log struct {
	events []Event
}

func NewLog() *Log { return &Log{} }

func (l *Log) Record(e Event) { l.events = append(l.events, e) }

// Events returns every recorded event in emission order. The returned
// slice is a copy; mutating it does not affect the log.
func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) Len() int { return len(l.events) }

// Since returns events recorded at or after index i, for incremental
// control-protocol polling.
func (l *Log) Since(i int) []Event {
	if i >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-i)
	copy(out, l.events[i:])
	return out
}
