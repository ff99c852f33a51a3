// Package debug implements the debug control plane: a breakpoint table
// per source file (with change-generation tracking to invalidate stale
// stops), the execution mode/stepping state machine, the stop-gate that
// orders control responses ahead of stop events, watch expressions, and
// point-in-time storage snapshots. It implements eval.DebugHook so the
// evaluator can call into it at every statement boundary without
// importing this package.
package debug

import (
	"sort"

	"github.com/ironrail/stcore/internal/program"
)

// Breakpoint is one registered stop location. Condition, HitCondition
// and LogMessage are stored and listed back as given; Control does not
// evaluate them, so every breakpoint whose range matches stops the
// thread, including one that carries a log message.
type Breakpoint struct {
	Location     program.SourceLocation
	Condition    string
	HitCondition string
	LogMessage   string
	Hits         int
}

// fileTable holds one file's breakpoints (kept sorted by ascending
// Location.Start) plus its change generation.
type fileTable struct {
	breakpoints []Breakpoint
	generation  uint64
}

// SetBreakpointsForFile replaces fileId's breakpoint table and
// increments its generation, invalidating any stop already in flight
// for the old table (scenario S3).
func (c *Control) SetBreakpointsForFile(fileId uint32, bps []Breakpoint) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	sorted := append([]Breakpoint(nil), bps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Location.Start < sorted[j].Location.Start })
	t := c.tableFor(fileId)
	t.breakpoints = sorted
	t.generation++
	return t.generation
}

func (c *Control) tableFor(fileId uint32) *fileTable {
	t, ok := c.files[fileId]
	if !ok {
		t = &fileTable{}
		c.files[fileId] = t
	}
	return t
}

// ListBreakpoints returns fileId's current table and generation.
func (c *Control) ListBreakpoints(fileId uint32) ([]Breakpoint, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.files[fileId]
	if !ok {
		return nil, 0
	}
	return append([]Breakpoint(nil), t.breakpoints...), t.generation
}

// ClearBreakpoints empties fileId's table, incrementing its generation.
func (c *Control) ClearBreakpoints(fileId uint32) uint64 {
	return c.SetBreakpointsForFile(fileId, nil)
}

// matchBreakpoint reports the first breakpoint in fileId's table whose
// range contains loc.Start, and the table's current generation. A
// breakpoint's own Location carries the file id implicitly (the caller
// indexes by fileId); loc must belong to the same file.
func (c *Control) matchBreakpoint(fileId uint32, loc program.SourceLocation) (*Breakpoint, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.files[fileId]
	if !ok {
		return nil, 0, false
	}
	for i := range t.breakpoints {
		bp := &t.breakpoints[i]
		if bp.Location.Contains(loc.Start) {
			bp.Hits++
			return bp, t.generation, true
		}
	}
	return nil, t.generation, false
}

// currentGeneration reports fileId's table generation without requiring
// a breakpoint match, used to stamp non-breakpoint stops.
func (c *Control) currentGeneration(fileId uint32) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[fileId].generationOrZero()
}

func (t *fileTable) generationOrZero() uint64 {
	if t == nil {
		return 0
	}
	return t.generation
}
