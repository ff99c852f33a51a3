package scheduler

import (
	"github.com/google/pprof/profile"
)

// profiler accumulates per-(task, program) cycle durations and renders
// them into a pprof profile.Profile on request, the same artifact shape
// cmd_local/trace builds from goroutine scheduling traces, repurposed
// here for task/program cycle-time accounting.
type profiler struct {
	samples   []sample
	functions map[string]*profile.Function
	locations map[string]*profile.Location
	nextId    uint64
}

type sample struct {
	task, program string
	durationNanos int64
}

func newProfiler() *profiler {
	return &profiler{
		functions: make(map[string]*profile.Function),
		locations: make(map[string]*profile.Location),
	}
}

func (p *profiler) record(task, program string, durationNanos int64) {
	p.samples = append(p.samples, sample{task: task, program: program, durationNanos: durationNanos})
}

func (p *profiler) id() uint64 {
	p.nextId++
	return p.nextId
}

func (p *profiler) locationFor(task, program string) *profile.Location {
	key := task + "/" + program
	if loc, ok := p.locations[key]; ok {
		return loc
	}
	fn, ok := p.functions[key]
	if !ok {
		fn = &profile.Function{ID: p.id(), Name: key, SystemName: key}
		p.functions[key] = fn
	}
	loc := &profile.Location{
		ID:   p.id(),
		Line: []profile.Line{{Function: fn}},
	}
	p.locations[key] = loc
	return loc
}

// Profile renders every recorded sample into a pprof Profile whose
// single sample type is cycle time in nanoseconds, keyed by task and
// program name via Labels, for the `tasks.profile` control response and
// offline `go tool pprof` inspection.
func (p *profiler) Profile() *profile.Profile {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "cycle_time", Unit: "nanoseconds"}},
		PeriodType: &profile.ValueType{Type: "cycle_time", Unit: "nanoseconds"},
		Period:     1,
	}
	seenFn := make(map[uint64]bool)
	seenLoc := make(map[uint64]bool)
	for _, s := range p.samples {
		loc := p.locationFor(s.task, s.program)
		if !seenLoc[loc.ID] {
			prof.Location = append(prof.Location, loc)
			seenLoc[loc.ID] = true
			fn := loc.Line[0].Function
			if !seenFn[fn.ID] {
				prof.Function = append(prof.Function, fn)
				seenFn[fn.ID] = true
			}
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.durationNanos},
			Label: map[string][]string{
				"task":    {s.task},
				"program": {s.program},
			},
		})
	}
	return prof
}

// Profile exposes the runner's accumulated cycle-time samples.
func (r *Runner) Profile() *profile.Profile { return r.profiler.Profile() }
