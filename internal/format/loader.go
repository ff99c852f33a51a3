package format

import (
	"fmt"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/scheduler"
	"github.com/ironrail/stcore/internal/types"
)

// Load decodes data and materializes it into a *program.Program with a
// freshly rebuilt *types.Registry — the shape internal/eval and
// internal/engine consume. Replaying m.Types in registration order
// against a new registry reproduces the exact TypeIds the compiler
// assigned, since builtin ids are fixed and user ids are handed out
// densely starting at types.UserTypesStart.
func Load(data []byte) (*program.Program, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Materialize(m)
}

func Materialize(m *Module) (*program.Program, error) {
	reg := types.NewRegistry()
	for _, t := range m.Types {
		reg.Register(t.Name, t)
	}

	p := program.NewProgram(reg)
	p.Globals = m.Pous.Globals
	p.Retains = m.Pous.Retains
	p.FbInstanceVars = m.Pous.FbInstanceVars

	for i := range m.Pous.Functions {
		f := m.Pous.Functions[i]
		p.Functions[f.Name] = &f
	}
	for i := range m.Pous.FunctionBlocks {
		f := m.Pous.FunctionBlocks[i]
		p.FunctionBlocks[f.Name] = &f
	}
	for i := range m.Pous.Classes {
		c := m.Pous.Classes[i]
		p.Classes[c.Name] = &c
	}
	for i := range m.Pous.Programs {
		pr := m.Pous.Programs[i]
		p.Programs[pr.Name] = &pr
	}

	return p, nil
}

// Tasks builds the scheduler.Task list a resource's ResourceMeta
// declares, in declaration order (registrationOrder is assigned by
// scheduler.Runner.AddTask, not here).
func (m *Module) Tasks() []scheduler.Task {
	out := make([]scheduler.Task, len(m.Resource.Tasks))
	for i, tm := range m.Resource.Tasks {
		out[i] = scheduler.Task{
			Name:     tm.Name,
			Interval: tm.IntervalNanos,
			Single:   tm.Single,
			Priority: tm.Priority,
			Programs: tm.Programs,
		}
	}
	return out
}

// FaultPolicy resolves the ResourceMeta's textual policy to the
// scheduler's enum. An empty value means SafeHalt; an unknown value
// returns SafeHalt together with an error.
func (m *Module) FaultPolicy() (scheduler.FaultPolicy, error) {
	switch m.Resource.FaultPolicy {
	case "", "safe_halt":
		return scheduler.SafeHalt, nil
	case "continue_with_last_values":
		return scheduler.ContinueWithLastValues, nil
	case "reset":
		return scheduler.Reset, nil
	default:
		return scheduler.SafeHalt, fmt.Errorf("format: unknown fault policy %q", m.Resource.FaultPolicy)
	}
}
