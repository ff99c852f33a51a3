// Package engine is the facade that wires every internal package into
// one running instance: it loads a compiled program, owns the
// scheduler/evaluator/I-O/debug/retain/control plumbing, and exposes
// the command channel and control.Backend surface external callers
// use.
package engine

import (
	"fmt"

	"github.com/ironrail/stcore/internal/format"
	ioSub "github.com/ironrail/stcore/internal/io"
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
)

// materializeProgramInstances materializes one persistent storage instance per
// declared PROGRAM, exactly like an FB instance with no parent, so its
// VARs survive across ticks the way eval.RunProgram expects.
func materializeProgramInstances(st *storage.VariableStorage, p *program.Program, profile value.DateTimeProfile) (map[string]value.InstanceId, error) {
	out := make(map[string]value.InstanceId, len(p.Programs))
	for name, def := range p.Programs {
		id := st.CreateInstance(name, nil)
		for _, local := range def.Locals {
			v, err := p.Registry.DefaultValue(local.Type, profile)
			if err != nil {
				return nil, fmt.Errorf("engine: default %s.%s: %w", name, local.Name, err)
			}
			if err := st.SetInstanceVar(id, local.Name, v); err != nil {
				return nil, err
			}
		}
		out[name] = id
	}
	return out, nil
}

// materializeGlobals defaults every declared global/retain into
// storage; retain values are overwritten afterward by a warm restart's
// loaded snapshot (see Runtime.Restart).
func materializeGlobals(st *storage.VariableStorage, p *program.Program, profile value.DateTimeProfile) error {
	for _, g := range p.Globals {
		v, err := p.Registry.DefaultValue(g.Type, profile)
		if err != nil {
			return fmt.Errorf("engine: default global %s: %w", g.Name, err)
		}
		st.SetGlobal(g.Name, v)
	}
	for _, g := range p.Retains {
		v, err := p.Registry.DefaultValue(g.Type, profile)
		if err != nil {
			return fmt.Errorf("engine: default retain %s: %w", g.Name, err)
		}
		st.SetRetain(g.Name, v)
	}
	return nil
}

func retainNames(p *program.Program) []string {
	names := make([]string, len(p.Retains))
	for i, g := range p.Retains {
		names[i] = g.Name
	}
	return names
}

// BindIo replays m's declared direct-address bindings onto sub, in
// declaration order, the same order WritePhase/ReadPhase apply them in.
func BindIo(sub *ioSub.Subsystem, m *format.Module) error {
	for _, bm := range m.IoMap {
		addr, err := ioSub.ParseAddress(bm.Addr)
		if err != nil {
			return fmt.Errorf("engine: io binding %q: %w", bm.Name, err)
		}
		var dir ioSub.BindingDirection
		switch bm.Dir {
		case "input":
			dir = ioSub.BindInput
		case "output":
			dir = ioSub.BindOutput
		default:
			return fmt.Errorf("engine: io binding %q: unknown direction %q", bm.Name, bm.Dir)
		}
		sub.Bind(ioSub.Binding{Name: bm.Name, Addr: addr, Dir: dir, RefKind: value.Kind(bm.RefKind)})
	}
	return nil
}

// LoadModule decodes a binary program file and returns the materialized
// program model alongside its resource metadata, without constructing
// a Runtime — used by tooling that only needs to inspect a compiled
// program (e.g. a future `stcored -validate` mode).
func LoadModule(data []byte) (*program.Program, *format.Module, error) {
	m, err := format.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	p, err := format.Materialize(m)
	if err != nil {
		return nil, nil, err
	}
	return p, m, nil
}
