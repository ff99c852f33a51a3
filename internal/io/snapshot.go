package io

import (
	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
)

// Entry describes one addressable location in a Snapshot: its address,
// the declared variable name bound to it (if any), and either its
// current value or the reason it could not be resolved.
type Entry struct {
	Addr         Address
	DeclaredName string // empty if unbound
	Value        value.Value
	Unresolved   string // non-empty if Value is not meaningful
}

// Snapshot enumerates every bound address, grouped by area, for debug and HMI consumption. It is a point-in-time copy: safe
// to retain and diff against a later Snapshot.
type Snapshot struct {
	Inputs, Outputs, Memory []Entry
}

// Snapshot walks sub's bindings and reports each one's current value,
// grouped by area.
func (sub *Subsystem) Snapshot() Snapshot {
	var snap Snapshot
	for _, b := range sub.bindings {
		v, err := ReadAddress(sub.storage.Io, b.Addr, b.RefKind)
		e := Entry{Addr: b.Addr, DeclaredName: b.Name, Value: v}
		if err != nil {
			e.Unresolved = err.Error()
		}
		switch b.Addr.Area {
		case storage.AreaInput:
			snap.Inputs = append(snap.Inputs, e)
		case storage.AreaOutput:
			snap.Outputs = append(snap.Outputs, e)
		default:
			snap.Memory = append(snap.Memory, e)
		}
	}
	return snap
}

// Diff reports every Entry in next whose value differs from prev's
// entry at the same address (matched by Area+Byte+Bit), used by the
// control protocol's `invalidated {areas}` event to avoid re-publishing
// an unchanged image every tick.
func Diff(prev, next Snapshot) []Entry {
	var out []Entry
	out = append(out, diffGroup(prev.Inputs, next.Inputs)...)
	out = append(out, diffGroup(prev.Outputs, next.Outputs)...)
	out = append(out, diffGroup(prev.Memory, next.Memory)...)
	return out
}

func diffGroup(prev, next []Entry) []Entry {
	byAddr := make(map[Address]Entry, len(prev))
	for _, e := range prev {
		byAddr[e.Addr] = e
	}
	var changed []Entry
	for _, e := range next {
		old, ok := byAddr[e.Addr]
		if !ok || !sameValue(old.Value, e.Value) || old.Unresolved != e.Unresolved {
			changed = append(changed, e)
		}
	}
	return changed
}

func sameValue(a, b value.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case value.KindBool:
		return a.Bool == b.Bool
	case value.KindReal, value.KindLReal:
		return a.Real == b.Real
	default:
		return a.Int == b.Int
	}
}
