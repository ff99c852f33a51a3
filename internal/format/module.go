package format

import (
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/types"
	"github.com/ironrail/stcore/internal/value"
)

// Module is the fully decoded in-memory form of a binary program
// file: everything Build/Load round-trip through the section table.
type Module struct {
	VersionMajor uint16
	VersionMinor uint16

	Strings      []string
	DebugStrings []string

	// Types lists every user-registered type (builtin ids are implicit
	// and never serialized) in registration order, so replaying
	// Registry.Register against a fresh types.NewRegistry() reproduces
	// identical TypeIds.
	Types []types.Type

	Consts []value.Value
	Refs   []value.ValueRef

	Pous PouSet

	Resource   ResourceMeta
	IoMap      []IoBindingMeta
	VarMeta    []VarMetaEntry
	RetainInit []RetainInitEntry
	DebugMap   []DebugLocEntry
}

// PouSet carries every POU kind plus the top-level globals/retains and
// FB/class instance declarations that make up one program.Program.
type PouSet struct {
	Functions      []program.FunctionDef
	FunctionBlocks []program.FunctionBlockDef
	Classes        []program.ClassDef
	Programs       []program.ProgramDef
	Globals        []program.GlobalVar
	Retains        []program.GlobalVar
	FbInstanceVars []program.InstanceDecl
}

// ResourceMeta describes the scheduler configuration a resource
// declares: its tasks and the fault/retain policy governing them.
type ResourceMeta struct {
	Tasks                []TaskMeta
	FaultPolicy          string // "safe_halt" | "continue_with_last_values" | "reset"
	RetainSaveIntervalMs int64
}

type TaskMeta struct {
	Name          string
	IntervalNanos int64  // 0 for an event task
	Single        string // non-empty global BOOL name for an event task
	Priority      int
	Programs      []string
}

// IoBindingMeta is the serialized form of one direct-address binding.
type IoBindingMeta struct {
	Name    string
	Addr    string // IEC direct address text, e.g. "%IX0.0"
	Dir     string // "input" | "output"
	RefKind uint8  // value.Kind of the bound variable
}

// VarMetaEntry records one declared VAR slot's scope, type and retain
// policy, used to rebuild storage layout and Snapshot/restore metadata.
type VarMetaEntry struct {
	Scope  string // "" for globals, else owning POU/FB name
	Name   string
	Type   types.TypeId
	Retain uint8 // program.RetainPolicy
}

// RetainInitEntry carries the last-saved value for one RETAIN/PERSISTENT
// slot, applied by internal/retain on a warm restart.
type RetainInitEntry struct {
	Name  string
	Value value.Value
}

// DebugLocEntry maps one source range to the POU and statement index
// the debugger resolves breakpoints and stack frames against.
type DebugLocEntry struct {
	FileId   uint32
	Start    uint32
	End      uint32
	PouName  string
	StmtPath string // e.g. "3.1.0", indices into nested Body/Then/Else slices
}
