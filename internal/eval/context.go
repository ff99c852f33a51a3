// Package eval implements the single-threaded, re-entrant tree-walking
// evaluator: expression and statement execution, lvalue resolution,
// and function/method/function-block call mechanics.
package eval

import (
	"time"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/types"
	"github.com/ironrail/stcore/internal/value"
)

// Builtins is the standard-library function dispatch surface
// (internal/stdlib implements it); kept as an interface here so eval
// never imports stdlib, avoiding an import cycle.
type Builtins interface {
	// Call attempts to evaluate name(args...) as a builtin function.
	// recognized is false if name is not a known builtin, in which case
	// the evaluator tries the next resolution step.
	Call(ctx *EvalContext, name string, args []value.Value, named map[string]value.Value) (result value.Value, recognized bool, err error)
}

// StandardFBs is the standard function-block dispatch surface
// (timers, counters, edges, latches).
type StandardFBs interface {
	IsStandard(typeName string) bool
	Invoke(ctx *EvalContext, typeName string, instanceId value.InstanceId, inputs map[string]value.Value) (outputs map[string]value.Value, err error)
}

// DebugHook is consulted at every statement boundary; internal/debug
// implements it. Implementations block internally until execution
// should proceed.
type DebugHook interface {
	StatementBoundary(threadID string, frameDepth int, loc program.SourceLocation)
}

// DeadlineExceededErr is returned when ExecutionDeadline has passed at
// a statement boundary.
type DeadlineExceededErr struct{}

func (DeadlineExceededErr) Error() string { return "DeadlineExceeded" }

// EvalContext carries everything one call to Run/EvalExpr needs. A
// fresh EvalContext (sharing Storage/Registry/Program) is constructed
// per task execution; Now is advanced by the caller, never read from
// the wall clock inside the evaluator.
type EvalContext struct {
	Storage  *storage.VariableStorage
	Registry *types.Registry
	Profile  value.DateTimeProfile
	Program  *program.Program

	Now time.Duration // simulated time since runtime start

	Builtins     Builtins
	StandardFBs  StandardFBs
	DebugHook    DebugHook // nil disables debug stops entirely
	ThreadID     string

	CallDepth   int
	MaxCallDepth int

	LoopDepth int

	// CurrentInstance is set while executing a method/implicit-FB body.
	CurrentInstance *value.InstanceId
	// CurrentClass names the class currently dispatching (for method
	// resolution continuing up the base chain on a super call).
	CurrentClass string

	// Using is the active USING namespace path for unqualified name
	// resolution, captured at the calling POU's definition site.
	Using []string

	PauseRequested    bool
	ExecutionDeadline *time.Duration // absolute sim-time deadline, nil disables

	// signals set by control-flow statements as they unwind.
	returning   bool
	returnVal   value.Value
	breaking    bool
	continuing  bool
	pendingJump string
}

func DefaultMaxCallDepth() int { return 256 }

// NewEvalContext constructs a context ready to run one task's programs.
func NewEvalContext(st *storage.VariableStorage, reg *types.Registry, prog *program.Program, profile value.DateTimeProfile) *EvalContext {
	return &EvalContext{
		Storage: st, Registry: reg, Program: prog, Profile: profile,
		MaxCallDepth: DefaultMaxCallDepth(),
	}
}

// checkBoundary is invoked before executing each statement: it enforces
// the execution deadline, honors pause requests, and calls the debug
// hook.
func (c *EvalContext) checkBoundary(loc program.SourceLocation) error {
	if c.ExecutionDeadline != nil && c.Now >= *c.ExecutionDeadline {
		return DeadlineExceededErr{}
	}
	if c.DebugHook != nil {
		c.DebugHook.StatementBoundary(c.ThreadID, c.Storage.FrameDepth(), loc)
	}
	return nil
}
