package eval

import (
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/value"
)

// RunProgram executes one PROGRAM body with its declared VARs resolved
// through instanceId (the facade materializes one instance per
// declared program at load time, exactly like an FB instance with no
// parent), returning any RuntimeError the body raised.
func RunProgram(ctx *EvalContext, instanceId value.InstanceId, body []*program.Stmt) error {
	savedInstance := ctx.CurrentInstance
	ctx.CurrentInstance = &instanceId
	ctx.LoopDepth = 0
	err := RunBody(ctx, body)
	ctx.CurrentInstance = savedInstance
	return err
}
