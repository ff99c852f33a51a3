package eval

import (
	"strings"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// EvalCall resolves and executes a call expression in priority order:
// pseudo-ops, user function, standard library, method call on an
// Instance base, then implicit function-block call.
func EvalCall(ctx *EvalContext, e *program.Expr) (value.Value, error) {
	if v, handled, err := evalPseudoOp(ctx, e); handled {
		return v, err
	}

	if e.Base != nil {
		base, err := EvalExpr(ctx, e.Base)
		if err != nil {
			return value.Value{}, err
		}
		if base.Kind != value.KindInstance {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "method call target is not an instance")
		}
		return callMethod(ctx, base.Instance, strings.ToUpper(e.Target), e.Args, e.Loc)
	}

	upper := strings.ToUpper(e.Target)

	if fn, ok := ctx.Program.Functions[upper]; ok {
		return callFunction(ctx, fn, e.Args, e.Loc)
	}

	args, named, err := evalPlainArgs(ctx, e.Args)
	if err != nil {
		return value.Value{}, err
	}
	if ctx.Builtins != nil {
		if v, recognized, err := ctx.Builtins.Call(ctx, upper, args, named); recognized {
			return v, err
		}
	}

	// Implicit FB call: Target names an in-scope FB instance variable.
	if v, err := evalName(ctx, e.Target); err == nil && v.Kind == value.KindInstance {
		return invokeInstance(ctx, v.Instance, e.Args, e.Loc)
	}

	return value.Value{}, vmerr.New(vmerr.UndefinedFunction, "%q", e.Target)
}

func evalPlainArgs(ctx *EvalContext, args []program.Arg) ([]value.Value, map[string]value.Value, error) {
	positional := make([]value.Value, 0, len(args))
	named := make(map[string]value.Value, len(args))
	for _, a := range args {
		v, err := EvalExpr(ctx, a.Value)
		if err != nil {
			return nil, nil, err
		}
		if a.Name == "" {
			positional = append(positional, v)
		} else {
			named[strings.ToUpper(a.Name)] = v
		}
	}
	return positional, named, nil
}

// callFunction binds parameters into a fresh frame, runs the body, and
// returns the value assigned to the function's name slot (or the zero
// value for Void-equivalent functions that never assign it).
func callFunction(ctx *EvalContext, fn *program.FunctionDef, args []program.Arg, loc program.SourceLocation) (value.Value, error) {
	if ctx.CallDepth >= ctx.MaxCallDepth {
		return value.Value{}, vmerr.New(vmerr.StackOverflow, "max call depth %d exceeded", ctx.MaxCallDepth)
	}
	frame := ctx.Storage.PushFrame(fn.Name, ctx.CurrentInstance, fn.Name)
	defer ctx.Storage.PopFrame()

	defaultVal, err := ctx.Registry.DefaultValue(fn.ReturnType, ctx.Profile)
	if err != nil {
		return value.Value{}, err
	}
	frame.Set(fn.Name, defaultVal)

	if err := bindParams(ctx, frame, fn.Params, args); err != nil {
		return value.Value{}, err
	}
	if err := defaultLocals(ctx, frame, fn.Locals); err != nil {
		return value.Value{}, err
	}

	ctx.CallDepth++
	savedUsing := ctx.Using
	ctx.Using = fn.Using
	err = runCallBody(ctx, fn.Body)
	ctx.Using = savedUsing
	ctx.CallDepth--
	if err != nil {
		return value.Value{}, err
	}
	if err := copyOutputs(ctx, frame, fn.Params, args); err != nil {
		return value.Value{}, err
	}
	result, _ := frame.Get(fn.Name)
	return result, nil
}

// callMethod resolves methodName up instanceId's class hierarchy and
// executes it with CurrentInstance bound to instanceId.
func callMethod(ctx *EvalContext, instanceId value.InstanceId, methodName string, args []program.Arg, loc program.SourceLocation) (value.Value, error) {
	typeName, err := ctx.Storage.InstanceTypeName(instanceId)
	if err != nil {
		return value.Value{}, err
	}
	method, declaringClass, ok := ctx.Program.FindMethod(typeName, methodName)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.UndefinedFunction, "method %q on %q", methodName, typeName)
	}
	if ctx.CallDepth >= ctx.MaxCallDepth {
		return value.Value{}, vmerr.New(vmerr.StackOverflow, "max call depth %d exceeded", ctx.MaxCallDepth)
	}
	frame := ctx.Storage.PushFrame(declaringClass+"."+method.Name, &instanceId, method.Name)
	defer ctx.Storage.PopFrame()

	defaultVal, err := ctx.Registry.DefaultValue(method.ReturnType, ctx.Profile)
	if err != nil {
		return value.Value{}, err
	}
	frame.Set(method.Name, defaultVal)

	if err := bindParams(ctx, frame, method.Params, args); err != nil {
		return value.Value{}, err
	}
	if err := defaultLocals(ctx, frame, method.Locals); err != nil {
		return value.Value{}, err
	}

	savedInstance, savedClass, savedUsing := ctx.CurrentInstance, ctx.CurrentClass, ctx.Using
	ctx.CurrentInstance = &instanceId
	ctx.CurrentClass = declaringClass
	ctx.Using = method.Using
	ctx.CallDepth++
	err = runCallBody(ctx, method.Body)
	ctx.CallDepth--
	ctx.CurrentInstance, ctx.CurrentClass, ctx.Using = savedInstance, savedClass, savedUsing
	if err != nil {
		return value.Value{}, err
	}
	if err := copyOutputs(ctx, frame, method.Params, args); err != nil {
		return value.Value{}, err
	}
	result, _ := frame.Get(method.Name)
	return result, nil
}

// invokeInstance runs a function-block instance's body (standard or
// user-defined), binding named args as VAR_INPUT, and returns the
// instance itself so the call expression can be field-accessed for
// outputs (e.g. `Timer(IN:=x, PT:=t).Q`).
func invokeInstance(ctx *EvalContext, instanceId value.InstanceId, args []program.Arg, loc program.SourceLocation) (value.Value, error) {
	typeName, err := ctx.Storage.InstanceTypeName(instanceId)
	if err != nil {
		return value.Value{}, err
	}
	_, named, err := evalPlainArgs(ctx, args)
	if err != nil {
		return value.Value{}, err
	}
	if ctx.StandardFBs != nil && ctx.StandardFBs.IsStandard(typeName) {
		for name, v := range named {
			if err := ctx.Storage.SetInstanceVar(instanceId, name, v); err != nil {
				return value.Value{}, err
			}
		}
		outputs, err := ctx.StandardFBs.Invoke(ctx, typeName, instanceId, named)
		if err != nil {
			return value.Value{}, err
		}
		for name, v := range outputs {
			if err := ctx.Storage.SetInstanceVar(instanceId, name, v); err != nil {
				return value.Value{}, err
			}
		}
		return value.InstanceVal(instanceId), nil
	}

	fb, ok := ctx.Program.FunctionBlocks[strings.ToUpper(typeName)]
	if !ok {
		return value.Value{}, vmerr.New(vmerr.UndefinedFunctionBlock, "%q", typeName)
	}
	if ctx.CallDepth >= ctx.MaxCallDepth {
		return value.Value{}, vmerr.New(vmerr.StackOverflow, "max call depth %d exceeded", ctx.MaxCallDepth)
	}
	for _, p := range fb.Params {
		if p.Dir == program.DirInput || p.Dir == program.DirInOut {
			if v, ok := named[strings.ToUpper(p.Name)]; ok {
				if err := ctx.Storage.SetInstanceVar(instanceId, p.Name, v); err != nil {
					return value.Value{}, err
				}
			}
		}
	}
	savedInstance, savedUsing := ctx.CurrentInstance, ctx.Using
	ctx.CurrentInstance = &instanceId
	ctx.Using = fb.Using
	ctx.CallDepth++
	err = runCallBody(ctx, fb.Body)
	ctx.CallDepth--
	ctx.CurrentInstance, ctx.Using = savedInstance, savedUsing
	if err != nil {
		return value.Value{}, err
	}
	return value.InstanceVal(instanceId), nil
}

// runCallBody executes a callee body, swallowing a `return` signal
// (which only unwinds to the call boundary) while letting any error
// propagate.
func runCallBody(ctx *EvalContext, body []*program.Stmt) error {
	savedLoopDepth := ctx.LoopDepth
	ctx.LoopDepth = 0
	err := RunBody(ctx, body)
	ctx.returning = false
	ctx.LoopDepth = savedLoopDepth
	return err
}

func bindParams(ctx *EvalContext, frame *storage.LocalFrame, params []program.Param, args []program.Arg) error {
	positionalIdx := 0
	for _, a := range args {
		if a.Name != "" {
			continue
		}
		if positionalIdx >= len(params) {
			return vmerr.New(vmerr.InvalidConfig, "too many positional arguments")
		}
		p := params[positionalIdx]
		positionalIdx++
		if err := bindOneParam(ctx, frame, p, a); err != nil {
			return err
		}
	}
	byName := make(map[string]program.Arg, len(args))
	for _, a := range args {
		if a.Name != "" {
			byName[strings.ToUpper(a.Name)] = a
		}
	}
	for i, p := range params {
		if i < positionalIdx {
			continue
		}
		a, ok := byName[strings.ToUpper(p.Name)]
		if !ok {
			def, err := ctx.Registry.DefaultValue(p.Type, ctx.Profile)
			if err != nil {
				return err
			}
			frame.Set(p.Name, def)
			continue
		}
		if err := bindOneParam(ctx, frame, p, a); err != nil {
			return err
		}
	}
	return nil
}

func bindOneParam(ctx *EvalContext, frame *storage.LocalFrame, p program.Param, a program.Arg) error {
	if p.Dir == program.DirInOut {
		lv, err := exprToLValue(a.Value)
		if err != nil {
			return err
		}
		ref, err := resolveLValueRef(ctx, lv)
		if err != nil {
			return err
		}
		frame.Set(p.Name, value.ReferenceTo(ref))
		return nil
	}
	v, err := EvalExpr(ctx, a.Value)
	if err != nil {
		return err
	}
	frame.Set(p.Name, v)
	return nil
}

func defaultLocals(ctx *EvalContext, frame *storage.LocalFrame, locals []program.LocalVar) error {
	for _, l := range locals {
		def, err := ctx.Registry.DefaultValue(l.Type, ctx.Profile)
		if err != nil {
			return err
		}
		frame.Set(l.Name, def)
	}
	return nil
}

// copyOutputs copies VAR_OUTPUT slots from frame back into any `=>`
// bindings supplied by the caller; skipped entirely if the call body
// faulted (handled by the caller never reaching here on error).
func copyOutputs(ctx *EvalContext, frame *storage.LocalFrame, params []program.Param, args []program.Arg) error {
	outByName := make(map[string]*program.LValue)
	for _, a := range args {
		if a.OutTarget != nil {
			outByName[strings.ToUpper(a.Name)] = a.OutTarget
		}
	}
	for _, p := range params {
		if p.Dir != program.DirOutput {
			continue
		}
		target, ok := outByName[strings.ToUpper(p.Name)]
		if !ok {
			continue
		}
		v, _ := frame.Get(p.Name)
		if err := AssignLValue(ctx, target, v); err != nil {
			return err
		}
	}
	return nil
}
