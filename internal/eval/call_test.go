package eval

import (
	"testing"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/types"
	"github.com/ironrail/stcore/internal/value"
)

// TestCallFunctionReturnsNameSlot verifies a function's result comes
// from the value assigned to its own name inside the body.
func TestCallFunctionReturnsNameSlot(t *testing.T) {
	ctx := newTestCtx()
	double := &program.FunctionDef{
		Name:       "DOUBLE",
		ReturnType: types.DIntId(),
		Params:     []program.Param{{Name: "X", Type: types.DIntId(), Dir: program.DirInput}},
		Body: []*program.Stmt{
			assignStmt("DOUBLE", &program.Expr{Kind: program.ExprBinary, Op: program.OpMul, Left: nameExpr("X"), Right: intLit(2)}),
		},
	}
	ctx.Program.Functions["DOUBLE"] = double

	callExpr := &program.Expr{Kind: program.ExprCall, Target: "DOUBLE", Args: []program.Arg{{Value: intLit(21)}}}
	v, err := EvalCall(ctx, callExpr)
	if err != nil {
		t.Fatalf("DOUBLE(21): %v", err)
	}
	if v.Int != 42 {
		t.Errorf("DOUBLE(21) = %d, want 42", v.Int)
	}
	if ctx.Storage.FrameDepth() != 0 {
		t.Errorf("call frame should be popped after return, depth=%d", ctx.Storage.FrameDepth())
	}
}

// TestCallFunctionCopiesVarOutput verifies a "name => target" binding
// copies the callee's VAR_OUTPUT slot back to the caller's lvalue.
func TestCallFunctionCopiesVarOutput(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("Dest", value.Int(value.KindDInt, 0))

	fn := &program.FunctionDef{
		Name:       "SPLIT2",
		ReturnType: types.DIntId(),
		Params: []program.Param{
			{Name: "IN", Type: types.DIntId(), Dir: program.DirInput},
			{Name: "DOUBLED", Type: types.DIntId(), Dir: program.DirOutput},
		},
		Body: []*program.Stmt{
			assignStmt("DOUBLED", &program.Expr{Kind: program.ExprBinary, Op: program.OpMul, Left: nameExpr("IN"), Right: intLit(2)}),
			assignStmt("SPLIT2", nameExpr("IN")),
		},
	}
	ctx.Program.Functions["SPLIT2"] = fn

	callExpr := &program.Expr{
		Kind:   program.ExprCall,
		Target: "SPLIT2",
		Args: []program.Arg{
			{Value: intLit(9)},
			{Name: "DOUBLED", Value: intLit(0), OutTarget: &program.LValue{Kind: program.LVName, Name: "Dest"}},
		},
	}
	v, err := EvalCall(ctx, callExpr)
	if err != nil {
		t.Fatalf("SPLIT2(9, DOUBLED=>Dest): %v", err)
	}
	if v.Int != 9 {
		t.Errorf("SPLIT2 result = %d, want 9", v.Int)
	}
	dest, _ := ctx.Storage.GetGlobal("Dest")
	if dest.Int != 18 {
		t.Errorf("Dest after VAR_OUTPUT copy-back = %d, want 18", dest.Int)
	}
}

// TestCallFunctionVarInOutBindsReference verifies a VAR_IN_OUT param
// is bound as a live reference to the caller's variable, so writes
// inside the callee are visible to the caller without an explicit
// copy-back.
func TestCallFunctionVarInOutBindsReference(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("Counter", value.Int(value.KindDInt, 5))

	fn := &program.FunctionDef{
		Name: "INCR",
		Params: []program.Param{
			{Name: "V", Type: types.DIntId(), Dir: program.DirInOut},
		},
		Body: []*program.Stmt{
			{
				Kind:   program.StmtAssign,
				Target: &program.LValue{Kind: program.LVDeref, Inner: nameExpr("V")},
				Expr:   &program.Expr{Kind: program.ExprBinary, Op: program.OpAdd, Left: &program.Expr{Kind: program.ExprDeref, Inner: nameExpr("V")}, Right: intLit(1)},
			},
		},
	}
	ctx.Program.Functions["INCR"] = fn

	callExpr := &program.Expr{Kind: program.ExprCall, Target: "INCR", Args: []program.Arg{{Value: nameExpr("Counter")}}}
	if _, err := EvalCall(ctx, callExpr); err != nil {
		t.Fatalf("INCR(Counter): %v", err)
	}
	got, _ := ctx.Storage.GetGlobal("Counter")
	if got.Int != 6 {
		t.Errorf("Counter after INCR(Counter) = %d, want 6 (VAR_IN_OUT writes through)", got.Int)
	}
}

func TestCallFunctionStackOverflow(t *testing.T) {
	ctx := newTestCtx()
	ctx.MaxCallDepth = 3
	var recurse *program.FunctionDef
	recurse = &program.FunctionDef{
		Name: "RECURSE",
		Body: []*program.Stmt{
			{Kind: program.StmtExprStmt, CallExpr: &program.Expr{Kind: program.ExprCall, Target: "RECURSE"}},
		},
	}
	ctx.Program.Functions["RECURSE"] = recurse

	callExpr := &program.Expr{Kind: program.ExprCall, Target: "RECURSE"}
	_, err := EvalCall(ctx, callExpr)
	if err == nil {
		t.Fatalf("unbounded recursion should hit StackOverflow")
	}
}

func TestCallUndefinedFunctionErrors(t *testing.T) {
	ctx := newTestCtx()
	callExpr := &program.Expr{Kind: program.ExprCall, Target: "NOPE"}
	if _, err := EvalCall(ctx, callExpr); err == nil {
		t.Errorf("calling an undefined function should fail")
	}
}

// TestCallMethodDispatchesUpBaseChain verifies method resolution walks
// Base when the method is declared on a parent class.
func TestCallMethodDispatchesUpBaseChain(t *testing.T) {
	ctx := newTestCtx()
	ctx.Program.Classes["Base"] = &program.ClassDef{
		Name: "Base",
		Locals: []program.LocalVar{{Name: "X", Type: types.DIntId()}},
		Methods: []*program.MethodDef{
			{
				Name:       "GETX",
				ReturnType: types.DIntId(),
				Body:       []*program.Stmt{assignStmt("GETX", nameExpr("X"))},
			},
		},
	}
	ctx.Program.Classes["Derived"] = &program.ClassDef{
		Name: "Derived",
		Base: "Base",
	}

	baseInst := ctx.Storage.CreateInstance("Base", nil)
	derivedInst := ctx.Storage.CreateInstance("Derived", &baseInst)
	ctx.Storage.SetInstanceVar(baseInst, "X", value.Int(value.KindDInt, 77))

	v, err := callMethod(ctx, derivedInst, "GETX", nil, program.SourceLocation{})
	if err != nil {
		t.Fatalf("derivedInst.GETX(): %v", err)
	}
	if v.Int != 77 {
		t.Errorf("GETX() via inherited method = %d, want 77", v.Int)
	}
}

func TestCallMethodUndefinedErrors(t *testing.T) {
	ctx := newTestCtx()
	ctx.Program.Classes["Base"] = &program.ClassDef{Name: "Base"}
	inst := ctx.Storage.CreateInstance("Base", nil)
	if _, err := callMethod(ctx, inst, "NOPE", nil, program.SourceLocation{}); err == nil {
		t.Errorf("calling an undeclared method should fail")
	}
}
