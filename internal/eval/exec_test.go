package eval

import (
	"testing"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/value"
)

func assignStmt(target string, e *program.Expr) *program.Stmt {
	return &program.Stmt{Kind: program.StmtAssign, Target: &program.LValue{Kind: program.LVName, Name: target}, Expr: e}
}

func TestExecIfElsifElse(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("Out", value.Int(value.KindInt, 0))

	build := func(cond, elifCond *program.Expr) *program.Stmt {
		return &program.Stmt{
			Kind: program.StmtIf,
			Cond: cond,
			Then: []*program.Stmt{assignStmt("Out", intLit(1))},
			Elifs: []program.ElifClause{
				{Cond: elifCond, Body: []*program.Stmt{assignStmt("Out", intLit(2))}},
			},
			Else: []*program.Stmt{assignStmt("Out", intLit(3))},
		}
	}

	if err := execStmt(ctx, build(boolLit(true), boolLit(false))); err != nil {
		t.Fatalf("exec IF: %v", err)
	}
	v, _ := ctx.Storage.GetGlobal("Out")
	if v.Int != 1 {
		t.Errorf("IF TRUE branch: Out = %d, want 1", v.Int)
	}

	if err := execStmt(ctx, build(boolLit(false), boolLit(true))); err != nil {
		t.Fatalf("exec ELSIF: %v", err)
	}
	v, _ = ctx.Storage.GetGlobal("Out")
	if v.Int != 2 {
		t.Errorf("ELSIF TRUE branch: Out = %d, want 2", v.Int)
	}

	if err := execStmt(ctx, build(boolLit(false), boolLit(false))); err != nil {
		t.Fatalf("exec ELSE: %v", err)
	}
	v, _ = ctx.Storage.GetGlobal("Out")
	if v.Int != 3 {
		t.Errorf("ELSE branch: Out = %d, want 3", v.Int)
	}
}

func TestExecCaseWithSubranges(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("Out", value.Int(value.KindInt, 0))
	s := &program.Stmt{
		Kind:     program.StmtCase,
		CaseExpr: intLit(5),
		CaseClauses: []program.CaseClause{
			{Labels: []program.CaseLabel{{Lo: 1, Hi: 1}}, Body: []*program.Stmt{assignStmt("Out", intLit(100))}},
			{Labels: []program.CaseLabel{{Lo: 3, Hi: 6}}, Body: []*program.Stmt{assignStmt("Out", intLit(200))}},
		},
		CaseElse: []*program.Stmt{assignStmt("Out", intLit(999))},
	}
	if err := execStmt(ctx, s); err != nil {
		t.Fatalf("exec CASE: %v", err)
	}
	v, _ := ctx.Storage.GetGlobal("Out")
	if v.Int != 200 {
		t.Errorf("CASE 5 matching [3,6]: Out = %d, want 200", v.Int)
	}

	s.CaseExpr = intLit(50)
	if err := execStmt(ctx, s); err != nil {
		t.Fatalf("exec CASE (else): %v", err)
	}
	v, _ = ctx.Storage.GetGlobal("Out")
	if v.Int != 999 {
		t.Errorf("CASE 50 (no match): Out = %d, want 999 (ELSE)", v.Int)
	}
}

func TestExecForWithStep(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("Sum", value.Int(value.KindInt, 0))
	ctx.Storage.SetGlobal("I", value.Int(value.KindInt, 0))

	sumAdd := &program.Stmt{
		Kind: program.StmtAssign,
		Target: &program.LValue{Kind: program.LVName, Name: "Sum"},
		Expr: &program.Expr{Kind: program.ExprBinary, Op: program.OpAdd, Left: nameExpr("Sum"), Right: nameExpr("I")},
	}
	forStmt := &program.Stmt{
		Kind:    program.StmtFor,
		LoopVar: "I",
		From:    intLit(0),
		To:      intLit(10),
		Step:    intLit(2),
		Body:    []*program.Stmt{sumAdd},
	}
	if err := execStmt(ctx, forStmt); err != nil {
		t.Fatalf("exec FOR: %v", err)
	}
	// I = 0,2,4,6,8,10 -> sum = 30
	v, _ := ctx.Storage.GetGlobal("Sum")
	if v.Int != 30 {
		t.Errorf("FOR I:=0 TO 10 BY 2 summing I: Sum = %d, want 30", v.Int)
	}
}

func TestExecForExitStopsEarly(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("Count", value.Int(value.KindInt, 0))
	ctx.Storage.SetGlobal("I", value.Int(value.KindInt, 0))

	incr := assignStmt("Count", &program.Expr{Kind: program.ExprBinary, Op: program.OpAdd, Left: nameExpr("Count"), Right: intLit(1)})
	exitIfThree := &program.Stmt{
		Kind: program.StmtIf,
		Cond: &program.Expr{Kind: program.ExprBinary, Op: program.OpEq, Left: nameExpr("Count"), Right: intLit(3)},
		Then: []*program.Stmt{{Kind: program.StmtExit}},
	}
	forStmt := &program.Stmt{
		Kind: program.StmtFor, LoopVar: "I", From: intLit(0), To: intLit(100),
		Body: []*program.Stmt{incr, exitIfThree},
	}
	if err := execStmt(ctx, forStmt); err != nil {
		t.Fatalf("exec FOR with EXIT: %v", err)
	}
	v, _ := ctx.Storage.GetGlobal("Count")
	if v.Int != 3 {
		t.Errorf("EXIT should stop the loop once Count=3, got %d", v.Int)
	}
}

func TestExecWhileAndRepeat(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("N", value.Int(value.KindInt, 0))
	incr := assignStmt("N", &program.Expr{Kind: program.ExprBinary, Op: program.OpAdd, Left: nameExpr("N"), Right: intLit(1)})

	whileStmt := &program.Stmt{
		Kind: program.StmtWhile,
		Cond: &program.Expr{Kind: program.ExprBinary, Op: program.OpLt, Left: nameExpr("N"), Right: intLit(5)},
		Body: []*program.Stmt{incr},
	}
	if err := execStmt(ctx, whileStmt); err != nil {
		t.Fatalf("exec WHILE: %v", err)
	}
	v, _ := ctx.Storage.GetGlobal("N")
	if v.Int != 5 {
		t.Errorf("WHILE N<5 DO N:=N+1: N = %d, want 5", v.Int)
	}

	ctx.Storage.SetGlobal("N", value.Int(value.KindInt, 0))
	repeatStmt := &program.Stmt{
		Kind: program.StmtRepeat,
		Cond: &program.Expr{Kind: program.ExprBinary, Op: program.OpGe, Left: nameExpr("N"), Right: intLit(5)},
		Body: []*program.Stmt{incr},
	}
	if err := execStmt(ctx, repeatStmt); err != nil {
		t.Fatalf("exec REPEAT: %v", err)
	}
	v, _ = ctx.Storage.GetGlobal("N")
	if v.Int != 5 {
		t.Errorf("REPEAT N:=N+1 UNTIL N>=5: N = %d, want 5", v.Int)
	}
}

func TestExitAndContinueOutsideLoopAreErrors(t *testing.T) {
	ctx := newTestCtx()
	if err := execStmt(ctx, &program.Stmt{Kind: program.StmtExit}); err == nil {
		t.Errorf("EXIT outside a loop should fail")
	}
	if err := execStmt(ctx, &program.Stmt{Kind: program.StmtContinue}); err == nil {
		t.Errorf("CONTINUE outside a loop should fail")
	}
}

func TestJmpToLabel(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("Out", value.Int(value.KindInt, 0))
	stmts := []*program.Stmt{
		{Kind: program.StmtJmp, Label: "SKIP"},
		assignStmt("Out", intLit(1)),
		{Kind: program.StmtLabel, LabelName: "SKIP"},
		assignStmt("Out", intLit(2)),
	}
	if err := RunBody(ctx, stmts); err != nil {
		t.Fatalf("RunBody with JMP: %v", err)
	}
	v, _ := ctx.Storage.GetGlobal("Out")
	if v.Int != 2 {
		t.Errorf("JMP SKIP should skip the first assignment; Out = %d, want 2", v.Int)
	}
}

func TestRunBodyRejectsDuplicateLabels(t *testing.T) {
	ctx := newTestCtx()
	stmts := []*program.Stmt{
		{Kind: program.StmtLabel, LabelName: "L"},
		{Kind: program.StmtLabel, LabelName: "L"},
	}
	if err := RunBody(ctx, stmts); err == nil {
		t.Errorf("duplicate labels in one body should be rejected")
	}
}

func TestReturnStopsExecutionWithValue(t *testing.T) {
	ctx := newTestCtx()
	ctx.Storage.SetGlobal("Out", value.Int(value.KindInt, 0))
	stmts := []*program.Stmt{
		{Kind: program.StmtReturn, ReturnValue: intLit(42)},
		assignStmt("Out", intLit(999)),
	}
	if err := RunBody(ctx, stmts); err != nil {
		t.Fatalf("RunBody with RETURN: %v", err)
	}
	v, _ := ctx.Storage.GetGlobal("Out")
	if v.Int != 0 {
		t.Errorf("RETURN should stop execution before the next statement; Out = %d, want 0", v.Int)
	}
	if !ctx.returning || ctx.returnVal.Int != 42 {
		t.Errorf("ctx.returnVal = %+v returning=%v, want 42/true", ctx.returnVal, ctx.returning)
	}
}
