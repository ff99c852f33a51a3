package eval

import (
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// RunBody executes a POU's top-level statement list, honoring JMP/label
// targets scoped to this body (labels nested inside IF/CASE/loop blocks
// are not addressable by JMP; only top-level labels are, matching how
// ST programs in practice place labels).
func RunBody(ctx *EvalContext, stmts []*program.Stmt) error {
	labels := make(map[string]int, 4)
	for i, s := range stmts {
		if s.Kind == program.StmtLabel {
			if _, dup := labels[s.LabelName]; dup {
				return vmerr.New(vmerr.InvalidConfig, "label %q defined more than once", s.LabelName)
			}
			labels[s.LabelName] = i
		}
	}

	i := 0
	for i < len(stmts) {
		s := stmts[i]
		if err := execStmt(ctx, s); err != nil {
			return err
		}
		if ctx.returning || ctx.breaking || ctx.continuing {
			return nil
		}
		if ctx.pendingJump != "" {
			target, ok := labels[ctx.pendingJump]
			if !ok {
				// not ours to handle; bubble to an enclosing RunBody,
				// if any (nested function/method bodies never nest
				// RunBody calls, so an unresolved jump is a load error).
				return vmerr.New(vmerr.InvalidConfig, "undefined label %q", ctx.pendingJump)
			}
			ctx.pendingJump = ""
			i = target
			continue
		}
		i++
	}
	return nil
}

// runStmts executes a nested block (IF/CASE/loop body); control
// signals (return/exit/continue/jump) propagate to the caller via ctx.
func runStmts(ctx *EvalContext, stmts []*program.Stmt) error {
	for _, s := range stmts {
		if err := execStmt(ctx, s); err != nil {
			return err
		}
		if ctx.returning || ctx.breaking || ctx.continuing || ctx.pendingJump != "" {
			return nil
		}
	}
	return nil
}

func execStmt(ctx *EvalContext, s *program.Stmt) error {
	if err := ctx.checkBoundary(s.Loc); err != nil {
		return err
	}
	if ctx.PauseRequested {
		// Pause is honored at the next boundary by the debug hook
		// itself (it blocks inside checkBoundary); nothing further to
		// do here.
	}

	switch s.Kind {
	case program.StmtAssign:
		return execAssign(ctx, s)
	case program.StmtExprStmt:
		_, err := EvalExpr(ctx, s.CallExpr)
		return err
	case program.StmtIf:
		return execIf(ctx, s)
	case program.StmtCase:
		return execCase(ctx, s)
	case program.StmtFor:
		return execFor(ctx, s)
	case program.StmtWhile:
		return execWhile(ctx, s)
	case program.StmtRepeat:
		return execRepeat(ctx, s)
	case program.StmtExit:
		if ctx.LoopDepth == 0 {
			return vmerr.New(vmerr.InvalidConfig, "EXIT outside a loop")
		}
		ctx.breaking = true
		return nil
	case program.StmtContinue:
		if ctx.LoopDepth == 0 {
			return vmerr.New(vmerr.InvalidConfig, "CONTINUE outside a loop")
		}
		ctx.continuing = true
		return nil
	case program.StmtReturn:
		if s.ReturnValue != nil {
			v, err := EvalExpr(ctx, s.ReturnValue)
			if err != nil {
				return err
			}
			ctx.returnVal = v
		}
		ctx.returning = true
		return nil
	case program.StmtJmp:
		ctx.pendingJump = s.Label
		return nil
	case program.StmtLabel:
		return nil
	default:
		return vmerr.New(vmerr.TypeMismatch, "unknown statement kind")
	}
}

func execAssign(ctx *EvalContext, s *program.Stmt) error {
	v, err := EvalExpr(ctx, s.Expr)
	if err != nil {
		return err
	}
	return AssignLValue(ctx, s.Target, v)
}

func execIf(ctx *EvalContext, s *program.Stmt) error {
	cond, err := EvalExpr(ctx, s.Cond)
	if err != nil {
		return err
	}
	if cond.Kind != value.KindBool {
		return vmerr.New(vmerr.TypeMismatch, "IF condition must be BOOL")
	}
	if cond.Bool {
		return runStmts(ctx, s.Then)
	}
	for _, elif := range s.Elifs {
		c, err := EvalExpr(ctx, elif.Cond)
		if err != nil {
			return err
		}
		if c.Kind != value.KindBool {
			return vmerr.New(vmerr.TypeMismatch, "ELSIF condition must be BOOL")
		}
		if c.Bool {
			return runStmts(ctx, elif.Body)
		}
	}
	return runStmts(ctx, s.Else)
}

func execCase(ctx *EvalContext, s *program.Stmt) error {
	v, err := EvalExpr(ctx, s.CaseExpr)
	if err != nil {
		return err
	}
	if !v.Kind.IsSignedInt() && !v.Kind.IsUnsignedInt() {
		return vmerr.New(vmerr.TypeMismatch, "CASE selector must be an integer")
	}
	for _, clause := range s.CaseClauses {
		for _, label := range clause.Labels {
			if label.Matches(v.Int) {
				return runStmts(ctx, clause.Body)
			}
		}
	}
	return runStmts(ctx, s.CaseElse)
}

func execFor(ctx *EvalContext, s *program.Stmt) error {
	from, err := EvalExpr(ctx, s.From)
	if err != nil {
		return err
	}
	to, err := EvalExpr(ctx, s.To)
	if err != nil {
		return err
	}
	step := int64(1)
	if s.Step != nil {
		sv, err := EvalExpr(ctx, s.Step)
		if err != nil {
			return err
		}
		step = sv.Int
	}
	if step == 0 {
		return vmerr.New(vmerr.InvalidConfig, "FOR step must not be zero")
	}

	ctx.LoopDepth++
	defer func() { ctx.LoopDepth-- }()

	k := from.Kind
	cur := from.Int
	if err := AssignLValue(ctx, &program.LValue{Kind: program.LVName, Name: s.LoopVar}, value.Int(k, cur)); err != nil {
		return err
	}
	for {
		if step > 0 && cur > to.Int {
			break
		}
		if step < 0 && cur < to.Int {
			break
		}
		if err := runStmts(ctx, s.Body); err != nil {
			return err
		}
		if ctx.returning {
			return nil
		}
		if ctx.breaking {
			ctx.breaking = false
			break
		}
		ctx.continuing = false
		cur += step
		// the control variable is tracked in the Go local cur and
		// written back to storage every iteration; a FOR-body write
		// to the control variable is overwritten here rather than
		// read back.
		if err := AssignLValue(ctx, &program.LValue{Kind: program.LVName, Name: s.LoopVar}, value.Int(k, cur)); err != nil {
			return err
		}
	}
	return nil
}

func execWhile(ctx *EvalContext, s *program.Stmt) error {
	ctx.LoopDepth++
	defer func() { ctx.LoopDepth-- }()
	for {
		cond, err := EvalExpr(ctx, s.Cond)
		if err != nil {
			return err
		}
		if cond.Kind != value.KindBool {
			return vmerr.New(vmerr.TypeMismatch, "WHILE condition must be BOOL")
		}
		if !cond.Bool {
			return nil
		}
		if err := runStmts(ctx, s.Body); err != nil {
			return err
		}
		if ctx.returning {
			return nil
		}
		if ctx.breaking {
			ctx.breaking = false
			return nil
		}
		ctx.continuing = false
	}
}

func execRepeat(ctx *EvalContext, s *program.Stmt) error {
	ctx.LoopDepth++
	defer func() { ctx.LoopDepth-- }()
	for {
		if err := runStmts(ctx, s.Body); err != nil {
			return err
		}
		if ctx.returning {
			return nil
		}
		if ctx.breaking {
			ctx.breaking = false
			return nil
		}
		ctx.continuing = false
		cond, err := EvalExpr(ctx, s.Cond)
		if err != nil {
			return err
		}
		if cond.Kind != value.KindBool {
			return vmerr.New(vmerr.TypeMismatch, "UNTIL condition must be BOOL")
		}
		if cond.Bool {
			return nil
		}
	}
}
