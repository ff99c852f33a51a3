package eval

import (
	"math"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// EvalExpr evaluates e against ctx's current frame/instance scope.
func EvalExpr(ctx *EvalContext, e *program.Expr) (value.Value, error) {
	switch e.Kind {
	case program.ExprLiteral:
		return materialize(ctx, e.Literal), nil
	case program.ExprName:
		return evalName(ctx, e.Name)
	case program.ExprField:
		return evalField(ctx, e)
	case program.ExprIndex:
		return evalIndex(ctx, e)
	case program.ExprRef:
		lv, err := exprToLValue(e.Inner)
		if err != nil {
			return value.Value{}, err
		}
		ref, err := resolveLValueRef(ctx, lv)
		if err != nil {
			return value.Value{}, err
		}
		return value.ReferenceTo(ref), nil
	case program.ExprDeref:
		return evalDeref(ctx, e)
	case program.ExprCall:
		return EvalCall(ctx, e)
	case program.ExprBinary:
		return evalBinary(ctx, e)
	case program.ExprUnary:
		return evalUnary(ctx, e)
	default:
		return value.Value{}, vmerr.New(vmerr.TypeMismatch, "unknown expression kind")
	}
}

// materialize turns a LiteralExpr's flat (IntVal/RealVal/BoolVal/StrVal)
// encoding into a properly tagged Value, resolving the literal's
// declared TypeId through the registry so a BOOL literal gets
// Kind=KindBool rather than whatever payload field happens to be set
// (a literal AST node carries no tag of its own; TypeId is the only
// source of truth for which payload field is meaningful).
func materialize(ctx *EvalContext, l *program.LiteralExpr) value.Value {
	if l == nil {
		return value.Null
	}
	k := ctx.Registry.KindOf(l.TypeId)
	switch {
	case k == value.KindBool:
		return value.Bool(l.BoolVal)
	case k.IsFloat():
		return value.Value{Kind: k, Real: l.RealVal}
	case k == value.KindChar || k == value.KindWChar || k == value.KindString || k == value.KindWString:
		// CHAR/WCHAR literals are lexed the same way STRING/WSTRING
		// literals are (a quoted run of text), just constrained to one
		// rune; value.Value stores all four kinds' payload in Str (see
		// value.go's field comment and Equal), so this is a single
		// conversion, not a separate Int-backed representation.
		return value.Str(k, l.StrVal)
	case k == value.KindTime || k == value.KindLTime || k == value.KindDate ||
		k == value.KindLDate || k == value.KindTod || k == value.KindLTod ||
		k == value.KindDt || k == value.KindLdt:
		return value.Value{Kind: k, Ticks: l.IntVal}
	default:
		return value.Value{Kind: k, Int: l.IntVal}
	}
}

// evalName resolves a bare identifier through, in order: the current
// local frame, instance vars (walking inheritance), active USING
// bindings, globals, then retains. First hit wins.
func evalName(ctx *EvalContext, name string) (value.Value, error) {
	if f := ctx.Storage.CurrentFrame(); f != nil {
		if v, ok := f.Get(name); ok {
			return v, nil
		}
	}
	if ctx.CurrentInstance != nil {
		if v, ok, err := ctx.Storage.GetInstanceVarRecursive(*ctx.CurrentInstance, name); err != nil {
			return value.Value{}, err
		} else if ok {
			return v, nil
		}
	}
	// USING namespace bindings resolve qualified globals exposed by
	// other modules; this module owns a single flat global namespace,
	// so a USING hit degrades to the same global lookup.
	if v, ok := ctx.Storage.GetGlobal(name); ok {
		return v, nil
	}
	if v, ok := ctx.Storage.GetRetain(name); ok {
		return v, nil
	}
	return value.Value{}, vmerr.New(vmerr.UndefinedVariable, "%q", name)
}

func evalField(ctx *EvalContext, e *program.Expr) (value.Value, error) {
	base, err := EvalExpr(ctx, e.Base)
	if err != nil {
		return value.Value{}, err
	}
	if base.Kind == value.KindInstance {
		v, ok, err := ctx.Storage.GetInstanceVarRecursive(base.Instance, e.Field)
		if err != nil {
			return value.Value{}, err
		}
		if !ok {
			return value.Value{}, vmerr.New(vmerr.UndefinedField, "%q", e.Field)
		}
		return v, nil
	}
	if base.Kind != value.KindStruct {
		return value.Value{}, vmerr.New(vmerr.TypeMismatch, "%s has no field %q", base.Kind, e.Field)
	}
	v, ok := base.Struct.Get(e.Field)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.UndefinedField, "%q", e.Field)
	}
	return v, nil
}

func evalIndex(ctx *EvalContext, e *program.Expr) (value.Value, error) {
	base, err := EvalExpr(ctx, e.Base)
	if err != nil {
		return value.Value{}, err
	}
	if base.Kind != value.KindArray {
		return value.Value{}, vmerr.New(vmerr.TypeMismatch, "%s is not indexable", base.Kind)
	}
	indices, err := evalIndices(ctx, e.Indices)
	if err != nil {
		return value.Value{}, err
	}
	off, err := offsetFor(base.Array.Dimensions, indices)
	if err != nil {
		return value.Value{}, err
	}
	return base.Array.Elements[off], nil
}

func evalIndices(ctx *EvalContext, exprs []*program.Expr) ([]int64, error) {
	out := make([]int64, len(exprs))
	for i, ie := range exprs {
		v, err := EvalExpr(ctx, ie)
		if err != nil {
			return nil, err
		}
		if !v.Kind.IsSignedInt() && !v.Kind.IsUnsignedInt() {
			return nil, vmerr.New(vmerr.TypeMismatch, "array index must be integer, got %s", v.Kind)
		}
		out[i] = v.Int
	}
	return out, nil
}

func offsetFor(dims []value.Dimension, indices []int64) (int64, error) {
	if len(indices) != len(dims) {
		return 0, vmerr.New(vmerr.TypeMismatch, "expected %d indices, got %d", len(dims), len(indices))
	}
	var offset int64
	for i, d := range dims {
		idx := indices[i]
		if idx < d.Lower || idx > d.Upper {
			return 0, vmerr.OutOfBounds(idx, d.Lower, d.Upper)
		}
		offset = offset*d.Len() + (idx - d.Lower)
	}
	return offset, nil
}

func evalDeref(ctx *EvalContext, e *program.Expr) (value.Value, error) {
	v, err := EvalExpr(ctx, e.Inner)
	if err != nil {
		return value.Value{}, err
	}
	if v.Kind != value.KindReference {
		return value.Value{}, vmerr.New(vmerr.TypeMismatch, "cannot dereference %s", v.Kind)
	}
	if v.Ref == nil {
		return value.Value{}, vmerr.New(vmerr.NullReference, "")
	}
	return ctx.Storage.ReadByRef(*v.Ref)
}

func evalBinary(ctx *EvalContext, e *program.Expr) (value.Value, error) {
	if e.Op == program.OpAnd {
		l, err := EvalExpr(ctx, e.Left)
		if err != nil {
			return value.Value{}, err
		}
		if l.Kind != value.KindBool {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "AND requires BOOL operands")
		}
		if !l.Bool {
			return value.Bool(false), nil // short-circuit: right not evaluated
		}
		r, err := EvalExpr(ctx, e.Right)
		if err != nil {
			return value.Value{}, err
		}
		if r.Kind != value.KindBool {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "AND requires BOOL operands")
		}
		return value.Bool(r.Bool), nil
	}
	if e.Op == program.OpOr {
		l, err := EvalExpr(ctx, e.Left)
		if err != nil {
			return value.Value{}, err
		}
		if l.Kind != value.KindBool {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "OR requires BOOL operands")
		}
		if l.Bool {
			return value.Bool(true), nil // short-circuit: right not evaluated
		}
		r, err := EvalExpr(ctx, e.Right)
		if err != nil {
			return value.Value{}, err
		}
		if r.Kind != value.KindBool {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "OR requires BOOL operands")
		}
		return value.Bool(r.Bool), nil
	}

	l, err := EvalExpr(ctx, e.Left)
	if err != nil {
		return value.Value{}, err
	}
	r, err := EvalExpr(ctx, e.Right)
	if err != nil {
		return value.Value{}, err
	}
	return applyBinOp(e.Op, l, r)
}

func applyBinOp(op program.BinOp, l, r value.Value) (value.Value, error) {
	switch op {
	case program.OpEq:
		return value.Bool(valuesEqual(l, r)), nil
	case program.OpNe:
		return value.Bool(!valuesEqual(l, r)), nil
	case program.OpXor:
		if l.Kind != value.KindBool || r.Kind != value.KindBool {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "XOR requires BOOL operands")
		}
		return value.Bool(l.Bool != r.Bool), nil
	}
	if l.Kind.IsFloat() || r.Kind.IsFloat() {
		lf, rf := asFloat(l), asFloat(r)
		k := l.Kind
		if !k.IsFloat() {
			k = r.Kind
		}
		switch op {
		case program.OpAdd:
			return value.Value{Kind: k, Real: lf + rf}, nil
		case program.OpSub:
			return value.Value{Kind: k, Real: lf - rf}, nil
		case program.OpMul:
			return value.Value{Kind: k, Real: lf * rf}, nil
		case program.OpDiv:
			if rf == 0 {
				return value.Value{}, vmerr.New(vmerr.DivisionByZero, "")
			}
			return value.Value{Kind: k, Real: lf / rf}, nil
		case program.OpPow:
			return value.Value{Kind: k, Real: math.Pow(lf, rf)}, nil
		case program.OpLt:
			return value.Bool(lf < rf), nil
		case program.OpLe:
			return value.Bool(lf <= rf), nil
		case program.OpGt:
			return value.Bool(lf > rf), nil
		case program.OpGe:
			return value.Bool(lf >= rf), nil
		}
	}
	// integer / bit-string path
	li, ri := l.Int, r.Int
	k := l.Kind
	switch op {
	case program.OpAdd:
		return checkedInt(k, li+ri)
	case program.OpSub:
		return checkedInt(k, li-ri)
	case program.OpMul:
		return checkedInt(k, li*ri)
	case program.OpDiv:
		if ri == 0 {
			return value.Value{}, vmerr.New(vmerr.DivisionByZero, "")
		}
		return value.Int(k, li/ri), nil
	case program.OpMod:
		if ri == 0 {
			return value.Value{}, vmerr.New(vmerr.DivisionByZero, "")
		}
		return value.Int(k, li%ri), nil
	case program.OpPow:
		return value.Int(k, int64(math.Pow(float64(li), float64(ri)))), nil
	case program.OpLt:
		return value.Bool(li < ri), nil
	case program.OpLe:
		return value.Bool(li <= ri), nil
	case program.OpGt:
		return value.Bool(li > ri), nil
	case program.OpGe:
		return value.Bool(li >= ri), nil
	}
	return value.Value{}, vmerr.New(vmerr.TypeMismatch, "unsupported binary op")
}

// checkedInt checks n against the declared integer width's range,
// returning Overflow if the computed value cannot be represented.
func checkedInt(k value.Kind, n int64) (value.Value, error) {
	lo, hi, ok := intRange(k)
	if ok && (n < lo || n > hi) {
		return value.Value{}, vmerr.New(vmerr.Overflow, "%d out of range for %s", n, k)
	}
	return value.Int(k, n), nil
}

func intRange(k value.Kind) (lo, hi int64, ok bool) {
	switch k {
	case value.KindSInt:
		return math.MinInt8, math.MaxInt8, true
	case value.KindInt:
		return math.MinInt16, math.MaxInt16, true
	case value.KindDInt:
		return math.MinInt32, math.MaxInt32, true
	case value.KindLInt:
		return math.MinInt64, math.MaxInt64, true
	case value.KindUSInt:
		return 0, math.MaxUint8, true
	case value.KindUInt:
		return 0, math.MaxUint16, true
	case value.KindUDInt:
		return 0, math.MaxUint32, true
	case value.KindULInt:
		return 0, math.MaxInt64, true // ULINT's true max exceeds int64; clamp conservatively
	default:
		return 0, 0, false
	}
}

func asFloat(v value.Value) float64 {
	if v.Kind.IsFloat() {
		return v.Real
	}
	return float64(v.Int)
}

func valuesEqual(l, r value.Value) bool {
	if l.Kind != r.Kind {
		if (l.Kind.IsNumeric() || l.Kind.IsBitString()) && (r.Kind.IsNumeric() || r.Kind.IsBitString()) {
			return asFloat(l) == asFloat(r)
		}
		return false
	}
	switch l.Kind {
	case value.KindBool:
		return l.Bool == r.Bool
	case value.KindReal, value.KindLReal:
		return l.Real == r.Real
	case value.KindString, value.KindWString, value.KindChar, value.KindWChar:
		return string(l.Str) == string(r.Str)
	case value.KindEnum:
		return l.Enum.TypeName == r.Enum.TypeName && l.Enum.Variant == r.Enum.Variant
	case value.KindInstance:
		return l.Instance == r.Instance
	default:
		return l.Int == r.Int
	}
}

func evalUnary(ctx *EvalContext, e *program.Expr) (value.Value, error) {
	v, err := EvalExpr(ctx, e.Value)
	if err != nil {
		return value.Value{}, err
	}
	switch e.UnOp {
	case program.OpNeg:
		if v.Kind.IsFloat() {
			return value.Value{Kind: v.Kind, Real: -v.Real}, nil
		}
		return checkedInt(v.Kind, -v.Int)
	case program.OpNot:
		if v.Kind != value.KindBool {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "NOT requires BOOL")
		}
		return value.Bool(!v.Bool), nil
	default:
		return value.Value{}, vmerr.New(vmerr.TypeMismatch, "unknown unary op")
	}
}
