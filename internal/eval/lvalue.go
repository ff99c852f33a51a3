package eval

import (
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// exprToLValue converts an addressable expression (Name/Field/Index)
// into an LValue for REF(); anything else (a call result, a literal)
// is an rvalue and rejected.
func exprToLValue(e *program.Expr) (*program.LValue, error) {
	switch e.Kind {
	case program.ExprName:
		return &program.LValue{Kind: program.LVName, Name: e.Name}, nil
	case program.ExprField:
		base, err := exprToLValue(e.Base)
		if err != nil {
			return nil, err
		}
		_ = base
		return &program.LValue{Kind: program.LVField, Name: e.Base.Name, Field: e.Field}, nil
	case program.ExprIndex:
		return &program.LValue{Kind: program.LVIndex, Name: e.Base.Name, Indices: e.Indices}, nil
	case program.ExprDeref:
		return &program.LValue{Kind: program.LVDeref, Inner: e.Inner}, nil
	default:
		return nil, vmerr.New(vmerr.TypeMismatch, "expression is not addressable")
	}
}

// resolveLValueRef computes a ValueRef for lv's top-level named target,
// honoring the same scope search order as evalName (frame, instance,
// using, globals, retains), then extends it with lv's field/index
// segment.
func resolveLValueRef(ctx *EvalContext, lv *program.LValue) (value.ValueRef, error) {
	switch lv.Kind {
	case program.LVName:
		return refForName(ctx, lv.Name)
	case program.LVField:
		base, err := refForName(ctx, lv.Name)
		if err != nil {
			return value.ValueRef{}, err
		}
		return base.Extend(value.FieldSeg(lv.Field)), nil
	case program.LVIndex:
		base, err := refForName(ctx, lv.Name)
		if err != nil {
			return value.ValueRef{}, err
		}
		indices, err := evalIndices(ctx, lv.Indices)
		if err != nil {
			return value.ValueRef{}, err
		}
		return base.Extend(value.IndexSeg(indices...)), nil
	case program.LVDeref:
		v, err := EvalExpr(ctx, lv.Inner)
		if err != nil {
			return value.ValueRef{}, err
		}
		if v.Kind != value.KindReference {
			return value.ValueRef{}, vmerr.New(vmerr.TypeMismatch, "cannot dereference %s", v.Kind)
		}
		if v.Ref == nil {
			return value.ValueRef{}, vmerr.New(vmerr.NullReference, "")
		}
		return *v.Ref, nil
	default:
		return value.ValueRef{}, vmerr.New(vmerr.TypeMismatch, "unknown lvalue kind")
	}
}

func refForName(ctx *EvalContext, name string) (value.ValueRef, error) {
	if f := ctx.Storage.CurrentFrame(); f != nil {
		if _, ok := f.Get(name); ok {
			return ctx.Storage.RefForLocal(f.Id, name), nil
		}
	}
	if ctx.CurrentInstance != nil {
		if ref, err := ctx.Storage.RefForInstanceRecursive(*ctx.CurrentInstance, name); err == nil {
			return ref, nil
		}
	}
	if _, ok := ctx.Storage.GetGlobal(name); ok {
		return ctx.Storage.RefForGlobal(name), nil
	}
	if _, ok := ctx.Storage.GetRetain(name); ok {
		return ctx.Storage.RefForRetain(name), nil
	}
	return value.ValueRef{}, vmerr.New(vmerr.UndefinedVariable, "%q", name)
}

// AssignLValue writes rhs to lv. It makes no check for constants or
// enum members; a name that resolves to no storage slot fails with
// UndefinedVariable.
func AssignLValue(ctx *EvalContext, lv *program.LValue, rhs value.Value) error {
	ref, err := resolveLValueRef(ctx, lv)
	if err != nil {
		return err
	}
	return ctx.Storage.WriteByRef(ref, rhs)
}
