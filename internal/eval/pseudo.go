package eval

import (
	"strings"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// evalPseudoOp handles the four pseudo-operations that look like calls
// but are not function/FB dispatch: REF, NEW, __DELETE, and the
// SPLIT_* family of date/time decomposers. handled is false if e is not
// one of these, in which case EvalCall continues its normal resolution.
func evalPseudoOp(ctx *EvalContext, e *program.Expr) (value.Value, bool, error) {
	if e.Base != nil {
		return value.Value{}, false, nil
	}
	switch strings.ToUpper(e.Target) {
	case "REF":
		if len(e.Args) != 1 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "REF takes exactly one argument")
		}
		lv, err := exprToLValue(e.Args[0].Value)
		if err != nil {
			return value.Value{}, true, err
		}
		ref, err := resolveLValueRef(ctx, lv)
		if err != nil {
			return value.Value{}, true, err
		}
		return value.ReferenceTo(ref), true, nil

	case "NEW":
		if len(e.Args) != 1 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "NEW takes exactly one type argument")
		}
		typeName := e.Args[0].Name
		if typeName == "" {
			// NEW(TypeName) parses the bare type name as a plain Name
			// expression since it is not a VAR lookup.
			if e.Args[0].Value.Kind == program.ExprName {
				typeName = e.Args[0].Value.Name
			}
		}
		if typeName == "" {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "NEW requires a type name")
		}
		id, err := materializeInstance(ctx, typeName, nil)
		if err != nil {
			return value.Value{}, true, err
		}
		return value.InstanceVal(id), true, nil

	case "__DELETE":
		if len(e.Args) != 1 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "__DELETE takes exactly one reference argument")
		}
		lv, err := exprToLValue(e.Args[0].Value)
		if err != nil {
			return value.Value{}, true, err
		}
		ref, err := resolveLValueRef(ctx, lv)
		if err != nil {
			return value.Value{}, true, err
		}
		if err := ctx.Storage.WriteByRef(ref, value.ReferenceNone()); err != nil {
			return value.Value{}, true, err
		}
		return value.Null, true, nil

	case "SPLIT_DATE", "SPLIT_TOD", "SPLIT_DT", "SPLIT_TIME":
		v, err := splitDateTime(ctx, e)
		return v, true, err
	}
	return value.Value{}, false, nil
}

// materializeInstance allocates a new FB/class instance of typeName,
// recursively allocating and chaining a base instance when the type
// declares one, and default-initializing every declared field.
func materializeInstance(ctx *EvalContext, typeName string, parent *value.InstanceId) (value.InstanceId, error) {
	upper := strings.ToUpper(typeName)
	var fields []program.LocalVar
	var baseName string
	if fb, ok := ctx.Program.FunctionBlocks[upper]; ok {
		fields = fb.Locals
		baseName = fb.Base
	} else if cls, ok := ctx.Program.Classes[upper]; ok {
		fields = cls.Locals
		baseName = cls.Base
	} else {
		return 0, vmerr.New(vmerr.UndefinedFunctionBlock, "%q", typeName)
	}

	var parentId *value.InstanceId
	if baseName != "" {
		id, err := materializeInstance(ctx, baseName, nil)
		if err != nil {
			return 0, err
		}
		parentId = &id
	} else {
		parentId = parent
	}

	id := ctx.Storage.CreateInstance(typeName, parentId)
	for _, f := range fields {
		def, err := ctx.Registry.DefaultValue(f.Type, ctx.Profile)
		if err != nil {
			return 0, err
		}
		if err := ctx.Storage.SetInstanceVar(id, f.Name, def); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// splitDateTime decomposes a duration/calendar value into its
// out-parameter components. Only the out-parameter names relevant to
// each split kind are written; ticks are taken as nanoseconds and
// ctx.Profile is not consulted.
func splitDateTime(ctx *EvalContext, e *program.Expr) (value.Value, error) {
	if len(e.Args) == 0 {
		return value.Value{}, vmerr.New(vmerr.InvalidConfig, "%s requires an input and out-parameters", e.Target)
	}
	in, err := EvalExpr(ctx, e.Args[0].Value)
	if err != nil {
		return value.Value{}, err
	}
	total := in.Ticks
	const (
		nsPerSec  = int64(1e9)
		nsPerMin  = 60 * nsPerSec
		nsPerHour = 60 * nsPerMin
		nsPerDay  = 24 * nsPerHour
	)
	var parts map[string]int64
	switch strings.ToUpper(e.Target) {
	case "SPLIT_TOD", "SPLIT_TIME":
		rem := total
		h := rem / nsPerHour
		rem -= h * nsPerHour
		m := rem / nsPerMin
		rem -= m * nsPerMin
		s := rem / nsPerSec
		rem -= s * nsPerSec
		parts = map[string]int64{"HOUR": h, "MINUTE": m, "SECOND": s, "MS": rem / 1e6}
	case "SPLIT_DATE":
		days := total / nsPerDay
		parts = map[string]int64{"DAYS": days}
	case "SPLIT_DT":
		days := total / nsPerDay
		rem := total - days*nsPerDay
		h := rem / nsPerHour
		rem -= h * nsPerHour
		m := rem / nsPerMin
		rem -= m * nsPerMin
		s := rem / nsPerSec
		parts = map[string]int64{"DAYS": days, "HOUR": h, "MINUTE": m, "SECOND": s}
	}
	for _, a := range e.Args[1:] {
		if a.OutTarget == nil || a.Name == "" {
			continue
		}
		n, ok := parts[strings.ToUpper(a.Name)]
		if !ok {
			continue
		}
		if err := AssignLValue(ctx, a.OutTarget, value.Int(value.KindDInt, n)); err != nil {
			return value.Value{}, err
		}
	}
	return value.Null, nil
}
