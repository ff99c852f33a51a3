// Package stdlib implements the built-in function library (math, time,
// string, conversions) and the standard function blocks (timers,
// counters, edges, latches) dispatched by name from internal/eval.
package stdlib

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ironrail/stcore/internal/eval"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// Functions implements eval.Builtins over the standard math, string,
// conversion, and selection functions.
type Functions struct{}

var _ eval.Builtins = Functions{}

func (Functions) Call(ctx *eval.EvalContext, name string, args []value.Value, named map[string]value.Value) (value.Value, bool, error) {
	if v, ok, err := mathFn(name, args); ok {
		return v, true, err
	}
	if v, ok, err := arithFn(name, args); ok {
		return v, true, err
	}
	if v, ok, err := stringFn(name, args); ok {
		return v, true, err
	}
	if v, ok, err := conversionFn(name, args); ok {
		return v, true, err
	}
	if v, ok, err := selectFn(name, args); ok {
		return v, true, err
	}
	return value.Value{}, false, nil
}

func f64(v value.Value) float64 {
	if v.Kind.IsFloat() {
		return v.Real
	}
	return float64(v.Int)
}

func mathFn(name string, args []value.Value) (value.Value, bool, error) {
	unary := func(f func(float64) float64) (value.Value, bool, error) {
		if len(args) != 1 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "%s takes one argument", name)
		}
		return value.Real(f(f64(args[0]))), true, nil
	}
	switch name {
	case "ABS":
		if len(args) != 1 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "ABS takes one argument")
		}
		a := args[0]
		if a.Kind.IsFloat() {
			return value.Value{Kind: a.Kind, Real: math.Abs(a.Real)}, true, nil
		}
		n := a.Int
		if n < 0 {
			n = -n
		}
		return value.Int(a.Kind, n), true, nil
	case "SQRT":
		return unary(math.Sqrt)
	case "SIN":
		return unary(math.Sin)
	case "COS":
		return unary(math.Cos)
	case "TAN":
		return unary(math.Tan)
	case "ASIN":
		return unary(math.Asin)
	case "ACOS":
		return unary(math.Acos)
	case "ATAN":
		return unary(math.Atan)
	case "LN":
		return unary(math.Log)
	case "LOG":
		return unary(math.Log10)
	case "EXP":
		return unary(math.Exp)
	case "TRUNC":
		if len(args) != 1 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "TRUNC takes one argument")
		}
		return value.Int(value.KindDInt, int64(f64(args[0]))), true, nil
	}
	return value.Value{}, false, nil
}

func arithFn(name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "ADD", "MUL":
		if len(args) < 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "%s takes at least two arguments", name)
		}
		acc := args[0]
		for _, a := range args[1:] {
			var r float64
			if name == "ADD" {
				r = f64(acc) + f64(a)
			} else {
				r = f64(acc) * f64(a)
			}
			if acc.Kind.IsFloat() || a.Kind.IsFloat() {
				acc = value.Value{Kind: value.KindLReal, Real: r}
			} else {
				acc = value.Int(acc.Kind, int64(r))
			}
		}
		return acc, true, nil
	case "SUB":
		if len(args) != 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "SUB takes two arguments")
		}
		if args[0].Kind.IsFloat() || args[1].Kind.IsFloat() {
			return value.Real(f64(args[0]) - f64(args[1])), true, nil
		}
		return value.Int(args[0].Kind, args[0].Int-args[1].Int), true, nil
	case "DIV":
		if len(args) != 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "DIV takes two arguments")
		}
		if args[0].Kind.IsFloat() || args[1].Kind.IsFloat() {
			d := f64(args[1])
			if d == 0 {
				return value.Value{}, true, vmerr.New(vmerr.DivisionByZero, "")
			}
			return value.Real(f64(args[0]) / d), true, nil
		}
		if args[1].Int == 0 {
			return value.Value{}, true, vmerr.New(vmerr.DivisionByZero, "")
		}
		return value.Int(args[0].Kind, args[0].Int/args[1].Int), true, nil
	case "MOD":
		if len(args) != 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "MOD takes two arguments")
		}
		if args[1].Int == 0 {
			return value.Value{}, true, vmerr.New(vmerr.DivisionByZero, "")
		}
		return value.Int(args[0].Kind, args[0].Int%args[1].Int), true, nil
	}
	return value.Value{}, false, nil
}

func stringFn(name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "LEN":
		if len(args) != 1 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "LEN takes one argument")
		}
		return value.Int(value.KindDInt, int64(len(args[0].Str))), true, nil
	case "CONCAT":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(a.AsString())
		}
		return value.Str(value.KindString, b.String()), true, nil
	case "LEFT":
		if len(args) != 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "LEFT takes two arguments")
		}
		s := []rune(args[0].AsString())
		n := int(args[1].Int)
		if n < 0 {
			n = 0
		}
		if n > len(s) {
			n = len(s)
		}
		return value.Str(value.KindString, string(s[:n])), true, nil
	case "RIGHT":
		if len(args) != 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "RIGHT takes two arguments")
		}
		s := []rune(args[0].AsString())
		n := int(args[1].Int)
		if n < 0 {
			n = 0
		}
		if n > len(s) {
			n = len(s)
		}
		return value.Str(value.KindString, string(s[len(s)-n:])), true, nil
	case "MID":
		if len(args) != 3 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "MID takes three arguments")
		}
		s := []rune(args[0].AsString())
		n := int(args[1].Int)
		start := int(args[2].Int) - 1
		if start < 0 || start >= len(s) {
			return value.Str(value.KindString, ""), true, nil
		}
		end := start + n
		if end > len(s) {
			end = len(s)
		}
		return value.Str(value.KindString, string(s[start:end])), true, nil
	case "FIND":
		if len(args) != 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "FIND takes two arguments")
		}
		idx := strings.Index(args[0].AsString(), args[1].AsString())
		return value.Int(value.KindDInt, int64(idx+1)), true, nil
	}
	return value.Value{}, false, nil
}

func conversionFn(name string, args []value.Value) (value.Value, bool, error) {
	parts := strings.SplitN(name, "_TO_", 2)
	if len(parts) != 2 || len(args) != 1 {
		return value.Value{}, false, nil
	}
	from, to := parts[0], parts[1]
	target, ok := kindByName[to]
	if !ok {
		return value.Value{}, false, nil
	}
	if _, ok := kindByName[from]; !ok {
		return value.Value{}, false, nil
	}
	a := args[0]
	switch {
	case target.IsFloat():
		return value.Value{Kind: target, Real: f64(a)}, true, nil
	case target == value.KindString || target == value.KindWString:
		return value.Str(target, formatValue(a)), true, nil
	case target == value.KindBool:
		return value.Bool(a.Int != 0 || a.Bool), true, nil
	default:
		if a.Kind == value.KindString || a.Kind == value.KindWString {
			n, err := strconv.ParseInt(strings.TrimSpace(a.AsString()), 10, 64)
			if err != nil {
				return value.Value{}, true, vmerr.New(vmerr.TypeMismatch, "cannot convert %q to %s", a.AsString(), to)
			}
			return value.Int(target, n), true, nil
		}
		if a.Kind == value.KindBool {
			n := int64(0)
			if a.Bool {
				n = 1
			}
			return value.Int(target, n), true, nil
		}
		return value.Int(target, int64(f64(a))), true, nil
	}
}

func formatValue(v value.Value) string {
	if v.Kind.IsFloat() {
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	}
	if v.Kind == value.KindBool {
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	}
	return fmt.Sprintf("%d", v.Int)
}

var kindByName = map[string]value.Kind{
	"BOOL": value.KindBool, "SINT": value.KindSInt, "INT": value.KindInt,
	"DINT": value.KindDInt, "LINT": value.KindLInt, "USINT": value.KindUSInt,
	"UINT": value.KindUInt, "UDINT": value.KindUDInt, "ULINT": value.KindULInt,
	"REAL": value.KindReal, "LREAL": value.KindLReal, "BYTE": value.KindByte,
	"WORD": value.KindWord, "DWORD": value.KindDWord, "LWORD": value.KindLWord,
	"STRING": value.KindString, "WSTRING": value.KindWString,
	"TIME": value.KindTime, "LTIME": value.KindLTime,
}

func selectFn(name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "MAX":
		if len(args) < 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "MAX takes at least two arguments")
		}
		best := args[0]
		for _, a := range args[1:] {
			if f64(a) > f64(best) {
				best = a
			}
		}
		return best, true, nil
	case "MIN":
		if len(args) < 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "MIN takes at least two arguments")
		}
		best := args[0]
		for _, a := range args[1:] {
			if f64(a) < f64(best) {
				best = a
			}
		}
		return best, true, nil
	case "LIMIT":
		if len(args) != 3 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "LIMIT takes three arguments (min, in, max)")
		}
		lo, in, hi := args[0], args[1], args[2]
		if f64(in) < f64(lo) {
			return lo, true, nil
		}
		if f64(in) > f64(hi) {
			return hi, true, nil
		}
		return in, true, nil
	case "SEL":
		if len(args) != 3 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "SEL takes three arguments (g, in0, in1)")
		}
		if args[0].Kind != value.KindBool {
			return value.Value{}, true, vmerr.New(vmerr.TypeMismatch, "SEL selector must be BOOL")
		}
		if args[0].Bool {
			return args[2], true, nil
		}
		return args[1], true, nil
	case "MUX":
		if len(args) < 2 {
			return value.Value{}, true, vmerr.New(vmerr.InvalidConfig, "MUX takes a selector and at least one input")
		}
		k := int(args[0].Int)
		if k < 0 || k >= len(args)-1 {
			return value.Value{}, true, vmerr.New(vmerr.IndexOutOfBounds, "MUX selector %d out of range", k)
		}
		return args[k+1], true, nil
	}
	return value.Value{}, false, nil
}
