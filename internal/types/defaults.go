package types

import (
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// DefaultValue produces the canonical zero/empty value for id: the
// basis for initializing every declared VAR at load time.
func (r *Registry) DefaultValue(id TypeId, profile value.DateTimeProfile) (value.Value, error) {
	resolvedId, t := r.Resolve(id)
	switch t.Variant {
	case VBuiltin:
		return r.defaultBuiltin(resolvedId, t, profile)
	case VStringWithLength:
		return value.Str(t.Kind, ""), nil
	case VArray:
		return r.defaultArray(t, profile)
	case VStruct, VUnion:
		return r.defaultStruct(t, profile)
	case VEnum:
		if len(t.Variants) == 0 {
			return value.Value{}, vmerr.New(vmerr.InvalidConfig, "enum %q has no variants", t.Name)
		}
		first := t.Variants[0]
		return value.Value{Kind: value.KindEnum, Enum: &value.EnumValue{
			TypeName: t.Name, Variant: first.Name, Numeric: first.Numeric,
		}}, nil
	case VReference:
		return value.ReferenceNone(), nil
	case VPointer, VFunctionBlock, VClass, VInterface:
		return value.Value{}, vmerr.New(vmerr.UnsupportedType,
			"%s must be materialized via an explicit instance, not defaulted", t.Name)
	default:
		return value.Value{}, vmerr.New(vmerr.UnsupportedType, "unrepresentable type %q", t.Name)
	}
}

func (r *Registry) defaultBuiltin(id TypeId, t Type, profile value.DateTimeProfile) (value.Value, error) {
	switch t.Kind {
	case value.KindBool:
		return value.Bool(false), nil
	case value.KindReal, value.KindLReal:
		return value.Value{Kind: t.Kind, Real: 0}, nil
	case value.KindString, value.KindWString:
		return value.Str(t.Kind, ""), nil
	case value.KindChar, value.KindWChar:
		// Per spec.md §4.2, "chars -> 0": the NUL rune, not an empty
		// string. value.Value backs CHAR/WCHAR through Str (see
		// value.go's field comment and Value.Equal), so the zero char
		// is one rune of value 0, not a zero-length Str.
		return value.Value{Kind: t.Kind, Str: []rune{0}}, nil
	case value.KindDate, value.KindDt:
		return value.Value{Kind: t.Kind, Ticks: profile.EpochTicks()}, nil
	case value.KindLDate, value.KindLdt, value.KindTod, value.KindLTod, value.KindTime, value.KindLTime:
		return value.Value{Kind: t.Kind, Ticks: 0}, nil
	default:
		// every remaining builtin kind is a plain integer/bit-string.
		return value.Value{Kind: t.Kind, Int: 0}, nil
	}
}

func (r *Registry) defaultArray(t Type, profile value.DateTimeProfile) (value.Value, error) {
	total := int64(1)
	for _, d := range t.Dimensions {
		if d.Upper < d.Lower {
			return value.Value{}, vmerr.New(vmerr.InvalidConfig, "array %q has invalid bounds [%d,%d]", t.Name, d.Lower, d.Upper)
		}
		total *= d.Len()
	}
	elemDefault, err := r.DefaultValue(t.ElemType, profile)
	if err != nil {
		return value.Value{}, err
	}
	elems := make([]value.Value, total)
	for i := range elems {
		elems[i] = elemDefault
	}
	dims := make([]value.Dimension, len(t.Dimensions))
	copy(dims, t.Dimensions)
	return value.Value{Kind: value.KindArray, Array: &value.ArrayValue{
		TypeName: t.Name, Dimensions: dims, Elements: elems,
	}}, nil
}

func (r *Registry) defaultStruct(t Type, profile value.DateTimeProfile) (value.Value, error) {
	fields := make([]value.StructField, len(t.Fields))
	for i, f := range t.Fields {
		v, err := r.DefaultValue(f.Type, profile)
		if err != nil {
			return value.Value{}, err
		}
		fields[i] = value.StructField{Name: f.Name, Value: v}
	}
	return value.Value{Kind: value.KindStruct, Struct: &value.StructValue{
		TypeName: t.Name, Fields: fields,
	}}, nil
}

// ArrayOffset computes the row-major flat offset of indices into an
// array of the given dimensions, validating every axis. Injective on
// the Cartesian product of in-bound tuples; any out-of-bound index
// fails with IndexOutOfBounds identifying the first offending axis.
func ArrayOffset(dims []value.Dimension, indices []int64) (int64, error) {
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
