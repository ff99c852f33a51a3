package engine

import (
	"fmt"

	"github.com/ironrail/stcore/internal/io"
	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// valueToWire renders v in the shape the control protocol's JSON
// responses use: scalars pass through as Go's native JSON-friendly
// types; aggregates are rendered structurally since the protocol's
// client-facing schema (a debug adapter style view) expects readable
// values, not a second binary encoding.
func valueToWire(v value.Value) interface{} {
	switch v.Kind {
	case value.KindBool:
		return v.Bool
	case value.KindReal, value.KindLReal:
		return v.Real
	case value.KindString, value.KindWString, value.KindChar, value.KindWChar:
		return v.AsString()
	case value.KindNull:
		return nil
	case value.KindReference:
		if v.Ref == nil {
			return nil
		}
		return fmt.Sprintf("%s(%s)", v.Ref.Location, v.Ref.Name)
	case value.KindInstance:
		return int64(v.Instance)
	case value.KindArray:
		if v.Array == nil {
			return nil
		}
		out := make([]interface{}, len(v.Array.Elements))
		for i, e := range v.Array.Elements {
			out[i] = valueToWire(e)
		}
		return out
	case value.KindStruct:
		if v.Struct == nil {
			return nil
		}
		out := make(map[string]interface{}, len(v.Struct.Fields))
		for _, f := range v.Struct.Fields {
			out[f.Name] = valueToWire(f.Value)
		}
		return out
	case value.KindEnum:
		return v.Enum.Variant
	case value.KindTime, value.KindLTime, value.KindDate, value.KindLDate,
		value.KindTod, value.KindLTod, value.KindDt, value.KindLdt:
		return v.Ticks
	default:
		return v.Int
	}
}

// wireToValue converts a decoded JSON value back into a value.Value of
// kind dst — used by Set/IoWrite/ConfigSet, which only ever target a
// scalar slot already holding a known kind (the target's existing
// value supplies dst).
func wireToValue(dst value.Kind, raw interface{}) (value.Value, error) {
	switch dst {
	case value.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "expected bool, got %T", raw)
		}
		return value.Bool(b), nil
	case value.KindReal, value.KindLReal:
		f, ok := asFloat(raw)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "expected number, got %T", raw)
		}
		if dst == value.KindLReal {
			return value.LReal(f), nil
		}
		return value.Real(f), nil
	case value.KindString, value.KindWString, value.KindChar, value.KindWChar:
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "expected string, got %T", raw)
		}
		return value.Str(dst, s), nil
	default:
		f, ok := asFloat(raw)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "expected integer, got %T", raw)
		}
		return value.Int(dst, int64(f)), nil
	}
}

func asFloat(raw interface{}) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ioAreaName renders an I/O area as the string an "invalidated" event's
// Areas field uses.
func ioAreaName(a storage.IoArea) string {
	switch a {
	case storage.AreaInput:
		return "input"
	case storage.AreaOutput:
		return "output"
	default:
		return "memory"
	}
}

// ioKindForSize maps a direct address's size selector onto the Value
// kind IoRead/IoWrite/IoForce use to decode/encode the raw image
// bytes, independent of any declared variable's type.
func ioKindForSize(size io.SizeSelector) value.Kind {
	switch size {
	case io.SizeBit:
		return value.KindBool
	case io.SizeByte:
		return value.KindByte
	case io.SizeWord:
		return value.KindWord
	case io.SizeDWord:
		return value.KindDWord
	case io.SizeLWord:
		return value.KindLWord
	default:
		return value.KindByte
	}
}
