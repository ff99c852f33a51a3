// Package value implements the tagged runtime value model shared by
// every IEC 61131-3 Structured Text data domain: bit strings, numeric
// families, calendar types, strings, aggregates, references, and
// function-block instances.
package value

import "fmt"

// Kind identifies the runtime-discernible variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindSInt
	KindInt
	KindDInt
	KindLInt
	KindUSInt
	KindUInt
	KindUDInt
	KindULInt
	KindReal
	KindLReal
	KindByte
	KindWord
	KindDWord
	KindLWord
	KindTime
	KindLTime
	KindDate
	KindLDate
	KindTod
	KindLTod
	KindDt
	KindLdt
	KindString
	KindWString
	KindChar
	KindWChar
	KindArray
	KindStruct
	KindEnum
	KindReference
	KindInstance
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOL"
	case KindSInt:
		return "SINT"
	case KindInt:
		return "INT"
	case KindDInt:
		return "DINT"
	case KindLInt:
		return "LINT"
	case KindUSInt:
		return "USINT"
	case KindUInt:
		return "UINT"
	case KindUDInt:
		return "UDINT"
	case KindULInt:
		return "ULINT"
	case KindReal:
		return "REAL"
	case KindLReal:
		return "LREAL"
	case KindByte:
		return "BYTE"
	case KindWord:
		return "WORD"
	case KindDWord:
		return "DWORD"
	case KindLWord:
		return "LWORD"
	case KindTime:
		return "TIME"
	case KindLTime:
		return "LTIME"
	case KindDate:
		return "DATE"
	case KindLDate:
		return "LDATE"
	case KindTod:
		return "TOD"
	case KindLTod:
		return "LTOD"
	case KindDt:
		return "DT"
	case KindLdt:
		return "LDT"
	case KindString:
		return "STRING"
	case KindWString:
		return "WSTRING"
	case KindChar:
		return "CHAR"
	case KindWChar:
		return "WCHAR"
	case KindArray:
		return "ARRAY"
	case KindStruct:
		return "STRUCT"
	case KindEnum:
		return "ENUM"
	case KindReference:
		return "REFERENCE"
	case KindInstance:
		return "INSTANCE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// InstanceId identifies a function-block/class instance allocated in
// VariableStorage's instance arena.
type InstanceId uint32

// FrameId identifies a LocalFrame pushed for one call; monotonically
// increasing and unique within one cycle.
type FrameId uint32

// Location is where a ValueRef's top-level slot lives.
type Location int

const (
	LocGlobal Location = iota
	LocLocal
	LocInstance
	LocRetain
	LocIo
)

func (l Location) String() string {
	switch l {
	case LocGlobal:
		return "Global"
	case LocLocal:
		return "Local"
	case LocInstance:
		return "Instance"
	case LocRetain:
		return "Retain"
	case LocIo:
		return "Io"
	default:
		return "Unknown"
	}
}

// PathSegment is one step ("Field(name)" or "Index(indices...)") of a
// ValueRef's navigation path, applied left-to-right.
type PathSegment struct {
	Field   string  // non-empty for a field segment
	Indices []int64 // non-nil for an index segment
}

func FieldSeg(name string) PathSegment        { return PathSegment{Field: name} }
func IndexSeg(indices ...int64) PathSegment   { return PathSegment{Indices: indices} }
func (p PathSegment) IsField() bool           { return p.Indices == nil }
func (p PathSegment) IsIndex() bool           { return p.Indices != nil }

// ValueRef addresses a value reachable through VariableStorage: a
// top-level slot (Location + FrameId/InstanceId encoded by the caller
// into Owner, plus an Offset slot key) followed by a navigation Path.
type ValueRef struct {
	Location Location
	Owner    uint32 // FrameId or InstanceId when Location needs one, else 0
	Offset   uint32
	Name     string // top-level slot name, used by Global/Retain/Io lookups
	Path     []PathSegment
}

// Extend returns a copy of r with seg appended to its path.
func (r ValueRef) Extend(seg PathSegment) ValueRef {
	next := make([]PathSegment, len(r.Path)+1)
	copy(next, r.Path)
	next[len(r.Path)] = seg
	r.Path = next
	return r
}

// Value is the tagged union over every ST runtime domain.
type Value struct {
	Kind Kind

	Bool bool
	Int  int64  // backs all signed/unsigned integer kinds and bit strings
	Real float64 // backs REAL/LREAL

	// Duration/calendar kinds store a tick count; interpretation depends
	// on Kind and the runtime's DateTimeProfile.
	Ticks int64

	Str []rune // STRING/WSTRING/CHAR/WCHAR payload

	Array  *ArrayValue
	Struct *StructValue
	Enum   *EnumValue

	Ref *ValueRef // nil means Reference(None)

	Instance InstanceId
}

// ArrayValue is an aggregate with declared dimension bounds.
type ArrayValue struct {
	TypeName   string
	Dimensions []Dimension
	Elements   []Value
}

// Dimension is an inclusive [Lower, Upper] bound for one array axis.
type Dimension struct {
	Lower int64
	Upper int64
}

func (d Dimension) Len() int64 { return d.Upper - d.Lower + 1 }

// StructValue preserves declaration field order.
type StructValue struct {
	TypeName string
	Fields   []StructField
}

type StructField struct {
	Name  string
	Value Value
}

func (s *StructValue) Get(name string) (Value, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// With returns a shallow copy of s with field name set to v; used by
// clone-modify-rewrite nested writes. Panics never happen here: callers
// verify the field exists before calling With.
func (s *StructValue) With(name string, v Value) *StructValue {
	out := &StructValue{TypeName: s.TypeName, Fields: make([]StructField, len(s.Fields))}
	copy(out.Fields, s.Fields)
	for i, f := range out.Fields {
		if f.Name == name {
			out.Fields[i].Value = v
			return out
		}
	}
	out.Fields = append(out.Fields, StructField{Name: name, Value: v})
	return out
}

type EnumValue struct {
	TypeName string
	Variant  string
	Numeric  int64
}

// Null is the zero Value of kind KindNull.
var Null = Value{Kind: KindNull}

func Bool(b bool) Value    { return Value{Kind: KindBool, Bool: b} }
func Int(k Kind, n int64) Value {
	return Value{Kind: k, Int: n}
}
func Real(n float64) Value  { return Value{Kind: KindReal, Real: n} }
func LReal(n float64) Value { return Value{Kind: KindLReal, Real: n} }
func Str(k Kind, s string) Value {
	return Value{Kind: k, Str: []rune(s)}
}

func (v Value) AsString() string {
	return string(v.Str)
}

func ReferenceNone() Value            { return Value{Kind: KindReference} }
func ReferenceTo(r ValueRef) Value    { return Value{Kind: KindReference, Ref: &r} }
func InstanceVal(id InstanceId) Value { return Value{Kind: KindInstance, Instance: id} }

// IsBitString reports whether k admits partial bit/byte/word access.
func (k Kind) IsBitString() bool {
	switch k {
	case KindByte, KindWord, KindDWord, KindLWord:
		return true
	}
	return false
}

// BitWidth returns the bit width of a bit-string or integer kind, or 0.
func (k Kind) BitWidth() int {
	switch k {
	case KindBool, KindSInt, KindUSInt, KindByte, KindChar:
		return 8
	case KindInt, KindUInt, KindWord, KindWChar:
		return 16
	case KindDInt, KindUDInt, KindDWord, KindReal, KindTime:
		return 32
	case KindLInt, KindULInt, KindLWord, KindLReal, KindLTime:
		return 64
	default:
		return 0
	}
}

func (k Kind) IsNumeric() bool {
	switch k {
	case KindSInt, KindInt, KindDInt, KindLInt,
		KindUSInt, KindUInt, KindUDInt, KindULInt,
		KindReal, KindLReal:
		return true
	}
	return false
}

func (k Kind) IsSignedInt() bool {
	switch k {
	case KindSInt, KindInt, KindDInt, KindLInt:
		return true
	}
	return false
}

func (k Kind) IsUnsignedInt() bool {
	switch k {
	case KindUSInt, KindUInt, KindUDInt, KindULInt:
		return true
	}
	return false
}

func (k Kind) IsFloat() bool {
	return k == KindReal || k == KindLReal
}

// Equal reports whether v and other carry the same runtime value,
// widening across numeric/bit-string kinds the way comparison
// expressions do. Used by watch-expression change detection and tests.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		if (v.Kind.IsNumeric() || v.Kind.IsBitString()) && (other.Kind.IsNumeric() || other.Kind.IsBitString()) {
			return v.asFloat() == other.asFloat()
		}
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == other.Bool
	case KindReal, KindLReal:
		return v.Real == other.Real
	case KindString, KindWString, KindChar, KindWChar:
		return string(v.Str) == string(other.Str)
	case KindEnum:
		return v.Enum.TypeName == other.Enum.TypeName && v.Enum.Variant == other.Enum.Variant
	case KindInstance:
		return v.Instance == other.Instance
	default:
		return v.Int == other.Int
	}
}

func (v Value) asFloat() float64 {
	if v.Kind.IsFloat() {
		return v.Real
	}
	return float64(v.Int)
}
