package types

import (
	"testing"

	"github.com/ironrail/stcore/internal/value"
)

// TestDefaultValueSatisfiesAssignability is testable property 1 from
// spec.md §8: for every registered type T, the default value's runtime
// kind is assignable back into T.
func TestDefaultValueSatisfiesAssignability(t *testing.T) {
	r := NewRegistry()
	profile := value.DefaultProfile()
	intId, _ := r.Lookup("INT")

	arr := r.RegisterArray("Arr3", intId, []value.Dimension{{Lower: 0, Upper: 2}})
	st := r.RegisterStruct("Pair", []FieldDef{{Name: "A", Type: intId}, {Name: "B", Type: intId}})
	en := r.RegisterEnum("Color", []EnumVariant{{Name: "RED", Numeric: 0}, {Name: "GREEN", Numeric: 1}})
	ref := r.RegisterReference("RefToInt", intId)

	for _, name := range []string{
		"BOOL", "SINT", "INT", "DINT", "LINT", "USINT", "UINT", "UDINT", "ULINT",
		"REAL", "LREAL", "BYTE", "WORD", "DWORD", "LWORD",
		"TIME", "LTIME", "DATE", "LDATE", "TOD", "LTOD", "DT", "LDT",
		"STRING", "WSTRING", "CHAR", "WCHAR",
	} {
		id, ok := r.Lookup(name)
		if !ok {
			t.Fatalf("builtin %q not found", name)
		}
		v, err := r.DefaultValue(id, profile)
		if err != nil {
			t.Fatalf("DefaultValue(%s): %v", name, err)
		}
		if v.Kind != r.KindOf(id) {
			t.Errorf("DefaultValue(%s).Kind = %s, want %s", name, v.Kind, r.KindOf(id))
		}
	}

	for _, id := range []TypeId{arr, st, en, ref} {
		v, err := r.DefaultValue(id, profile)
		if err != nil {
			t.Fatalf("DefaultValue(%s): %v", r.NameOf(id), err)
		}
		if v.Kind != r.KindOf(id) {
			t.Errorf("DefaultValue(%s).Kind = %s, want %s", r.NameOf(id), v.Kind, r.KindOf(id))
		}
	}
}

// TestDefaultValueCharIsNulRune guards spec.md §4.2's "chars -> 0": the
// default CHAR/WCHAR must be the NUL rune carried in Str (the field
// value.Equal and value.Value.AsString both read for these kinds), not
// a zero-length Str, which would make AsString() return "" and would
// make the default compare equal to any other empty-Str value.
func TestDefaultValueCharIsNulRune(t *testing.T) {
	r := NewRegistry()
	profile := value.DefaultProfile()

	for _, name := range []string{"CHAR", "WCHAR"} {
		id, ok := r.Lookup(name)
		if !ok {
			t.Fatalf("builtin %q not found", name)
		}
		v, err := r.DefaultValue(id, profile)
		if err != nil {
			t.Fatalf("DefaultValue(%s): %v", name, err)
		}
		if len(v.Str) != 1 || v.Str[0] != 0 {
			t.Errorf("DefaultValue(%s).Str = %v, want a single NUL rune", name, v.Str)
		}
		if got := v.AsString(); got != "\x00" {
			t.Errorf("DefaultValue(%s).AsString() = %q, want a single NUL rune", name, got)
		}
	}
}

func TestDefaultValueArrayLengthAndRecursion(t *testing.T) {
	r := NewRegistry()
	profile := value.DefaultProfile()
	intId, _ := r.Lookup("INT")
	arr := r.RegisterArray("Arr10", intId, []value.Dimension{{Lower: 1, Upper: 10}})

	v, err := r.DefaultValue(arr, profile)
	if err != nil {
		t.Fatalf("DefaultValue: %v", err)
	}
	if len(v.Array.Elements) != 10 {
		t.Fatalf("default array has %d elements, want 10", len(v.Array.Elements))
	}
	for i, e := range v.Array.Elements {
		if e.Kind != value.KindInt || e.Int != 0 {
			t.Errorf("element %d = %+v, want zero INT", i, e)
		}
	}
}

func TestDefaultValueInvalidArrayBounds(t *testing.T) {
	r := NewRegistry()
	intId, _ := r.Lookup("INT")
	arr := r.RegisterArray("Bad", intId, []value.Dimension{{Lower: 5, Upper: 1}})
	if _, err := r.DefaultValue(arr, value.DefaultProfile()); err == nil {
		t.Errorf("expected an error for an array with upper < lower bound")
	}
}

func TestDefaultValueStructPreservesFieldOrder(t *testing.T) {
	r := NewRegistry()
	intId, _ := r.Lookup("INT")
	boolId, _ := r.Lookup("BOOL")
	st := r.RegisterStruct("Ordered", []FieldDef{
		{Name: "First", Type: boolId},
		{Name: "Second", Type: intId},
	})
	v, err := r.DefaultValue(st, value.DefaultProfile())
	if err != nil {
		t.Fatalf("DefaultValue: %v", err)
	}
	if len(v.Struct.Fields) != 2 || v.Struct.Fields[0].Name != "First" || v.Struct.Fields[1].Name != "Second" {
		t.Fatalf("field order not preserved: %+v", v.Struct.Fields)
	}
}

func TestDefaultValueEmptyEnumErrors(t *testing.T) {
	r := NewRegistry()
	en := r.RegisterEnum("Empty", nil)
	if _, err := r.DefaultValue(en, value.DefaultProfile()); err == nil {
		t.Errorf("expected an error defaulting an enum with no variants")
	}
}

func TestDefaultValuePointerAndFBAreUnsupported(t *testing.T) {
	r := NewRegistry()
	intId, _ := r.Lookup("INT")
	ptr := r.RegisterPointer("PtrToInt", intId)
	fb := r.RegisterFunctionBlock("MyFB", NoBase, nil)
	for _, id := range []TypeId{ptr, fb} {
		if _, err := r.DefaultValue(id, value.DefaultProfile()); err == nil {
			t.Errorf("DefaultValue(%s) should fail; pointers/FBs must be materialized explicitly", r.NameOf(id))
		}
	}
}

// TestArrayOffsetInjective is testable property 6 from spec.md §8.
func TestArrayOffsetInjective(t *testing.T) {
	dims := []value.Dimension{{Lower: 0, Upper: 2}, {Lower: 1, Upper: 3}}
	seen := map[int64]bool{}
	for i := int64(0); i <= 2; i++ {
		for j := int64(1); j <= 3; j++ {
			off, err := ArrayOffset(dims, []int64{i, j})
			if err != nil {
				t.Fatalf("ArrayOffset(%d,%d): %v", i, j, err)
			}
			if seen[off] {
				t.Fatalf("offset %d produced by more than one in-bound tuple", off)
			}
			seen[off] = true
		}
	}
	if len(seen) != 9 {
		t.Errorf("expected 9 distinct offsets, got %d", len(seen))
	}

	if _, err := ArrayOffset(dims, []int64{0, 4}); err == nil {
		t.Errorf("index 4 is out of bounds for [1,3] and should fail")
	}
	if _, err := ArrayOffset(dims, []int64{3, 1}); err == nil {
		t.Errorf("index 3 is out of bounds for [0,2] and should fail")
	}
	if _, err := ArrayOffset(dims, []int64{0}); err == nil {
		t.Errorf("wrong arity should fail")
	}
}
