// Package types implements the dense type registry: builtin IDs,
// derived type construction (array/struct/enum/alias/pointer/reference),
// case-insensitive lookup, and the implicit-widening assignability
// rules used by the evaluator and loader alike.
package types

import (
	"fmt"
	"strings"

	"github.com/ironrail/stcore/internal/value"
)

// TypeId is a dense identifier into the registry's type table.
type TypeId uint32

const (
	// Builtin ids occupy a fixed, stable prefix so the binary program
	// format (section TypeTable) never needs to re-serialize them.
	idBool TypeId = iota
	idSInt
	idInt
	idDInt
	idLInt
	idUSInt
	idUInt
	idUDInt
	idULInt
	idReal
	idLReal
	idByte
	idWord
	idDWord
	idLWord
	idTime
	idLTime
	idDate
	idLDate
	idTod
	idLTod
	idDt
	idLdt
	idString
	idWString
	idChar
	idWChar
	idAnyInt
	idAnyReal
	idAnyNum
	idAnyBit
	idAnyDate
	idAny

	// UserTypesStart is the first id handed out to a user-registered
	// type; kept exported because the loader needs it to validate
	// TypeTable indices against the builtin prefix.
	UserTypesStart TypeId = 64
)

var builtinKind = map[TypeId]value.Kind{
	idBool: value.KindBool, idSInt: value.KindSInt, idInt: value.KindInt,
	idDInt: value.KindDInt, idLInt: value.KindLInt, idUSInt: value.KindUSInt,
	idUInt: value.KindUInt, idUDInt: value.KindUDInt, idULInt: value.KindULInt,
	idReal: value.KindReal, idLReal: value.KindLReal, idByte: value.KindByte,
	idWord: value.KindWord, idDWord: value.KindDWord, idLWord: value.KindLWord,
	idTime: value.KindTime, idLTime: value.KindLTime, idDate: value.KindDate,
	idLDate: value.KindLDate, idTod: value.KindTod, idLTod: value.KindLTod,
	idDt: value.KindDt, idLdt: value.KindLdt, idString: value.KindString,
	idWString: value.KindWString, idChar: value.KindChar, idWChar: value.KindWChar,
}

var builtinNames = map[TypeId]string{
	idBool: "BOOL", idSInt: "SINT", idInt: "INT", idDInt: "DINT", idLInt: "LINT",
	idUSInt: "USINT", idUInt: "UINT", idUDInt: "UDINT", idULInt: "ULINT",
	idReal: "REAL", idLReal: "LREAL", idByte: "BYTE", idWord: "WORD",
	idDWord: "DWORD", idLWord: "LWORD", idTime: "TIME", idLTime: "LTIME",
	idDate: "DATE", idLDate: "LDATE", idTod: "TOD", idLTod: "LTOD",
	idDt: "DT", idLdt: "LDT", idString: "STRING", idWString: "WSTRING",
	idChar: "CHAR", idWChar: "WCHAR",
	idAnyInt: "ANY_INT", idAnyReal: "ANY_REAL", idAnyNum: "ANY_NUM",
	idAnyBit: "ANY_BIT", idAnyDate: "ANY_DATE", idAny: "ANY",
}

// Variant is the tagged shape of a registered Type.
type Variant int

const (
	VBuiltin Variant = iota
	VArray
	VStruct
	VUnion
	VEnum
	VAlias
	VPointer
	VReference
	VStringWithLength
	VFunctionBlock
	VClass
	VInterface
)

// Type is one registry entry: its shape plus shape-specific detail.
type Type struct {
	Name    string
	Variant Variant
	Kind    value.Kind // meaningful for VBuiltin

	// VArray
	ElemType   TypeId
	Dimensions []value.Dimension

	// VStruct / VUnion
	Fields []FieldDef

	// VEnum
	Variants []EnumVariant

	// VAlias / VPointer / VReference
	Target TypeId

	// VStringWithLength
	MaxLen int

	// VFunctionBlock / VClass
	Base TypeId // NoBase sentinel for "no base"
}

type FieldDef struct {
	Name string
	Type TypeId
}

type EnumVariant struct {
	Name    string
	Numeric int64
}

// NoBase marks a VFunctionBlock/VClass with no declared base type.
const NoBase TypeId = ^TypeId(0)

// Registry is the dense TypeId -> Type table with case-insensitive
// name lookup.
type Registry struct {
	entries []Type
	byName  map[string]TypeId // upper-cased keys
	next    TypeId
}

// NewRegistry returns a registry with every builtin id pre-registered.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]TypeId), next: UserTypesStart}
	r.entries = make([]Type, UserTypesStart)
	for id, name := range builtinNames {
		t := Type{Name: name, Variant: VBuiltin, Kind: builtinKind[id]}
		r.entries[id] = t
		r.byName[strings.ToUpper(name)] = id
		r.byName[name] = id
	}
	return r
}

func (r *Registry) register(t Type) TypeId {
	id := r.next
	r.next++
	r.entries = append(r.entries, t)
	r.byName[strings.ToUpper(t.Name)] = id
	r.byName[t.Name] = id
	return id
}

// Register adds a user type under name, returning its new id. Both the
// original and upper-cased spelling are indexed for lookup.
func (r *Registry) Register(name string, t Type) TypeId {
	t.Name = name
	return r.register(t)
}

func (r *Registry) RegisterArray(name string, elem TypeId, dims []value.Dimension) TypeId {
	return r.register(Type{Name: name, Variant: VArray, ElemType: elem, Dimensions: dims})
}

func (r *Registry) RegisterStruct(name string, fields []FieldDef) TypeId {
	return r.register(Type{Name: name, Variant: VStruct, Fields: fields})
}

func (r *Registry) RegisterEnum(name string, variants []EnumVariant) TypeId {
	return r.register(Type{Name: name, Variant: VEnum, Variants: variants})
}

func (r *Registry) RegisterAlias(name string, target TypeId) TypeId {
	return r.register(Type{Name: name, Variant: VAlias, Target: target})
}

func (r *Registry) RegisterPointer(name string, target TypeId) TypeId {
	return r.register(Type{Name: name, Variant: VPointer, Target: target})
}

func (r *Registry) RegisterReference(name string, target TypeId) TypeId {
	return r.register(Type{Name: name, Variant: VReference, Target: target})
}

func (r *Registry) RegisterStringWithLength(name string, wide bool, maxLen int) TypeId {
	k := value.KindString
	if wide {
		k = value.KindWString
	}
	return r.register(Type{Name: name, Variant: VStringWithLength, Kind: k, MaxLen: maxLen})
}

func (r *Registry) RegisterFunctionBlock(name string, base TypeId, fields []FieldDef) TypeId {
	return r.register(Type{Name: name, Variant: VFunctionBlock, Base: base, Fields: fields})
}

func (r *Registry) RegisterClass(name string, base TypeId, fields []FieldDef) TypeId {
	return r.register(Type{Name: name, Variant: VClass, Base: base, Fields: fields})
}

// Lookup resolves a type name case-insensitively.
func (r *Registry) Lookup(name string) (TypeId, bool) {
	if id, ok := r.byName[name]; ok {
		return id, true
	}
	id, ok := r.byName[strings.ToUpper(name)]
	return id, ok
}

// Get returns the Type for id. Panics only on a caller bug (id out of
// the dense table), never on malformed user input — callers validate
// ids from untrusted sources (the loader) before calling Get.
func (r *Registry) Get(id TypeId) Type {
	return r.entries[id]
}

func (r *Registry) Len() int { return len(r.entries) }

// Resolve unwraps VAlias chains transparently, returning the first
// non-alias Type and its id.
func (r *Registry) Resolve(id TypeId) (TypeId, Type) {
	seen := map[TypeId]bool{}
	for {
		t := r.Get(id)
		if t.Variant != VAlias || seen[id] {
			return id, t
		}
		seen[id] = true
		id = t.Target
	}
}

// signedRank and unsignedRank order integer widening chains; higher ranks accept lower
// ranks of the same signedness implicitly.
var signedRank = map[TypeId]int{idSInt: 0, idInt: 1, idDInt: 2, idLInt: 3}
var unsignedRank = map[TypeId]int{idUSInt: 0, idUInt: 1, idUDInt: 2, idULInt: 3}

// IsAssignable reports whether a value of type src may be implicitly
// assigned into a slot of type dst: identical types, alias-transparent
// equivalence, the documented integer widening chains, int->real
// widening, and ANY_* supertype acceptance.
func (r *Registry) IsAssignable(dst, src TypeId) bool {
	dstId, dstT := r.Resolve(dst)
	srcId, srcT := r.Resolve(src)
	if dstId == srcId {
		return true
	}
	if dstT.Variant != VBuiltin {
		return false
	}
	switch dstId {
	case idAny:
		return true
	case idAnyNum:
		return r.isAnyInt(srcId) || r.isAnyReal(srcId)
	case idAnyInt:
		return r.isAnyInt(srcId)
	case idAnyReal:
		return r.isAnyReal(srcId)
	case idAnyBit:
		switch srcId {
		case idByte, idWord, idDWord, idLWord, idBool:
			return true
		}
		return false
	case idAnyDate:
		switch srcId {
		case idDate, idLDate, idTod, idLTod, idDt, idLdt, idTime, idLTime:
			return true
		}
		return false
	}
	if srcT.Variant != VBuiltin {
		return false
	}
	if sr, ok := signedRank[srcId]; ok {
		if dr, ok := signedRank[dstId]; ok {
			return dr >= sr
		}
		if dstId == idReal || dstId == idLReal {
			return true
		}
		return false
	}
	if sr, ok := unsignedRank[srcId]; ok {
		if dr, ok := unsignedRank[dstId]; ok {
			return dr >= sr
		}
		if dstId == idReal || dstId == idLReal {
			return true
		}
		return false
	}
	if srcId == idReal && dstId == idLReal {
		return true
	}
	return false
}

func (r *Registry) isAnyInt(id TypeId) bool {
	_, ok1 := signedRank[id]
	_, ok2 := unsignedRank[id]
	return ok1 || ok2
}

func (r *Registry) isAnyReal(id TypeId) bool {
	return id == idReal || id == idLReal
}

// NameOf returns the registered name for id, or a synthetic placeholder
// if id is out of range (defensive formatting only; never used to drive
// control flow).
func (r *Registry) NameOf(id TypeId) string {
	if int(id) >= len(r.entries) {
		return fmt.Sprintf("#%d", id)
	}
	return r.entries[id].Name
}

// KindOf returns the runtime Kind represented by id, resolving aliases
// and mapping aggregate/derived variants to their Value.Kind tag.
func (r *Registry) KindOf(id TypeId) value.Kind {
	_, t := r.Resolve(id)
	switch t.Variant {
	case VBuiltin:
		return t.Kind
	case VStringWithLength:
		return t.Kind
	case VArray:
		return value.KindArray
	case VStruct, VUnion:
		return value.KindStruct
	case VEnum:
		return value.KindEnum
	case VReference, VPointer:
		return value.KindReference
	case VFunctionBlock, VClass, VInterface:
		return value.KindInstance
	default:
		return value.KindNull
	}
}

// BoolId, IntId... exported accessors for builtin ids, used by packages
// that need to construct default values or compare against known types
// without importing the unexported id* constants.
func BoolId() TypeId    { return idBool }
func IntId() TypeId     { return idInt }
func DIntId() TypeId    { return idDInt }
func RealId() TypeId    { return idReal }
func StringId() TypeId  { return idString }
func TimeId() TypeId    { return idTime }
func AnyId() TypeId     { return idAny }
func CharId() TypeId    { return idChar }
