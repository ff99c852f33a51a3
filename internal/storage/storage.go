// Package storage implements VariableStorage: globals, retains,
// instance arenas with parent-chain inheritance, call frames, and the
// ValueRef navigation used by the evaluator and debug control plane.
package storage

import (
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// orderedMap is an insertion-order-preserving name->value map, used
// everywhere VariableStorage needs deterministic iteration (globals,
// instance vars, locals).
type orderedMap struct {
	keys   []string
	values map[string]value.Value
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: make(map[string]value.Value)}
}

func (m *orderedMap) Get(name string) (value.Value, bool) {
	v, ok := m.values[name]
	return v, ok
}

func (m *orderedMap) Set(name string, v value.Value) {
	if _, exists := m.values[name]; !exists {
		m.keys = append(m.keys, name)
	}
	m.values[name] = v
}

func (m *orderedMap) Names() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *orderedMap) clone() *orderedMap {
	out := newOrderedMap()
	out.keys = append(out.keys, m.keys...)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// Instance is one function-block/class instance in the arena, with an
// optional parent link forming the inheritance chain.
type Instance struct {
	TypeName string
	Vars     *orderedMap
	Parent   *value.InstanceId // nil at the root of the chain
}

// LocalFrame holds one call's VAR_INPUT/VAR_OUTPUT/VAR/VAR_TEMP slots.
type LocalFrame struct {
	Id         value.FrameId
	Owner      string // POU name, for diagnostics
	InstanceId *value.InstanceId
	Locals     *orderedMap
	ReturnName string // non-empty for function calls; read back by the caller
}

// Force overrides an I/O image bit/byte until cleared; applied last at
// cycle-end, after program writes.
type Force struct {
	Area  IoArea
	Byte  uint32
	Bit   int8 // -1 means whole-byte force
	Value value.Value
}

type forceKey struct {
	area IoArea
	byte uint32
	bit  int8
}

// IoArea is one of the three IEC 61131-3 memory areas.
type IoArea int

const (
	AreaInput IoArea = iota
	AreaOutput
	AreaMemory
)

// IoImage holds the three byte regions read/written at cycle
// boundaries, plus the active force table.
type IoImage struct {
	Input, Output, Memory []byte
	forces                map[forceKey]Force
}

func newIoImage() *IoImage {
	return &IoImage{forces: make(map[forceKey]Force)}
}

func (img *IoImage) region(area IoArea) *[]byte {
	switch area {
	case AreaInput:
		return &img.Input
	case AreaOutput:
		return &img.Output
	default:
		return &img.Memory
	}
}

// EnsureByte grows the named area so index byte is addressable.
func (img *IoImage) EnsureByte(area IoArea, byteIdx uint32) {
	r := img.region(area)
	if need := int(byteIdx) + 1; need > len(*r) {
		grown := make([]byte, need)
		copy(grown, *r)
		*r = grown
	}
}

func (img *IoImage) SetForce(f Force) {
	img.forces[forceKey{f.Area, f.Byte, f.Bit}] = f
}

func (img *IoImage) ClearForce(area IoArea, byteIdx uint32, bit int8) {
	delete(img.forces, forceKey{area, byteIdx, bit})
}

func (img *IoImage) Forces() []Force {
	out := make([]Force, 0, len(img.forces))
	for _, f := range img.forces {
		out = append(out, f)
	}
	return out
}

// ApplyForces overwrites the output image with every active force on
// AreaOutput; called last in the I/O write phase.
func (img *IoImage) ApplyForces() {
	for _, f := range img.forces {
		if f.Area != AreaOutput {
			continue
		}
		img.EnsureByte(AreaOutput, f.Byte)
		if f.Bit < 0 {
			img.Output[f.Byte] = byte(f.Value.Int)
			continue
		}
		mask := byte(1) << uint(f.Bit)
		if f.Value.Bool {
			img.Output[f.Byte] |= mask
		} else {
			img.Output[f.Byte] &^= mask
		}
	}
}

// VariableStorage is the single owner of all mutable runtime state for
// one program run: globals, retains, the instance arena, the frame
// stack, and the I/O image.
type VariableStorage struct {
	globals *orderedMap
	retains *orderedMap

	instances []*Instance // dense arena; index == InstanceId

	frames   []*LocalFrame
	nextFrameId value.FrameId

	Io *IoImage
}

func New() *VariableStorage {
	return &VariableStorage{
		globals: newOrderedMap(),
		retains: newOrderedMap(),
		Io:      newIoImage(),
	}
}

// --- globals ---

func (s *VariableStorage) SetGlobal(name string, v value.Value) { s.globals.Set(name, v) }

func (s *VariableStorage) GetGlobal(name string) (value.Value, bool) { return s.globals.Get(name) }

func (s *VariableStorage) GlobalNames() []string { return s.globals.Names() }

// --- retains ---

func (s *VariableStorage) SetRetain(name string, v value.Value) { s.retains.Set(name, v) }

func (s *VariableStorage) GetRetain(name string) (value.Value, bool) { return s.retains.Get(name) }

func (s *VariableStorage) RetainNames() []string { return s.retains.Names() }

// --- instances ---

// CreateInstance allocates a new instance of typeName with the given
// parent (for base-class chains), returning its dense InstanceId.
func (s *VariableStorage) CreateInstance(typeName string, parent *value.InstanceId) value.InstanceId {
	s.instances = append(s.instances, &Instance{TypeName: typeName, Vars: newOrderedMap(), Parent: parent})
	return value.InstanceId(len(s.instances) - 1)
}

func (s *VariableStorage) instance(id value.InstanceId) (*Instance, error) {
	if int(id) < 0 || int(id) >= len(s.instances) {
		return nil, vmerr.New(vmerr.UndefinedVariable, "instance %d does not exist", id)
	}
	return s.instances[id], nil
}

func (s *VariableStorage) SetInstanceVar(id value.InstanceId, name string, v value.Value) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	inst.Vars.Set(name, v)
	return nil
}

func (s *VariableStorage) GetInstanceVar(id value.InstanceId, name string) (value.Value, bool, error) {
	inst, err := s.instance(id)
	if err != nil {
		return value.Value{}, false, err
	}
	v, ok := inst.Vars.Get(name)
	return v, ok, nil
}

// GetInstanceVarRecursive walks the parent chain (visited-set guarded
// against malformed cycles) until name resolves.
func (s *VariableStorage) GetInstanceVarRecursive(id value.InstanceId, name string) (value.Value, bool, error) {
	visited := make(map[value.InstanceId]bool)
	cur := id
	for {
		if visited[cur] {
			return value.Value{}, false, nil
		}
		visited[cur] = true
		inst, err := s.instance(cur)
		if err != nil {
			return value.Value{}, false, err
		}
		if v, ok := inst.Vars.Get(name); ok {
			return v, true, nil
		}
		if inst.Parent == nil {
			return value.Value{}, false, nil
		}
		cur = *inst.Parent
	}
}

func (s *VariableStorage) InstanceTypeName(id value.InstanceId) (string, error) {
	inst, err := s.instance(id)
	if err != nil {
		return "", err
	}
	return inst.TypeName, nil
}

func (s *VariableStorage) InstanceParent(id value.InstanceId) (*value.InstanceId, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}
	return inst.Parent, nil
}

func (s *VariableStorage) InstanceVarNames(id value.InstanceId) ([]string, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}
	return inst.Vars.Names(), nil
}

// --- frames ---

// PushFrame allocates a new frame with a monotonically increasing id.
func (s *VariableStorage) PushFrame(owner string, instanceId *value.InstanceId, returnName string) *LocalFrame {
	f := &LocalFrame{
		Id: s.nextFrameId, Owner: owner, InstanceId: instanceId,
		Locals: newOrderedMap(), ReturnName: returnName,
	}
	s.nextFrameId++
	s.frames = append(s.frames, f)
	return f
}

// PopFrame releases the most recently pushed frame (including on fault
// propagation: callers defer PopFrame immediately after PushFrame).
func (s *VariableStorage) PopFrame() {
	if len(s.frames) == 0 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *VariableStorage) CurrentFrame() *LocalFrame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *VariableStorage) FrameDepth() int { return len(s.frames) }

func (f *LocalFrame) Set(name string, v value.Value) { f.Locals.Set(name, v) }

func (f *LocalFrame) Get(name string) (value.Value, bool) { return f.Locals.Get(name) }

// --- ValueRef construction ---

func (s *VariableStorage) RefForGlobal(name string) value.ValueRef {
	return value.ValueRef{Location: value.LocGlobal, Name: name}
}

func (s *VariableStorage) RefForRetain(name string) value.ValueRef {
	return value.ValueRef{Location: value.LocRetain, Name: name}
}

func (s *VariableStorage) RefForLocal(frameId value.FrameId, name string) value.ValueRef {
	return value.ValueRef{Location: value.LocLocal, Owner: uint32(frameId), Name: name}
}

func (s *VariableStorage) RefForInstance(id value.InstanceId, name string) value.ValueRef {
	return value.ValueRef{Location: value.LocInstance, Owner: uint32(id), Name: name}
}

// RefForInstanceRecursive resolves name against id's parent chain first
// so the constructed ref's Owner names the instance that actually
// declares the variable.
func (s *VariableStorage) RefForInstanceRecursive(id value.InstanceId, name string) (value.ValueRef, error) {
	visited := make(map[value.InstanceId]bool)
	cur := id
	for {
		if visited[cur] {
			return value.ValueRef{}, vmerr.New(vmerr.UndefinedField, "inheritance cycle resolving %q", name)
		}
		visited[cur] = true
		inst, err := s.instance(cur)
		if err != nil {
			return value.ValueRef{}, err
		}
		if _, ok := inst.Vars.Get(name); ok {
			return s.RefForInstance(cur, name), nil
		}
		if inst.Parent == nil {
			return value.ValueRef{}, vmerr.New(vmerr.UndefinedField, "no field %q in inheritance chain of instance %d", name, id)
		}
		cur = *inst.Parent
	}
}

func (s *VariableStorage) frameById(id value.FrameId) *LocalFrame {
	for _, f := range s.frames {
		if f.Id == id {
			return f
		}
	}
	return nil
}

// ReadByRef navigates r's path against its top-level slot and returns
// the resolved value.
func (s *VariableStorage) ReadByRef(r value.ValueRef) (value.Value, error) {
	base, err := s.readSlot(r)
	if err != nil {
		return value.Value{}, err
	}
	return navigateRead(base, r.Path)
}

// WriteByRef navigates r's path, clone-modify-rewriting any nested
// struct/array slots, and stores the result back into the top-level
// slot. It does not dereference: a Reference value in the top-level
// slot is overwritten like any other value.
func (s *VariableStorage) WriteByRef(r value.ValueRef, v value.Value) error {
	base, err := s.readSlot(r)
	if err != nil {
		return err
	}
	updated, err := navigateWrite(base, r.Path, v)
	if err != nil {
		return err
	}
	return s.writeSlot(r, updated)
}

func (s *VariableStorage) readSlot(r value.ValueRef) (value.Value, error) {
	switch r.Location {
	case value.LocGlobal:
		v, ok := s.globals.Get(r.Name)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.UndefinedVariable, "global %q", r.Name)
		}
		return v, nil
	case value.LocRetain:
		v, ok := s.retains.Get(r.Name)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.UndefinedVariable, "retain %q", r.Name)
		}
		return v, nil
	case value.LocLocal:
		f := s.frameById(value.FrameId(r.Owner))
		if f == nil {
			return value.Value{}, vmerr.New(vmerr.UndefinedVariable, "frame %d no longer exists", r.Owner)
		}
		v, ok := f.Get(r.Name)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.UndefinedVariable, "local %q", r.Name)
		}
		return v, nil
	case value.LocInstance:
		v, ok, err := s.GetInstanceVar(value.InstanceId(r.Owner), r.Name)
		if err != nil {
			return value.Value{}, err
		}
		if !ok {
			return value.Value{}, vmerr.New(vmerr.UndefinedField, "instance var %q", r.Name)
		}
		return v, nil
	default:
		return value.Value{}, vmerr.New(vmerr.TypeMismatch, "Io refs are not readable through ReadByRef")
	}
}

func (s *VariableStorage) writeSlot(r value.ValueRef, v value.Value) error {
	switch r.Location {
	case value.LocGlobal:
		s.globals.Set(r.Name, v)
		return nil
	case value.LocRetain:
		s.retains.Set(r.Name, v)
		return nil
	case value.LocLocal:
		f := s.frameById(value.FrameId(r.Owner))
		if f == nil {
			return vmerr.New(vmerr.UndefinedVariable, "frame %d no longer exists", r.Owner)
		}
		f.Set(r.Name, v)
		return nil
	case value.LocInstance:
		return s.SetInstanceVar(value.InstanceId(r.Owner), r.Name, v)
	default:
		return vmerr.New(vmerr.TypeMismatch, "Io refs are not writable through WriteByRef")
	}
}

func navigateRead(base value.Value, path []value.PathSegment) (value.Value, error) {
	cur := base
	for _, seg := range path {
		switch {
		case seg.IsField():
			if cur.Kind == value.KindInstance {
				return value.Value{}, vmerr.New(vmerr.TypeMismatch, "field access through Instance requires recursive instance lookup")
			}
			if cur.Kind != value.KindStruct {
				return value.Value{}, vmerr.New(vmerr.TypeMismatch, "%s has no fields", cur.Kind)
			}
			v, ok := cur.Struct.Get(seg.Field)
			if !ok {
				return value.Value{}, vmerr.New(vmerr.UndefinedField, "%q", seg.Field)
			}
			cur = v
		case seg.IsIndex():
			if cur.Kind != value.KindArray {
				return value.Value{}, vmerr.New(vmerr.TypeMismatch, "%s is not an array", cur.Kind)
			}
			off, err := offsetFor(cur.Array, seg.Indices)
			if err != nil {
				return value.Value{}, err
			}
			cur = cur.Array.Elements[off]
		}
	}
	if cur.Kind == value.KindReference {
		// Deref semantics happen one layer up (evaluator); ReadByRef
		// itself returns the Reference value verbatim so callers can
		// decide whether to chase it.
	}
	return cur, nil
}

func navigateWrite(base value.Value, path []value.PathSegment, newVal value.Value) (value.Value, error) {
	if len(path) == 0 {
		return newVal, nil
	}
	seg := path[0]
	rest := path[1:]
	switch {
	case seg.IsField():
		if base.Kind != value.KindStruct {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "%s has no fields", base.Kind)
		}
		child, ok := base.Struct.Get(seg.Field)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.UndefinedField, "%q", seg.Field)
		}
		updatedChild, err := navigateWrite(child, rest, newVal)
		if err != nil {
			return value.Value{}, err
		}
		out := base
		out.Struct = base.Struct.With(seg.Field, updatedChild)
		return out, nil
	case seg.IsIndex():
		if base.Kind != value.KindArray {
			return value.Value{}, vmerr.New(vmerr.TypeMismatch, "%s is not an array", base.Kind)
		}
		off, err := offsetFor(base.Array, seg.Indices)
		if err != nil {
			return value.Value{}, err
		}
		updatedChild, err := navigateWrite(base.Array.Elements[off], rest, newVal)
		if err != nil {
			return value.Value{}, err
		}
		out := base
		elems := make([]value.Value, len(base.Array.Elements))
		copy(elems, base.Array.Elements)
		elems[off] = updatedChild
		out.Array = &value.ArrayValue{
			TypeName: base.Array.TypeName, Dimensions: base.Array.Dimensions, Elements: elems,
		}
		return out, nil
	}
	return value.Value{}, vmerr.New(vmerr.TypeMismatch, "unreachable path segment")
}

func offsetFor(arr *value.ArrayValue, indices []int64) (int64, error) {
	if len(indices) != len(arr.Dimensions) {
		return 0, vmerr.New(vmerr.TypeMismatch, "expected %d indices, got %d", len(arr.Dimensions), len(indices))
	}
	var offset int64
	for i, d := range arr.Dimensions {
		idx := indices[i]
		if idx < d.Lower || idx > d.Upper {
			return 0, vmerr.OutOfBounds(idx, d.Lower, d.Upper)
		}
		offset = offset*d.Len() + (idx - d.Lower)
	}
	return offset, nil
}

// DeepCopy returns an independent copy of the storage suitable for a
// debug snapshot: mutating the copy never affects the live runtime.
func (s *VariableStorage) DeepCopy() *VariableStorage {
	out := &VariableStorage{
		globals: s.globals.clone(),
		retains: s.retains.clone(),
		Io:      &IoImage{forces: make(map[forceKey]Force, len(s.Io.forces))},
	}
	out.Io.Input = append([]byte(nil), s.Io.Input...)
	out.Io.Output = append([]byte(nil), s.Io.Output...)
	out.Io.Memory = append([]byte(nil), s.Io.Memory...)
	for k, v := range s.Io.forces {
		out.Io.forces[k] = v
	}
	out.instances = make([]*Instance, len(s.instances))
	for i, inst := range s.instances {
		if inst == nil {
			continue
		}
		var parent *value.InstanceId
		if inst.Parent != nil {
			p := *inst.Parent
			parent = &p
		}
		out.instances[i] = &Instance{TypeName: inst.TypeName, Vars: inst.Vars.clone(), Parent: parent}
	}
	out.nextFrameId = s.nextFrameId
	for _, f := range s.frames {
		var instId *value.InstanceId
		if f.InstanceId != nil {
			id := *f.InstanceId
			instId = &id
		}
		out.frames = append(out.frames, &LocalFrame{
			Id: f.Id, Owner: f.Owner, InstanceId: instId,
			Locals: f.Locals.clone(), ReturnName: f.ReturnName,
		})
	}
	return out
}
