package format

import (
	"testing"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/tools/txtar"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/types"
	"github.com/ironrail/stcore/internal/value"
)

// sampleModule builds a small but representative Module exercising
// every section: a user struct type, a program POU, a task, an I/O
// binding, and a retain initializer.
func sampleModule() *Module {
	counter := types.Type{Variant: types.VStruct, Fields: []types.FieldDef{
		{Name: "CV", Type: types.IntId()},
	}}

	return &Module{
		Strings:      []string{"main", "CV"},
		DebugStrings: []string{"main.st"},
		Types:        []types.Type{counter},
		Consts:       []value.Value{value.Int(types.IntId(), 42)},
		Refs:         []value.ValueRef{{Location: value.LocGlobal, Name: "g1"}},
		Pous: PouSet{
			Programs: []program.ProgramDef{
				{Name: "MAIN", Locals: []program.LocalVar{{Name: "x", Type: types.IntId()}}},
			},
			Globals: []program.GlobalVar{{Name: "g1", Type: types.BoolId()}},
		},
		Resource: ResourceMeta{
			Tasks: []TaskMeta{
				{Name: "fast", IntervalNanos: 5_000_000, Priority: 0, Programs: []string{"MAIN"}},
			},
			FaultPolicy: "safe_halt",
		},
		IoMap: []IoBindingMeta{
			{Name: "sensor1", Addr: "%IX0.0", Dir: "input", RefKind: uint8(value.KindBool)},
		},
		VarMeta: []VarMetaEntry{
			{Scope: "MAIN", Name: "x", Type: types.IntId(), Retain: 0},
		},
		RetainInit: []RetainInitEntry{
			{Name: "g1", Value: value.Bool(true)},
		},
		DebugMap: []DebugLocEntry{
			{FileId: 1, Start: 0, End: 10, PouName: "MAIN", StmtPath: "0"},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleModule()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(got.Types) != 1 || got.Types[0].Variant != types.VStruct {
		t.Fatalf("Types round-trip = %+v", got.Types)
	}
	if len(got.Pous.Programs) != 1 || got.Pous.Programs[0].Name != "MAIN" {
		t.Fatalf("Pous.Programs round-trip = %+v", got.Pous.Programs)
	}
	if len(got.Resource.Tasks) != 1 || got.Resource.Tasks[0].Name != "fast" {
		t.Fatalf("Resource round-trip = %+v", got.Resource)
	}
	if len(got.IoMap) != 1 || got.IoMap[0].Addr != "%IX0.0" {
		t.Fatalf("IoMap round-trip = %+v", got.IoMap)
	}
	if len(got.RetainInit) != 1 || !got.RetainInit[0].Value.Bool {
		t.Fatalf("RetainInit round-trip = %+v", got.RetainInit)
	}
	if len(got.Strings) != 2 || got.Strings[1] != "CV" {
		t.Fatalf("Strings round-trip = %+v", got.Strings)
	}
}

func TestDecodeRejectsCorruptDigest(t *testing.T) {
	m := sampleModule()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[len(data)-1] ^= 0xFF

	if _, err := Decode(data); err == nil {
		t.Fatal("Decode accepted a file with a corrupted digest")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	m := sampleModule()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[0] = 'X'
	// Re-stamp a valid digest over the tampered header so the magic
	// check, not the digest check, is what fails.
	fixed, err := reDigest(data)
	if err != nil {
		t.Fatalf("reDigest: %v", err)
	}
	if _, err := Decode(fixed); err == nil {
		t.Fatal("Decode accepted a file with a bad magic number")
	}
}

func TestMaterializeRebuildsRegistry(t *testing.T) {
	m := sampleModule()
	p, err := Materialize(m)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	id, ok := p.Registry.Lookup(m.Types[0].Name)
	if !ok {
		t.Fatalf("registered type %q not found after materialize", m.Types[0].Name)
	}
	if id < types.UserTypesStart {
		t.Fatalf("materialized type id %d collides with the builtin prefix", id)
	}
	if _, ok := p.Programs["MAIN"]; !ok {
		t.Fatal("MAIN program missing after materialize")
	}
}

// TestFixtureArchive exercises the same round trip starting from a
// txtar-packaged fixture, the way larger format test suites in this
// codebase stage multiple related inputs in one file.
func TestFixtureArchive(t *testing.T) {
	ar := txtar.Parse([]byte(`
-- note.txt --
single-task counter program fixture
`))
	if len(ar.Files) != 1 || ar.Files[0].Name != "note.txt" {
		t.Fatalf("unexpected txtar contents: %+v", ar.Files)
	}

	m := sampleModule()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(data); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func reDigest(data []byte) ([]byte, error) {
	body := data[:len(data)-digestSize]
	sum := blake2b.Sum256(body)
	out := make([]byte, len(body)+digestSize)
	copy(out, body)
	copy(out[len(body):], sum[:])
	return out, nil
}
