package retain

import (
	"path/filepath"
	"testing"

	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
)

func TestBuildIsSortedAndSkipsMissing(t *testing.T) {
	st := storage.New()
	st.SetRetain("zeta", value.Int(value.KindDInt, 1))
	st.SetRetain("alpha", value.Int(value.KindDInt, 2))

	snap := Build(st, []string{"zeta", "alpha", "missing"})
	if len(snap.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(snap.Entries))
	}
	if snap.Entries[0].Name != "alpha" || snap.Entries[1].Name != "zeta" {
		t.Fatalf("Entries not sorted: %+v", snap.Entries)
	}
}

func TestApplySkipsUndeclared(t *testing.T) {
	st := storage.New()
	snap := Snapshot{Entries: []Entry{
		{Name: "kept", Value: value.Bool(true)},
		{Name: "dropped", Value: value.Bool(true)},
	}}
	declared := map[string]bool{"kept": true}

	applied, skipped := Apply(st, snap, declared)
	if applied != 1 || skipped != 1 {
		t.Fatalf("applied=%d skipped=%d, want 1,1", applied, skipped)
	}
	v, ok := st.GetRetain("kept")
	if !ok || !v.Bool {
		t.Fatalf("kept global = %+v, %v", v, ok)
	}
	if _, ok := st.GetRetain("dropped"); ok {
		t.Fatal("dropped global should not have been written")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	snap := Snapshot{Entries: []Entry{{Name: "g1", Value: value.Int(value.KindInt, 7)}}}
	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Value.Int != 7 {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	snap := Snapshot{Entries: []Entry{{Name: "g1", Value: value.Bool(true)}}}
	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[0] ^= 0xFF
	if _, err := Decode(data); err == nil {
		t.Fatal("Decode accepted corrupted data")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retain.bin")
	store := NewStore(path)

	st := storage.New()
	st.SetRetain("g1", value.Int(value.KindDInt, 99))

	if err := store.Save(st, []string{"g1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].Value.Int != 99 {
		t.Fatalf("loaded snapshot = %+v", snap)
	}
}

func TestStoreLoadMissingFileIsNotError(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	snap, err := store.Load()
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if len(snap.Entries) != 0 {
		t.Fatalf("snap = %+v, want empty", snap)
	}
}
