// Package retain implements the RETAIN/PERSISTENT save-and-restore
// path: snapshotting the storage slots a program marks retainable,
// writing them to disk with an atomic write-then-rename plus an
// integrity digest, and applying a loaded snapshot back onto fresh
// storage on a warm restart.
package retain

import (
	"sort"

	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
)

// Entry is one retained slot's last-saved value.
type Entry struct {
	Name  string
	Value value.Value
}

// Snapshot is the full set of retained slots at one point in time.
type Snapshot struct {
	Entries []Entry
}

// Build reads names (the RETAIN/PERSISTENT globals a loaded program
// declares) out of st's retain store, in sorted order so two snapshots
// of the same storage byte-for-byte compare equal regardless of
// declaration order.
func Build(st *storage.VariableStorage, names []string) Snapshot {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	entries := make([]Entry, 0, len(sorted))
	for _, name := range sorted {
		v, ok := st.GetRetain(name)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Name: name, Value: v})
	}
	return Snapshot{Entries: entries}
}

// Apply writes every entry in snap back into st's retain store.
// Entries naming a slot the current program no longer declares are
// skipped: a compiled-out retain is not an error, just dead weight
// the next Save drops.
func Apply(st *storage.VariableStorage, snap Snapshot, declared map[string]bool) (applied, skipped int) {
	for _, e := range snap.Entries {
		if declared != nil && !declared[e.Name] {
			skipped++
			continue
		}
		st.SetRetain(e.Name, e.Value)
		applied++
	}
	return applied, skipped
}
