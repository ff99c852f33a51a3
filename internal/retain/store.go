package retain

import (
	"os"

	"github.com/ironrail/stcore/internal/storage"
)

// Store persists one runtime's retained slots to a single file path,
// which the periodic save task and a warm restart both go through.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Save snapshots names out of st and atomically writes them to
// s.Path.
func (s *Store) Save(st *storage.VariableStorage, names []string) error {
	snap := Build(st, names)
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return writeAtomic(s.Path, data)
}

// Load reads and validates the snapshot at s.Path. A missing file is
// not an error — it is the normal cold-start case — and returns an
// empty Snapshot.
func (s *Store) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Decode(data)
}
