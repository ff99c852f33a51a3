package scheduler

import (
	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
)

// StorageGlobals adapts a VariableStorage to GlobalReader for evaluating
// Single (event) task triggers.
type StorageGlobals struct {
	Storage *storage.VariableStorage
}

func (g StorageGlobals) GetGlobalBool(name string) bool {
	v, ok := g.Storage.GetGlobal(name)
	return ok && v.Kind == value.KindBool && v.Bool
}
