package matter

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"github.com/espressif/esp-matter-sub221/pkg/commissioning"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/storage"
)

// Persistence of the node's own state.
const (
	StorageNamespace = "esp_matter"
	fabricsKey       = "fabrics"
	pbkdfKey         = "pbkdf"
)

// Valid fabric indexes are 1-254.
const (
	minFabricIndex datamodel.FabricIndex = 1
	maxFabricIndex datamodel.FabricIndex = 254
)

// fabricTable records which fabric indexes are commissioned. Credentials
// are owned by the stack; the node only needs the count to pick its
// advertising mode.
type fabricTable struct {
	store   storage.Store
	indexes []datamodel.FabricIndex
}

func loadFabricTable(store storage.Store) (*fabricTable, error) {
	t := &fabricTable{store: store}
	b, err := store.Get(StorageNamespace, fabricsKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return t, nil
	case err != nil:
		return nil, err
	}
	if err := cbor.Unmarshal(b, &t.indexes); err != nil {
		return nil, fmt.Errorf("matter: decode fabric table: %w", err)
	}
	slices.Sort(t.indexes)
	return t, nil
}

func (t *fabricTable) save() error {
	if len(t.indexes) == 0 {
		return t.store.Delete(StorageNamespace, fabricsKey)
	}
	b, err := cbor.Marshal(t.indexes)
	if err != nil {
		return err
	}
	return t.store.Set(StorageNamespace, fabricsKey, b)
}

func validFabricIndex(idx datamodel.FabricIndex) error {
	if idx < minFabricIndex || idx > maxFabricIndex {
		return fmt.Errorf("%w: %d", ErrInvalidFabricIndex, idx)
	}
	return nil
}

func (t *fabricTable) add(idx datamodel.FabricIndex) error {
	if err := validFabricIndex(idx); err != nil {
		return err
	}
	pos, found := slices.BinarySearch(t.indexes, idx)
	if found {
		return fmt.Errorf("%w: %d", ErrFabricExists, idx)
	}
	t.indexes = slices.Insert(t.indexes, pos, idx)
	return t.save()
}

func (t *fabricTable) remove(idx datamodel.FabricIndex) error {
	pos, found := slices.BinarySearch(t.indexes, idx)
	if !found {
		return fmt.Errorf("%w: %d", ErrFabricNotFound, idx)
	}
	t.indexes = slices.Delete(t.indexes, pos, pos+1)
	return t.save()
}

func (t *fabricTable) count() int { return len(t.indexes) }

func (t *fabricTable) list() []datamodel.FabricIndex { return slices.Clone(t.indexes) }

// pbkdfRecord keeps the verifier parameters stable across restarts, so a
// printed setup code keeps working until a factory reset.
type pbkdfRecord struct {
	Iterations uint32 `cbor:"1,keyasint"`
	Salt       []byte `cbor:"2,keyasint"`
}

func loadPBKDFParams(store storage.Store) (commissioning.PBKDFParams, error) {
	b, err := store.Get(StorageNamespace, pbkdfKey)
	if err == nil {
		var rec pbkdfRecord
		if err := cbor.Unmarshal(b, &rec); err != nil {
			return commissioning.PBKDFParams{}, fmt.Errorf("matter: decode pbkdf params: %w", err)
		}
		p := commissioning.PBKDFParams{Iterations: rec.Iterations, Salt: rec.Salt}
		return p, p.Validate()
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return commissioning.PBKDFParams{}, err
	}
	p, err := commissioning.NewPBKDFParams()
	if err != nil {
		return commissioning.PBKDFParams{}, err
	}
	b, err = cbor.Marshal(pbkdfRecord{Iterations: p.Iterations, Salt: p.Salt})
	if err != nil {
		return commissioning.PBKDFParams{}, err
	}
	if err := store.Set(StorageNamespace, pbkdfKey, b); err != nil {
		return commissioning.PBKDFParams{}, err
	}
	return p, nil
}
