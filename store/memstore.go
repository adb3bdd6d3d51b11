package store

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/mesosphere/schemamigrate/errors"
)

// DefaultFreeListSize mirrors the btree package's own default free-list
// size. NewMemStore takes no free list; each MemStore's tree uses its own.
const DefaultFreeListSize = btree.DefaultFreeListSize

// item is the value stored in the backing btree, ordered by ID.
type item struct {
	Entity
}

func (i item) Less(than btree.Item) bool {
	return i.ID < than.(item).ID
}

// MemStore is an in-memory Store backed by a google/btree.BTree, keeping
// entities ordered by id for cheap prefix enumeration. There is no
// persistence; it exists for tests and for running this engine against a
// host that has not wired in a real KVS adapter.
//
// MemStore also implements Manager: Initialize is a no-op, matching the
// common case of a store that needs no explicit setup.
type MemStore struct {
	mu   sync.Mutex
	tree *btree.BTree
}

var (
	_ Store   = (*MemStore)(nil)
	_ Manager = (*MemStore)(nil)
)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{tree: btree.New(2)}
}

// Initialize satisfies Manager. MemStore requires no setup.
func (m *MemStore) Initialize(ctx context.Context) error {
	return nil
}

func (m *MemStore) Enumerate(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, m.tree.Len())
	m.tree.Ascend(func(i btree.Item) bool {
		ids = append(ids, i.(item).ID)
		return true
	})
	return ids, nil
}

func (m *MemStore) Load(ctx context.Context, id string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := m.tree.Get(item{Entity{ID: id}})
	if found == nil {
		return nil, nil
	}
	e := found.(item).Entity
	cp := e
	cp.Bytes = append([]byte(nil), e.Bytes...)
	return &cp, nil
}

func (m *MemStore) Create(ctx context.Context, id string, bytes []byte) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tree.Get(item{Entity{ID: id}}) != nil {
		return Entity{}, errors.ErrAlreadyExists.Newf("id %q", id)
	}
	e := Entity{ID: id, Bytes: append([]byte(nil), bytes...), Revision: 1}
	m.tree.ReplaceOrInsert(item{e})
	return e, nil
}

func (m *MemStore) Update(ctx context.Context, e Entity) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := m.tree.Get(item{Entity{ID: e.ID}})
	if found == nil {
		return Entity{}, errors.ErrNotFound.Newf("id %q", e.ID)
	}
	current := found.(item).Entity
	if current.Revision != e.Revision {
		return Entity{}, errors.ErrStaleRevision.Newf("id %q: have %d, want %d", e.ID, e.Revision, current.Revision)
	}
	updated := Entity{ID: e.ID, Bytes: append([]byte(nil), e.Bytes...), Revision: current.Revision + 1}
	m.tree.ReplaceOrInsert(item{updated})
	return updated, nil
}

func (m *MemStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.tree.Delete(item{Entity{ID: id}})
	return removed != nil, nil
}
