package migration

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mesosphere/schemamigrate/errors"
	"github.com/mesosphere/schemamigrate/store"
)

// In-memory repository implementations. They serve the engine's own tests
// and hosts that have not wired real repositories yet, the same role the
// in-memory MemStore plays for the KVS adapter.

// MemApps is an in-memory AppRepository.
type MemApps struct {
	mu   sync.Mutex
	apps map[string]map[string]AppDefinition
}

var _ AppRepository = (*MemApps)(nil)

// NewMemApps returns an empty MemApps.
func NewMemApps() *MemApps {
	return &MemApps{apps: make(map[string]map[string]AppDefinition)}
}

func (m *MemApps) IDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.apps))
	for id := range m.apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemApps) Versions(ctx context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := make([]string, 0, len(m.apps[id]))
	for v := range m.apps[id] {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

func (m *MemApps) Load(ctx context.Context, id, version string) (*AppDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id][version]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (m *MemApps) Store(ctx context.Context, app AppDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.apps[app.ID] == nil {
		m.apps[app.ID] = make(map[string]AppDefinition)
	}
	m.apps[app.ID][app.Version] = app
	return nil
}

func (m *MemApps) Expunge(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.apps[id]
	delete(m.apps, id)
	return existed, nil
}

// MemGroups is an in-memory GroupRepository holding a single root group.
type MemGroups struct {
	mu   sync.Mutex
	root *Group
}

var _ GroupRepository = (*MemGroups)(nil)

// NewMemGroups returns a MemGroups with no root group stored.
func NewMemGroups() *MemGroups {
	return &MemGroups{}
}

func (m *MemGroups) LoadRoot(ctx context.Context) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.root == nil {
		return nil, nil
	}
	cp := *m.root
	return &cp, nil
}

func (m *MemGroups) StoreRoot(ctx context.Context, g Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.root = &g
	return nil
}

// StoreTasks is a TaskRepository over a raw Store, the shape a real host
// wires up: task records live directly in the KVS key space and the rekey
// step must see legacy keys verbatim. Keys enumerates only ids that look
// like task keys, current or legacy shape, so the engine's internal keys
// and state entries under other prefixes stay invisible to the step.
type StoreTasks struct {
	store store.Store
}

var _ TaskRepository = (*StoreTasks)(nil)

// NewStoreTasks returns a TaskRepository backed by s.
func NewStoreTasks(s store.Store) *StoreTasks {
	return &StoreTasks{store: s}
}

func (t *StoreTasks) Keys(ctx context.Context) ([]string, error) {
	ids, err := t.store.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.HasPrefix(id, TaskKeyPrefix) || isLegacyTaskKey(id) {
			keys = append(keys, id)
		}
	}
	return keys, nil
}

func (t *StoreTasks) LoadBytes(ctx context.Context, key string) ([]byte, error) {
	e, err := t.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e.Bytes, nil
}

func (t *StoreTasks) Store(ctx context.Context, task Task) error {
	key := TaskKeyPrefix + task.ID
	e, err := t.store.Load(ctx, key)
	if err != nil {
		return err
	}
	if e == nil {
		_, err := t.store.Create(ctx, key, task.Payload)
		return err
	}
	e.Bytes = task.Payload
	if _, err := t.store.Update(ctx, *e); err != nil {
		return errors.Wrapf(err, "replace task %q", task.ID)
	}
	return nil
}

func (t *StoreTasks) Expunge(ctx context.Context, key string) (bool, error) {
	return t.store.Delete(ctx, key)
}
