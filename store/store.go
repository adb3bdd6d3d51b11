/*
Package store declares the capability set the schema migration engine
requires from the external key-value store, and provides an in-memory
implementation of it for tests and for hosts that have not wired up a real
KVS yet.

The engine never implements its own persistent store; it only depends on
this interface, so any backing implementation with optimistic updates can
be plugged in.
*/
package store

import "context"

// Entity is a persistent (id, bytes) pair plus an opaque revision used for
// optimistic-concurrency updates. The engine treats Bytes as an immutable
// blob except where a migration step explicitly decodes it.
type Entity struct {
	ID       string
	Bytes    []byte
	Revision uint64
}

// Store is the capability set the orchestrator and backup manager need from
// the external KVS. No ordering or atomicity across keys is assumed; every
// method is a suspension point and may fail with errors.ErrStoreUnavailable.
type Store interface {
	// Enumerate returns every id currently present in the store.
	Enumerate(ctx context.Context) ([]string, error)

	// Load returns the entity for id, or nil if it does not exist.
	Load(ctx context.Context, id string) (*Entity, error)

	// Create inserts a new entity. Fails with errors.ErrAlreadyExists if
	// id is already present.
	Create(ctx context.Context, id string, bytes []byte) (Entity, error)

	// Update replaces the bytes of an existing entity, using the
	// entity's Revision for optimistic concurrency. Fails with
	// errors.ErrNotFound if id is absent, or errors.ErrStaleRevision if
	// the entity was modified since it was loaded.
	Update(ctx context.Context, e Entity) (Entity, error)

	// Delete removes id if present and reports whether it existed.
	Delete(ctx context.Context, id string) (existed bool, err error)
}

// Manager is an optional capability advertised by concrete adapters that
// need an explicit setup step (e.g. creating a root znode/bucket) before
// first use. The orchestrator calls Initialize only if the configured Store
// also implements Manager; otherwise initialization is a no-op.
type Manager interface {
	Initialize(ctx context.Context) error
}
