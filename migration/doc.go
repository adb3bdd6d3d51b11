/*
Package migration implements the schema migration engine that brings the
on-disk layout of the persistent state store forward to the version baked
into the running binary.

The engine runs exactly once per process start, before the hosting scheduler
accepts any work. A run is a linear sequence of awaited store operations:
initialize the adapter, acquire the in-progress guard key, snapshot (or
restore) the live state, apply every registered step whose target version is
above the stored one in strictly ascending order, persist the new version
marker, and release the guard. On any failure after the guard is taken the
guard key is intentionally left behind: the next run finds it and fails with
ErrMigrationAlreadyInProgress until an operator removes the key, and the run
after that restores the live state from the snapshot before trying again.

Migrator is the entry point. Registry holds the compiled-in, append-only
step list. The repositories in this package (AppRepository, GroupRepository,
TaskRepository) are the collaborator interfaces individual steps consume;
in-memory implementations of each are provided for tests and for hosts that
have not wired real ones yet.
*/
package migration
