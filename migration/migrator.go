package migration

import (
	"context"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/mesosphere/schemamigrate/errors"
	"github.com/mesosphere/schemamigrate/store"
	"github.com/mesosphere/schemamigrate/version"
)

// Migrator is the schema migration orchestrator. It runs once per process
// start, before the hosting scheduler accepts work, and brings the stored
// schema forward to the version baked into the binary.
//
// A Migrator is not safe for concurrent use; the engine assumes exclusive
// access to the store for the duration of a run (the cluster-management
// layer enforces this via leader election).
type Migrator struct {
	store    store.Store
	deps     Deps
	registry Registry
	cfg      Config
	current  version.Version
	logger   log.Logger
}

// New returns a Migrator targeting current, using the default registry and
// a nop logger. It fails if cfg does not validate.
func New(s store.Store, apps AppRepository, groups GroupRepository, tasks TaskRepository, cfg Config, current version.Version) (*Migrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.NewNopLogger()
	return &Migrator{
		store: s,
		deps: Deps{
			Store:  s,
			Apps:   apps,
			Groups: groups,
			Tasks:  tasks,
			Logger: logger,
		},
		registry: DefaultRegistry(),
		cfg:      cfg,
		current:  current,
		logger:   logger,
	}, nil
}

// WithLogger replaces the nop logger and returns the receiver for chaining.
func (m *Migrator) WithLogger(logger log.Logger) *Migrator {
	m.logger = logger
	m.deps.Logger = logger
	return m
}

// WithRegistry replaces the default step list. Exposed for tests that need
// a registry with controlled entries.
func (m *Migrator) WithRegistry(r Registry) *Migrator {
	m.registry = r
	return m
}

// Migrate runs the full migration sequence: initialize the store adapter,
// take the in-progress guard, snapshot or restore the live state, apply
// every applicable step in ascending target order, commit the new version
// marker and release the guard. It returns the committed version.
//
// On any failure after the guard is taken, the guard key is left in place,
// so the next run fails with ErrMigrationAlreadyInProgress until an
// operator removes the key; the run after that restores from the snapshot
// before retrying.
func (m *Migrator) Migrate(ctx context.Context) (version.Version, error) {
	if mgr, ok := m.store.(store.Manager); ok {
		if err := mgr.Initialize(ctx); err != nil {
			return version.Empty, errors.Wrap(err, "initialize store")
		}
	}

	from, err := m.CurrentStorageVersion(ctx)
	if err != nil {
		return version.Empty, err
	}
	if err := checkSupported(from); err != nil {
		return version.Empty, err
	}

	guard, err := m.store.Load(ctx, InProgressKey)
	if err != nil {
		return version.Empty, errors.Wrap(err, "load in-progress guard")
	}
	if guard != nil {
		return version.Empty, errors.ErrMigrationAlreadyInProgress.Newf(
			"Migration is already in progress or was aborted. Remove the %q key from the store to run a migration again.",
			InProgressKey)
	}
	if _, err := m.store.Create(ctx, InProgressKey, nil); err != nil {
		return version.Empty, errors.Wrap(err, "create in-progress guard")
	}

	// Everything below leaves the guard behind on failure.
	m.logger.Info("starting migration", "from", from, "to", m.current)

	backup := backupManager{store: m.store, cfg: m.cfg, logger: m.logger}
	if err := backup.Run(ctx, from); err != nil {
		return version.Empty, err
	}

	applied, err := m.ApplyMigrationSteps(ctx, from)
	if err != nil {
		return version.Empty, err
	}
	for _, v := range applied {
		m.logger.Info("applied migration step", "target", v)
	}

	if err := m.storeVersion(ctx, m.current); err != nil {
		return version.Empty, err
	}

	existed, err := m.store.Delete(ctx, InProgressKey)
	if err != nil {
		return version.Empty, errors.Wrap(err, "release in-progress guard")
	}
	if !existed {
		m.logger.Error("in-progress guard was already gone at release", "key", InProgressKey)
	}

	m.logger.Info("migration complete", "version", m.current)
	return m.current, nil
}

// CurrentStorageVersion returns the persisted schema version, or the
// binary's current version if none is stored yet. Read-only; safe to call
// before Migrate.
func (m *Migrator) CurrentStorageVersion(ctx context.Context) (version.Version, error) {
	stored, err := m.storedVersion(ctx)
	if err != nil {
		return version.Empty, err
	}
	if version.IsEmpty(stored) {
		return m.current, nil
	}
	return stored, nil
}

// ApplyMigrationSteps executes every registered step with a target version
// above from, strictly in ascending order, and returns the ordered list of
// target versions applied. Every effect of step n is committed to the store
// before step n+1 starts. Exposed for testing; Migrate drives it with the
// stored version.
func (m *Migrator) ApplyMigrationSteps(ctx context.Context, from version.Version) ([]version.Version, error) {
	entries, err := m.registry.ApplicableSteps(from)
	if err != nil {
		return nil, err
	}
	applied := make([]version.Version, 0, len(entries))
	for _, e := range entries {
		m.logger.Info("applying migration step", "target", e.Target, "name", e.Name)
		if err := e.Run(ctx, m.deps); err != nil {
			return nil, wrapStepFailure(e.Target, err)
		}
		applied = append(applied, e.Target)
	}
	return applied, nil
}

// wrapStepFailure turns a step error into what surfaces from the
// orchestrator: typed failures keep their root kind with the failing
// target attached as context, anything untyped becomes ErrMigrationFailed.
func wrapStepFailure(target version.Version, err error) error {
	if _, ok := errors.RootCause(err).(*errors.Error); ok {
		return errors.Wrapf(err, "migration to %s failed", target)
	}
	return errors.ErrMigrationFailed.Newf("migration to %s failed: %s", target, err)
}

// storedVersion reads and parses the persisted version marker, returning
// the empty sentinel if none exists.
func (m *Migrator) storedVersion(ctx context.Context) (version.Version, error) {
	e, err := m.store.Load(ctx, VersionKey)
	if err != nil {
		return version.Empty, errors.Wrap(err, "load version key")
	}
	if e == nil {
		return version.Empty, nil
	}
	return version.Parse(e.Bytes)
}

// storeVersion commits v under the version key, creating it on the
// first-ever migration and updating it afterwards.
func (m *Migrator) storeVersion(ctx context.Context, v version.Version) error {
	e, err := m.store.Load(ctx, VersionKey)
	if err != nil {
		return errors.Wrap(err, "load version key")
	}
	if e == nil {
		_, err := m.store.Create(ctx, VersionKey, version.Serialize(v))
		return errors.Wrap(err, "create version key")
	}
	e.Bytes = version.Serialize(v)
	_, err = m.store.Update(ctx, *e)
	return errors.Wrap(err, "update version key")
}
