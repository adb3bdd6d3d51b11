package migration

import (
	"context"
	"sort"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/mesosphere/schemamigrate/errors"
	"github.com/mesosphere/schemamigrate/store"
	"github.com/mesosphere/schemamigrate/version"
)

// MinSupportedStorageVersion is the oldest stored schema version this
// binary knows how to migrate from. Migrating from a non-empty version
// below this fails fast with errors.ErrUnsupportedVersion.
var MinSupportedStorageVersion = version.Version{Major: 0, Minor: 3, Patch: 0}

// Deps bundles the external collaborators a Step needs. It is assembled
// once by the orchestrator and passed down to every step in a run.
type Deps struct {
	Store  store.Store
	Apps   AppRepository
	Groups GroupRepository
	Tasks  TaskRepository
	Logger log.Logger
}

// StepFunc performs a single version-targeted transformation of the
// persisted state. It must be idempotent with respect to re-running the
// whole migration from the same `from` version, since a crash can restart
// the orchestrator from GUARD/BACKUP with steps re-applied against a
// restored snapshot.
type StepFunc func(ctx context.Context, deps Deps) error

// Entry pairs a target schema version with the step that brings storage up
// to it.
type Entry struct {
	Target version.Version
	Name   string
	Run    StepFunc
}

// Registry is a statically-declared, ordered, append-only collection of
// migration steps. Entries must be sorted by strictly ascending Target with
// no duplicates; Validate checks this invariant and is exercised by this
// package's own tests rather than at runtime, since the registry compiled
// into a binary can never change shape between process start and exit.
type Registry []Entry

// Validate checks the registry ordering contract: strictly ascending
// Target, no duplicates. Adding a new migration is append-only; existing
// entries must never be reordered or modified.
func (r Registry) Validate() error {
	for i := 1; i < len(r); i++ {
		if !version.Less(r[i-1].Target, r[i].Target) {
			return errors.ErrInvalidConfig.Newf(
				"registry entries %d (%s) and %d (%s) are not in strict ascending order",
				i-1, version.Format(r[i-1].Target), i, version.Format(r[i].Target))
		}
	}
	return nil
}

// ApplicableSteps returns the entries whose Target is strictly greater than
// from, sorted ascending by Target. If from is non-empty and below
// MinSupportedStorageVersion, it fails with errors.ErrUnsupportedVersion
// before considering any entry. An empty from (first-ever start) is exempt
// from the minimum-version check and considers the full step list.
func (r Registry) ApplicableSteps(from version.Version) ([]Entry, error) {
	if err := checkSupported(from); err != nil {
		return nil, err
	}

	applicable := make([]Entry, 0, len(r))
	for _, e := range r {
		if version.Less(from, e.Target) {
			applicable = append(applicable, e)
		}
	}
	sort.SliceStable(applicable, func(i, j int) bool {
		return version.Less(applicable[i].Target, applicable[j].Target)
	})
	return applicable, nil
}

// checkSupported rejects a non-empty from below MinSupportedStorageVersion.
// The empty sentinel (first-ever start) is exempt.
func checkSupported(from version.Version) error {
	if !version.IsEmpty(from) && version.Less(from, MinSupportedStorageVersion) {
		return errors.ErrUnsupportedVersion.Newf(
			"Migration from versions < %s is not supported. Your version: %s",
			version.Format(MinSupportedStorageVersion), version.Format(from))
	}
	return nil
}

// DefaultRegistry returns the production step list: the legacy refusal gate
// plus every data-rewrite step this binary ships, in release order. Adding
// a migration means appending a new Entry here; existing entries are never
// edited or reordered once released.
func DefaultRegistry() Registry {
	return Registry{
		{
			Target: version.Version{Major: 0, Minor: 7, Patch: 0},
			Name:   "RefuseLegacy",
			Run:    stepRefuseLegacy,
		},
		{
			Target: version.Version{Major: 0, Minor: 11, Patch: 0},
			Name:   "AddVersionInfo",
			Run:    stepAddVersionInfo,
		},
		{
			Target: version.Version{Major: 0, Minor: 13, Patch: 0},
			Name:   "RekeyTasksAndRenameFrameworkId",
			Run:    stepRekeyTasksAndRenameFrameworkID,
		},
	}
}
