package migration

import "context"

// AppDefinition is the slice of an application's configuration the engine
// needs to see: identity, the version identifier the configuration was
// created at, the scaling target, and the non-scaling fields that decide
// whether one configuration is an upgrade of another.
//
// Version identifiers are opaque strings whose lexicographic order is the
// creation order (the scheduler stamps them with sortable timestamps), so
// sorting the stored versions of an app yields its configuration history.
type AppDefinition struct {
	ID        string
	Version   string
	Instances int32
	Cmd       string
	Container string

	VersionInfo VersionInfo
}

// VersionInfo distinguishes, per stored configuration, when the app last
// changed in a way that matters (new config) from when it merely scaled or
// restarted.
type VersionInfo struct {
	LastConfigChangeAt string
	LastScalingAt      string
}

// forNewConfig stamps both markers with the version of a configuration
// that differs from its predecessor in more than scale.
func forNewConfig(v string) VersionInfo {
	return VersionInfo{LastConfigChangeAt: v, LastScalingAt: v}
}

// withScaleOrRestartChange advances only the scaling marker, keeping the
// last real configuration change where it was.
func (vi VersionInfo) withScaleOrRestartChange(v string) VersionInfo {
	vi.LastScalingAt = v
	return vi
}

// isUpgrade reports whether next changes prev in any way other than the
// number of instances. Scaling alone is not an upgrade.
func isUpgrade(prev, next AppDefinition) bool {
	return prev.Cmd != next.Cmd || prev.Container != next.Container
}

// AppRepository is the application store collaborator consumed by the
// version-info backfill step. Every method is a suspension point and may
// fail with errors.ErrStoreUnavailable.
type AppRepository interface {
	// IDs lists every application id known to the repository.
	IDs(ctx context.Context) ([]string, error)

	// Versions lists the stored version identifiers of one application,
	// in no particular order.
	Versions(ctx context.Context, id string) ([]string, error)

	// Load returns the definition stored for (id, version), or nil if
	// that version of the app does not exist.
	Load(ctx context.Context, id, version string) (*AppDefinition, error)

	// Store persists app under (app.ID, app.Version), replacing any
	// definition already stored there.
	Store(ctx context.Context, app AppDefinition) error

	// Expunge removes every stored version of id and reports whether
	// anything existed.
	Expunge(ctx context.Context, id string) (bool, error)
}
