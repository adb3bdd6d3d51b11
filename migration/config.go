package migration

import (
	"fmt"
	"strings"

	"github.com/mesosphere/schemamigrate/errors"
	"github.com/mesosphere/schemamigrate/version"
)

// Well-known keys in the store. The version key holds the serialized schema
// version; the in-progress key is an empty sentinel whose existence marks a
// migration that started but has not successfully completed.
const (
	VersionKey    = "internal:storage:version"
	InProgressKey = "internal:storage:migrationInProgress"
)

// Config carries the two key prefixes the engine needs: where live state
// lives and where version-qualified snapshots of it go.
type Config struct {
	// StatePrefix is the id prefix under which live state entries are
	// stored, e.g. "/marathon/state".
	StatePrefix string

	// BackupPrefix is the id prefix under which snapshot entries are
	// stored, suffixed per backup with "_<major>.<minor>.<patch>", e.g.
	// "/marathon/backup". Must be disjoint from StatePrefix.
	BackupPrefix string
}

// Validate checks that both prefixes are set and that neither is a prefix
// of the other. Overlapping prefixes would make backup keys enumerate as
// state keys (or vice versa) and silently corrupt the snapshot decision.
func (c Config) Validate() error {
	if c.StatePrefix == "" {
		return errors.ErrInvalidConfig.New("state prefix must not be empty")
	}
	if c.BackupPrefix == "" {
		return errors.ErrInvalidConfig.New("backup prefix must not be empty")
	}
	if strings.HasPrefix(c.StatePrefix, c.BackupPrefix) || strings.HasPrefix(c.BackupPrefix, c.StatePrefix) {
		return errors.ErrInvalidConfig.Newf(
			"state prefix %q and backup prefix %q must be disjoint and neither may be a prefix of the other",
			c.StatePrefix, c.BackupPrefix)
	}
	return nil
}

// BackupPath returns the id prefix of the snapshot taken at schema version
// v. Embedding the version lets historical backups coexist and keys each
// one to the exact schema it represents.
func (c Config) BackupPath(v version.Version) string {
	return fmt.Sprintf("%s_%d.%d.%d", c.BackupPrefix, v.Major, v.Minor, v.Patch)
}

// stateToBackup rewrites a live state id to its snapshot id at version v.
func (c Config) stateToBackup(id string, v version.Version) string {
	return c.BackupPath(v) + strings.TrimPrefix(id, c.StatePrefix)
}

// backupToState rewrites a snapshot id at version v back to its live id.
func (c Config) backupToState(id string, v version.Version) string {
	return c.StatePrefix + strings.TrimPrefix(id, c.BackupPath(v))
}
