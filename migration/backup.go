package migration

import (
	"context"
	"strings"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/mesosphere/schemamigrate/errors"
	"github.com/mesosphere/schemamigrate/store"
	"github.com/mesosphere/schemamigrate/version"
)

// backupManager decides, at the start of every run and before any step
// executes, whether to snapshot the live state or to restore it from a
// snapshot a crashed earlier run left behind.
type backupManager struct {
	store  store.Store
	cfg    Config
	logger log.Logger
}

// Run inspects the store and either snapshots or restores at version at.
//
// The probe is a single key: the backup counterpart of the first enumerated
// state id. If it exists, an earlier run crashed after starting its backup
// and the snapshot is authoritative; restore. If it is absent, this is a
// clean start; snapshot. Probing one key is sufficient because every state
// id shares the state prefix and backups are written before any step runs,
// so a snapshot is either absent or was started from the same id set.
func (b backupManager) Run(ctx context.Context, at version.Version) error {
	ids, err := b.store.Enumerate(ctx)
	if err != nil {
		return errors.Wrap(err, "enumerate store")
	}
	var stateIDs, backupIDs []string
	backupPath := b.cfg.BackupPath(at)
	for _, id := range ids {
		switch {
		case strings.HasPrefix(id, b.cfg.StatePrefix):
			stateIDs = append(stateIDs, id)
		case strings.HasPrefix(id, backupPath):
			backupIDs = append(backupIDs, id)
		}
	}
	if len(stateIDs) == 0 && len(backupIDs) == 0 {
		return nil
	}

	restore := len(stateIDs) == 0
	if !restore {
		probe := b.cfg.stateToBackup(stateIDs[0], at)
		e, err := b.store.Load(ctx, probe)
		if err != nil {
			return errors.Wrapf(err, "probe backup key %q", probe)
		}
		restore = e != nil
	}

	if restore {
		b.logger.Info("found backup of earlier aborted migration, restoring state", "backup", backupPath)
		return b.restore(ctx, stateIDs, backupIDs, at)
	}
	b.logger.Info("taking state snapshot before migration", "backup", backupPath)
	return b.snapshot(ctx, stateIDs, at)
}

// snapshot copies every live state entry under the version-qualified backup
// prefix. An entry that vanishes between enumeration and load is backed up
// as an empty record so the backup key set stays equal to the enumerated
// state key set.
func (b backupManager) snapshot(ctx context.Context, stateIDs []string, at version.Version) error {
	for _, id := range stateIDs {
		e, err := b.store.Load(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "load state key %q", id)
		}
		var bytes []byte
		if e == nil {
			b.logger.Info("state key vanished during backup, storing empty backup entry", "key", id)
		} else {
			bytes = e.Bytes
		}
		if err := b.createOrReplace(ctx, b.cfg.stateToBackup(id, at), bytes); err != nil {
			return errors.Wrapf(err, "backup state key %q", id)
		}
	}
	return nil
}

// restore discards all live state and repopulates it from the snapshot.
// Every deletion completes before the first recreate starts.
func (b backupManager) restore(ctx context.Context, stateIDs, backupIDs []string, at version.Version) error {
	for _, id := range stateIDs {
		if _, err := b.store.Delete(ctx, id); err != nil {
			return errors.Wrapf(err, "delete state key %q", id)
		}
	}
	for _, id := range backupIDs {
		e, err := b.store.Load(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "load backup key %q", id)
		}
		var bytes []byte
		if e == nil {
			b.logger.Info("backup key vanished during restore, storing empty state entry", "key", id)
		} else {
			bytes = e.Bytes
		}
		if _, err := b.store.Create(ctx, b.cfg.backupToState(id, at), bytes); err != nil {
			return errors.Wrapf(err, "restore state key from %q", id)
		}
	}
	return nil
}

// createOrReplace writes bytes under id whether or not the key exists. A
// colliding backup key can only be the remnant of a run that crashed before
// its snapshot probe key was written; the fresh copy supersedes it.
func (b backupManager) createOrReplace(ctx context.Context, id string, bytes []byte) error {
	if _, err := b.store.Create(ctx, id, bytes); err == nil || !errors.ErrAlreadyExists.Is(err) {
		return err
	}
	e, err := b.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		_, err := b.store.Create(ctx, id, bytes)
		return err
	}
	e.Bytes = bytes
	_, err = b.store.Update(ctx, *e)
	return err
}
