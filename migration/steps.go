package migration

import (
	"context"
	"sort"

	"github.com/mesosphere/schemamigrate/errors"
)

// Framework id keys touched by the 0.13 rename. The old spelling predates
// the colon-separated key namespace.
const (
	frameworkIDKey       = "framework:id"
	legacyFrameworkIDKey = "frameworkId"
)

// stepRefuseLegacy is the 0.7.0 entry. It never succeeds: its presence in
// the registry guarantees that an attempt to migrate from a stored version
// below 0.7.0 surfaces a clean error instead of silently skipping
// transformations those schemas would have needed. Stored versions at or
// above 0.7.0 do not select this entry.
func stepRefuseLegacy(ctx context.Context, deps Deps) error {
	return errors.ErrUnsupportedLegacy.New("migration from 0.7.x not supported anymore")
}

// stepAddVersionInfo is the 0.11.0 entry. It backfills the per-application
// version history: every stored configuration of every deployed app gets a
// VersionInfo distinguishing real configuration changes from mere scaling,
// derived by folding over the app's configurations in ascending version
// order. Apps known to the repository but absent from the root group are
// orphans and are expunged.
func stepAddVersionInfo(ctx context.Context, deps Deps) error {
	var root Group
	loaded, err := deps.Groups.LoadRoot(ctx)
	if err != nil {
		return errors.Wrap(err, "load root group")
	}
	if loaded != nil {
		root = *loaded
	}

	ids, err := deps.Apps.IDs(ctx)
	if err != nil {
		return errors.Wrap(err, "list app ids")
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	for _, app := range root.TransitiveApps() {
		known[app.ID] = struct{}{}
	}
	ordered := make([]string, 0, len(known))
	for id := range known {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	for _, id := range ordered {
		live := root.FindApp(id)
		if live == nil {
			if _, err := deps.Apps.Expunge(ctx, id); err != nil {
				return errors.Wrapf(err, "expunge orphaned app %q", id)
			}
			deps.Logger.Info("expunged app absent from root group", "app", id)
			continue
		}

		latest, err := backfillAppVersionInfo(ctx, deps, *live)
		if err != nil {
			return errors.Wrapf(err, "backfill version info for app %q", id)
		}
		if latest != nil {
			root.UpdateApp(*latest)
		}
	}

	if loaded != nil {
		if err := deps.Groups.StoreRoot(ctx, root); err != nil {
			return errors.Wrap(err, "store root group")
		}
	}
	return nil
}

// backfillAppVersionInfo folds over one app's configurations in ascending
// version order, stamping each with forNewConfig when it upgrades its
// predecessor (or has none) and withScaleOrRestartChange otherwise, and
// stores every produced record. It returns the latest definition, or nil
// if no configuration could be loaded at all.
func backfillAppVersionInfo(ctx context.Context, deps Deps, live AppDefinition) (*AppDefinition, error) {
	stored, err := deps.Apps.Versions(ctx, live.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list versions")
	}
	versions := append([]string(nil), stored...)
	found := false
	for _, v := range versions {
		if v == live.Version {
			found = true
			break
		}
	}
	if !found {
		versions = append(versions, live.Version)
	}
	sort.Strings(versions)

	var last *AppDefinition
	for _, v := range versions {
		var app AppDefinition
		if v == live.Version {
			app = live
		} else {
			loaded, err := deps.Apps.Load(ctx, live.ID, v)
			if err != nil {
				return nil, errors.Wrapf(err, "load version %q", v)
			}
			if loaded == nil {
				deps.Logger.Info("app version listed but not loadable, skipping", "app", live.ID, "version", v)
				continue
			}
			app = *loaded
		}

		if last == nil || isUpgrade(*last, app) {
			app.VersionInfo = forNewConfig(app.Version)
		} else {
			app.VersionInfo = last.VersionInfo.withScaleOrRestartChange(app.Version)
		}
		if err := deps.Apps.Store(ctx, app); err != nil {
			return nil, errors.Wrapf(err, "store version %q", v)
		}
		cp := app
		last = &cp
	}
	return last, nil
}

// stepRekeyTasksAndRenameFrameworkID is the 0.13.0 entry: rewrite every
// legacy-shaped task key to the "task:<taskId>" shape, then move the
// framework id to its colon-namespaced key.
func stepRekeyTasksAndRenameFrameworkID(ctx context.Context, deps Deps) error {
	if err := rekeyTasks(ctx, deps); err != nil {
		return err
	}
	return renameFrameworkID(ctx, deps)
}

// rekeyTasks processes keys strictly sequentially so two rewrites never
// race on the store. A record that fails to decode fails the whole step;
// a partially rekeyed store is safe to re-run because keys already in the
// new shape are not selected again.
func rekeyTasks(ctx context.Context, deps Deps) error {
	keys, err := deps.Tasks.Keys(ctx)
	if err != nil {
		return errors.Wrap(err, "enumerate task keys")
	}
	for _, key := range keys {
		if !isLegacyTaskKey(key) {
			continue
		}
		b, err := deps.Tasks.LoadBytes(ctx, key)
		if err != nil {
			return errors.Wrapf(err, "load legacy task %q", key)
		}
		if b == nil {
			deps.Logger.Info("legacy task key vanished before rekey", "key", key)
			continue
		}
		task, err := decodeLegacyTask(b)
		if err != nil {
			return errors.Wrapf(err, "decode legacy task %q", key)
		}
		if err := deps.Tasks.Store(ctx, task); err != nil {
			return errors.Wrapf(err, "store rekeyed task %q", task.ID)
		}
		if _, err := deps.Tasks.Expunge(ctx, key); err != nil {
			return errors.Wrapf(err, "expunge legacy task %q", key)
		}
	}
	return nil
}

// renameFrameworkID moves the framework id from its legacy key to the
// namespaced one. A present target key means a previous run already did
// the move; a missing source key means there is nothing to move.
func renameFrameworkID(ctx context.Context, deps Deps) error {
	e, err := deps.Store.Load(ctx, frameworkIDKey)
	if err != nil {
		return errors.Wrapf(err, "load %q", frameworkIDKey)
	}
	if e != nil {
		return nil
	}
	old, err := deps.Store.Load(ctx, legacyFrameworkIDKey)
	if err != nil {
		return errors.Wrapf(err, "load %q", legacyFrameworkIDKey)
	}
	if old == nil {
		return nil
	}
	if _, err := deps.Store.Create(ctx, frameworkIDKey, old.Bytes); err != nil {
		return errors.Wrapf(err, "create %q", frameworkIDKey)
	}
	if _, err := deps.Store.Delete(ctx, legacyFrameworkIDKey); err != nil {
		return errors.Wrapf(err, "delete %q", legacyFrameworkIDKey)
	}
	return nil
}
