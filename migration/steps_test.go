package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/mesosphere/schemamigrate/errors"
	"github.com/mesosphere/schemamigrate/store"
)

func testDeps(t *testing.T) (Deps, *store.MemStore, *MemApps, *MemGroups) {
	t.Helper()
	s := store.NewMemStore()
	apps := NewMemApps()
	groups := NewMemGroups()
	return Deps{
		Store:  s,
		Apps:   apps,
		Groups: groups,
		Tasks:  NewStoreTasks(s),
		Logger: log.NewNopLogger(),
	}, s, apps, groups
}

func TestStepRefuseLegacy(t *testing.T) {
	deps, _, _, _ := testDeps(t)
	err := stepRefuseLegacy(context.Background(), deps)
	require.Error(t, err)
	assert.True(t, errors.ErrUnsupportedLegacy.Is(err))
	assert.Contains(t, err.Error(), "migration from 0.7.x not supported anymore")
}

func TestStepAddVersionInfo(t *testing.T) {
	ctx := context.Background()
	deps, _, apps, groups := testDeps(t)

	// Two stored configurations plus a live one. v1 -> v2 only scales,
	// v2 -> v3 changes the command.
	require.NoError(t, apps.Store(ctx, AppDefinition{
		ID: "/sleepy", Version: "2014-03-01T00:00:00Z", Instances: 1, Cmd: "sleep 1",
	}))
	require.NoError(t, apps.Store(ctx, AppDefinition{
		ID: "/sleepy", Version: "2014-04-01T00:00:00Z", Instances: 5, Cmd: "sleep 1",
	}))
	live := AppDefinition{
		ID: "/sleepy", Version: "2014-05-01T00:00:00Z", Instances: 5, Cmd: "sleep 2",
	}
	// An app the repository knows but the root group does not.
	require.NoError(t, apps.Store(ctx, AppDefinition{
		ID: "/orphan", Version: "2014-01-01T00:00:00Z", Instances: 1, Cmd: "true",
	}))
	require.NoError(t, groups.StoreRoot(ctx, Group{
		ID:      "/",
		Version: "2014-05-01T00:00:00Z",
		Apps:    []AppDefinition{live},
	}))

	require.NoError(t, stepAddVersionInfo(ctx, deps))

	v1, err := apps.Load(ctx, "/sleepy", "2014-03-01T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, v1)
	assert.Equal(t, forNewConfig("2014-03-01T00:00:00Z"), v1.VersionInfo)

	v2, err := apps.Load(ctx, "/sleepy", "2014-04-01T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, v2)
	assert.Equal(t, VersionInfo{
		LastConfigChangeAt: "2014-03-01T00:00:00Z",
		LastScalingAt:      "2014-04-01T00:00:00Z",
	}, v2.VersionInfo)

	v3, err := apps.Load(ctx, "/sleepy", "2014-05-01T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, v3)
	assert.Equal(t, forNewConfig("2014-05-01T00:00:00Z"), v3.VersionInfo)

	ids, err := apps.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/sleepy"}, ids, "orphan must be expunged")

	root, err := groups.LoadRoot(ctx)
	require.NoError(t, err)
	require.NotNil(t, root)
	inGroup := root.FindApp("/sleepy")
	require.NotNil(t, inGroup)
	assert.Equal(t, forNewConfig("2014-05-01T00:00:00Z"), inGroup.VersionInfo)
}

func TestStepAddVersionInfoNoRootGroup(t *testing.T) {
	ctx := context.Background()
	deps, _, apps, groups := testDeps(t)

	require.NoError(t, apps.Store(ctx, AppDefinition{
		ID: "/gone", Version: "2014-01-01T00:00:00Z", Cmd: "true",
	}))

	require.NoError(t, stepAddVersionInfo(ctx, deps))

	ids, err := apps.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	root, err := groups.LoadRoot(ctx)
	require.NoError(t, err)
	assert.Nil(t, root, "no root group must be created")
}

func TestStepAddVersionInfoNestedGroups(t *testing.T) {
	ctx := context.Background()
	deps, _, apps, groups := testDeps(t)

	live := AppDefinition{
		ID: "/prod/api", Version: "2014-06-01T00:00:00Z", Instances: 2, Cmd: "serve",
	}
	require.NoError(t, groups.StoreRoot(ctx, Group{
		ID: "/",
		Groups: []Group{{
			ID:   "/prod",
			Apps: []AppDefinition{live},
		}},
	}))

	require.NoError(t, stepAddVersionInfo(ctx, deps))

	stored, err := apps.Load(ctx, "/prod/api", "2014-06-01T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, forNewConfig("2014-06-01T00:00:00Z"), stored.VersionInfo)

	root, err := groups.LoadRoot(ctx)
	require.NoError(t, err)
	nested := root.FindApp("/prod/api")
	require.NotNil(t, nested)
	assert.Equal(t, forNewConfig("2014-06-01T00:00:00Z"), nested.VersionInfo)
}

func TestStepRekeyTasks(t *testing.T) {
	ctx := context.Background()
	deps, s, _, _ := testDeps(t)

	legacy := encodeLegacyTask(Task{ID: "myapp.4277a6b1", Payload: []byte("first task")})
	_, err := s.Create(ctx, "task:myapp:myapp.4277a6b1", legacy)
	require.NoError(t, err)
	legacy2 := encodeLegacyTask(Task{ID: "other.9f3c", Payload: []byte("second task")})
	_, err = s.Create(ctx, "other:other.9f3c", legacy2)
	require.NoError(t, err)
	// Already in the current shape; must pass through untouched.
	_, err = s.Create(ctx, "task:done.aaaa", []byte("untouched"))
	require.NoError(t, err)

	require.NoError(t, stepRekeyTasksAndRenameFrameworkID(ctx, deps))

	rekeyed, err := s.Load(ctx, "task:myapp.4277a6b1")
	require.NoError(t, err)
	require.NotNil(t, rekeyed)
	assert.Equal(t, []byte("first task"), rekeyed.Bytes)

	rekeyed2, err := s.Load(ctx, "task:other.9f3c")
	require.NoError(t, err)
	require.NotNil(t, rekeyed2)
	assert.Equal(t, []byte("second task"), rekeyed2.Bytes)

	old, err := s.Load(ctx, "task:myapp:myapp.4277a6b1")
	require.NoError(t, err)
	assert.Nil(t, old)
	old2, err := s.Load(ctx, "other:other.9f3c")
	require.NoError(t, err)
	assert.Nil(t, old2)

	kept, err := s.Load(ctx, "task:done.aaaa")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, []byte("untouched"), kept.Bytes)
}

func TestStepRekeyTasksCorruptRecord(t *testing.T) {
	ctx := context.Background()
	deps, s, _, _ := testDeps(t)

	_, err := s.Create(ctx, "bad:app.uuid", []byte{0xde, 0xad})
	require.NoError(t, err)

	err = stepRekeyTasksAndRenameFrameworkID(ctx, deps)
	require.Error(t, err)
	assert.True(t, errors.ErrCorruptLegacyTask.Is(err))
	assert.Contains(t, err.Error(), "bad:app.uuid")
}

func TestRenameFrameworkID(t *testing.T) {
	ctx := context.Background()
	deps, s, _, _ := testDeps(t)

	_, err := s.Create(ctx, legacyFrameworkIDKey, []byte("framework-0042"))
	require.NoError(t, err)

	require.NoError(t, stepRekeyTasksAndRenameFrameworkID(ctx, deps))

	renamed, err := s.Load(ctx, frameworkIDKey)
	require.NoError(t, err)
	require.NotNil(t, renamed)
	assert.Equal(t, []byte("framework-0042"), renamed.Bytes)

	old, err := s.Load(ctx, legacyFrameworkIDKey)
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestRenameFrameworkIDAlreadyRenamed(t *testing.T) {
	ctx := context.Background()
	deps, s, _, _ := testDeps(t)

	_, err := s.Create(ctx, frameworkIDKey, []byte("already"))
	require.NoError(t, err)
	_, err = s.Create(ctx, legacyFrameworkIDKey, []byte("stale"))
	require.NoError(t, err)

	require.NoError(t, stepRekeyTasksAndRenameFrameworkID(ctx, deps))

	e, err := s.Load(ctx, frameworkIDKey)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, []byte("already"), e.Bytes)

	// The stale legacy key is left alone once the new key exists.
	stale, err := s.Load(ctx, legacyFrameworkIDKey)
	require.NoError(t, err)
	require.NotNil(t, stale)
}

func TestRenameFrameworkIDNothingToDo(t *testing.T) {
	ctx := context.Background()
	deps, s, _, _ := testDeps(t)

	require.NoError(t, stepRekeyTasksAndRenameFrameworkID(ctx, deps))

	e, err := s.Load(ctx, frameworkIDKey)
	require.NoError(t, err)
	assert.Nil(t, e)
}
