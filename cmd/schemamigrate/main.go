package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/mesosphere/schemamigrate/migration"
	"github.com/mesosphere/schemamigrate/store"
	"github.com/mesosphere/schemamigrate/version"
)

// BuildVersion is set at link time and carries the schema version this
// binary migrates to as its leading "<major>.<minor>.<patch>" component.
var BuildVersion = "0.16.0-dev"

var (
	varStatePrefix  = flag.String("state-prefix", "/marathon/state", "id prefix of live state entries")
	varBackupPrefix = flag.String("backup-prefix", "/marathon/backup", "id prefix of backup snapshots")
)

func helpMessage() {
	fmt.Println("schemamigrate")
	fmt.Println("        Schema migration engine for the scheduler state store")
	fmt.Println("")
	fmt.Println("help    Print this message")
	fmt.Println("status  Print the stored schema version and the steps a migration would apply")
	fmt.Println("migrate Bring the stored schema forward to this binary's version")
	fmt.Println("version Print this binary's schema version")
	fmt.Println("")
	flag.PrintDefaults()
}

// newStore returns the KVS adapter the engine runs against. The in-memory
// store stands in until a concrete adapter for the deployment's
// coordination service is wired here; hosts embedding the engine as a
// library pass their own store.Store instead.
func newStore() *store.MemStore {
	return store.NewMemStore()
}

func newMigrator(s *store.MemStore, current version.Version) (*migration.Migrator, error) {
	cfg := migration.Config{
		StatePrefix:  *varStatePrefix,
		BackupPrefix: *varBackupPrefix,
	}
	return migration.New(
		s,
		migration.NewMemApps(),
		migration.NewMemGroups(),
		migration.NewStoreTasks(s),
		cfg,
		current,
	)
}

func statusCmd(ctx context.Context, m *migration.Migrator, current version.Version) error {
	from, err := m.CurrentStorageVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("stored version:  %s\n", from)
	fmt.Printf("current version: %s\n", current)

	entries, err := migration.DefaultRegistry().ApplicableSteps(from)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no migration steps to apply")
		return nil
	}
	fmt.Println("steps to apply:")
	for _, e := range entries {
		fmt.Printf("  %s %s\n", e.Target, e.Name)
	}
	return nil
}

func migrateCmd(ctx context.Context, m *migration.Migrator) error {
	committed, err := m.Migrate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("migrated to %s\n", committed)
	return nil
}

func main() {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).
		With("module", "schemamigrate")

	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Println("Missing command:")
		helpMessage()
		os.Exit(1)
	}

	current, err := version.CurrentFromBuild(BuildVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	run := func(fn func(context.Context, *migration.Migrator) error) {
		m, err := newMigrator(newStore(), current)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		m.WithLogger(logger)
		if err := fn(context.Background(), m); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	switch cmd := flag.Arg(0); cmd {
	case "help":
		helpMessage()
	case "status":
		run(func(ctx context.Context, m *migration.Migrator) error {
			return statusCmd(ctx, m, current)
		})
	case "migrate":
		run(migrateCmd)
	case "version":
		fmt.Println(current)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		helpMessage()
		os.Exit(1)
	}
}
