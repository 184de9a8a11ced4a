package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"credvault/internal/config"
	"credvault/internal/store"
	"credvault/internal/store/postgres"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Database.Driver == "postgres" {
				if inspect || dryRun {
					return fmt.Errorf("--inspect and --dry-run are only supported for sqlite")
				}
				return migratePostgres(cmd, cfg, *jsonOutput)
			}

			if inspect || dryRun {
				plan, err := sqliteMigrationPlan(cfg.Database.Path)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}
				if *jsonOutput {
					return writeJSON(plan)
				}
				return writeMigrationPlan(plan)
			}

			// Opening the store applies pending migrations.
			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			_ = st.Close()

			if *jsonOutput {
				plan, err := sqliteMigrationPlan(cfg.Database.Path)
				if err != nil {
					return err
				}
				return writeJSON(plan)
			}
			return writePlain("Migrations applied successfully.\n")
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func sqliteMigrationPlan(path string) (*store.MigrationStatus, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	db, err := store.OpenRaw(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return store.MigrationPlan(db)
}

func writeMigrationPlan(plan *store.MigrationStatus) error {
	_ = writePlain("Current version: %d\n", plan.CurrentVersion)
	_ = writePlain("Available version: %d\n", plan.AvailableVersion)
	if len(plan.Pending) == 0 {
		return writePlain("No pending migrations.\n")
	}
	_ = writePlain("Pending migrations: %d\n", len(plan.Pending))
	for _, m := range plan.Pending {
		if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}

func migratePostgres(cmd *cobra.Command, cfg *config.Config, jsonOutput bool) error {
	pg, err := postgres.Open(cmd.Context(), cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer pg.Close()

	info, err := pg.StoreInfo(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(map[string]any{"driver": info.Driver, "schema_version": info.SchemaVersion})
	}
	return writePlain("Migrations applied successfully (schema version %d).\n", info.SchemaVersion)
}
