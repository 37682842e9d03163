// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vidtube/vidtube/internal/store"
)

// migrator wraps the methods used from store.Migrator.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// newMigrator is swapped out in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command with its subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the accounts database schema",
		Long: `Apply, roll back and inspect PostgreSQL schema migrations.
The database is read from DATABASE_URL.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back the last --steps migrations, or all of them with --all.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return withMigrator(func(m migrator) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration (drops the accounts table)")
	cmd.AddCommand(down)

	var jsonOutput bool
	status := &cobra.Command{
		Use:     "status",
		Aliases: []string{"version"},
		Short:   "Show the applied schema version",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m migrator) error {
				st, err := m.Status()
				if err != nil {
					return oops.With("operation", "read migration status").Wrap(err)
				}
				out, err := formatMigrationStatus(st, jsonOutput)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			})
		},
	}
	status.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")
	cmd.AddCommand(status)

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long:  `Clear a dirty schema state by recording VERSION as the applied migration.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(func(m migrator) error {
				if err := m.Force(v); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "force version").Wrap(err)
				}
				cmd.Printf("Forced schema version to %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a migrator for DATABASE_URL and closes it after fn.
func withMigrator(fn func(m migrator) error) error {
	databaseURL, err := getDatabaseURL()
	if err != nil {
		return err
	}
	m, err := newMigrator(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: closing migrator: %v\n", closeErr)
		}
	}()
	return fn(m)
}

// getDatabaseURL returns DATABASE_URL or a CONFIG_INVALID error.
func getDatabaseURL() (string, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	return databaseURL, nil
}

// parseForceVersion reads a leading integer, as fmt.Sscanf does.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "version must be an integer")
	}
	return v, nil
}

func formatMigrationStatus(st store.Status, jsonOutput bool) (string, error) {
	if jsonOutput {
		b, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return "", oops.With("operation", "format status").Wrap(err)
		}
		return string(b), nil
	}

	var sb strings.Builder
	if st.Version == 0 {
		sb.WriteString("Schema version: none\n")
	} else {
		fmt.Fprintf(&sb, "Schema version: %d (%s)\n", st.Version, st.Name)
	}
	if st.Dirty {
		sb.WriteString("State: DIRTY (run 'vidtube migrate force VERSION' after fixing)\n")
	}
	if len(st.Pending) == 0 {
		sb.WriteString("Pending: none")
	} else {
		pending := make([]string, len(st.Pending))
		for i, v := range st.Pending {
			pending[i] = fmt.Sprint(v)
		}
		sb.WriteString("Pending: " + strings.Join(pending, ", "))
	}
	return sb.String(), nil
}
