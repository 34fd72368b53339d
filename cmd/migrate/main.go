package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"notenest.app/internal/config"
	"notenest.app/internal/migrate"
	"notenest.app/internal/store/pg"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	var table string
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the NoteNest database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("dsn", "", "PostgreSQL DSN (default $NOTENEST_PG_DSN)")
	root.PersistentFlags().StringVar(&table, "table", "", "Migrations bookkeeping table")
	_ = v.BindPFlag(config.KeyPGDSN, root.PersistentFlags().Lookup("dsn"))

	withManager := func(fn func(ctx context.Context, m *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			dsn := v.GetString(config.KeyPGDSN)
			if dsn == "" {
				return fmt.Errorf("missing DSN: provide via --dsn or %s_PG_DSN", config.EnvPrefix)
			}
			store, err := pg.Open(dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return fn(ctx, migrate.NewManager(store.DB(), migrate.WithMigrationsTable(table)))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				return m.Up(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				return m.Down(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				ver, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Println(ver)
				return nil
			}),
		},
	)
	return root
}
