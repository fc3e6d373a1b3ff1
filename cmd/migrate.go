package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/happyfinder/internal/config"
	"github.com/example/happyfinder/internal/db"
	"github.com/example/happyfinder/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			return migrate.Up(ctx, d)
		},
	}
}
