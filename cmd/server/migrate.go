package main

import (
	"fmt"
	"os"

	"restaurant_orders/internal/config"
	"restaurant_orders/internal/store"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables, optionally loading postcodes and selection groups",
		Long: `Run the schema migration against DB_DRIVER / DB_DSN.

Examples:
  restaurant-orders migrate
  restaurant-orders migrate --seed seed.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger()

			db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			if err := store.Migrate(db); err != nil {
				return err
			}
			log.Info("migrated", "driver", cfg.DBDriver)

			if seedPath == "" {
				return nil
			}
			f, err := os.Open(seedPath)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			seed, err := store.LoadSeed(f)
			if err != nil {
				return err
			}
			if err := store.ApplySeed(db, seed); err != nil {
				return err
			}
			log.Info("seed applied",
				"file", seedPath,
				"postcodes", len(seed.Postcodes),
				"selection_groups", len(seed.SelectionGroups),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file with postcodes and selection groups")
	return cmd
}
