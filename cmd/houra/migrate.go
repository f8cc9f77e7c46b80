package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/houra-app/houra/internal/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.Store.Backend != config.StorePostgres {
				return errors.New("migrate: HOURA_STORE must be postgres")
			}
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("migrate failed", "error", err)
				return err
			}
			store.Close(cmd.Context())
			logger.Info("migrations applied")
			return nil
		},
	}
}
