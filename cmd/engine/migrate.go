package main

import (
	"github.com/spf13/cobra"

	"github.com/neurobridge-backend/orcaengine/internal/engine/store/gormstore"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the executions/stages/tasks schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			return gormstore.Migrate(db)
		},
	}
}
