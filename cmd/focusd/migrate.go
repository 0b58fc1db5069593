package main

import (
	"github.com/spf13/cobra"

	"focusguard-backend/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Logging)

		gormDB, err := db.Init(&cfg.Database, logger)
		if err != nil {
			return err
		}
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
