package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/foodsalvage/report-module/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции БД и выйти",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			logger.Info("Применение миграций БД...")
			if err := database.Migrate(cfg, logger); err != nil {
				logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
}
