package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/foodsalvage/report-module/internal/service"
)

func newSweepCmd() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Однократно удалить закрытые отчёты старше срока хранения",
		Long: `Удаляет закрытые отчёты, updated_at которых старше срока хранения,
вместе с их фотографиями. По умолчанию используется RM_RETENTION.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if retention <= 0 {
				retention = cfg.Retention
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			actor, err := a.systemActor(ctx)
			if err != nil {
				return fmt.Errorf("ошибка синхронизации системного актора: %w", err)
			}

			sweeper := service.NewSweeper(a.reports, retention, cfg.SweepInterval, 0, actor, logger)
			result, err := sweeper.Sweep(ctx, retention)
			if err != nil {
				logger.Error("Ошибка очистки", slog.String("error", err.Error()))
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "удалено: %d из %d (ошибок: %d)\n",
				result.Deleted, result.Candidates, result.Failed)
			if result.Failed > 0 {
				return fmt.Errorf("не удалось удалить %d отчётов", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 0, "срок хранения закрытых отчётов (по умолчанию RM_RETENTION)")
	return cmd
}
