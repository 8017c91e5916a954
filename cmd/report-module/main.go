// Точка входа Report Module — приём отчётов о продуктах, доступных для
// спасения, и их жизненный цикл (submitted → in_review → closed).
//
// Команды:
//   - serve   — HTTP API, фоновая очистка по сроку хранения, topologymetrics (по умолчанию)
//   - migrate — применение миграций БД и выход
//   - sweep   — однократная очистка закрытых отчётов
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/foodsalvage/report-module/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCmd := newServeCmd()

	root := &cobra.Command{
		Use:     "report-module",
		Short:   "Report Module — приём и рассмотрение отчётов о спасении продуктов",
		Version: config.Version,
		// Без подкоманды запускается serve
		RunE:          serveCmd.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd, newMigrateCmd(), newSweepCmd())
	return root
}
