// Утилита schemactl — обслуживание реестра схем без HTTP-сервера:
// миграции, загрузка документов схем, просмотр реестра и справочника типов БД.
// Конфигурация та же, что у Schema Module (переменные окружения SM_*).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/schema-module/internal/app"
	"github.com/bigkaa/goartstore/schema-module/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "schemactl",
		Short:         "Обслуживание реестра схем метаданных",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newDefaultCmd())
	rootCmd.AddCommand(newDBTypeCmd())

	return rootCmd
}

// withComponents загружает конфигурацию, собирает компоненты и вызывает fn.
// Логи пишутся в stderr, чтобы не смешиваться с выводом команды.
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, c *app.Components) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	return fn(ctx, components)
}
