package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/schema-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/schema-module/internal/app"
	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/service"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции хранилища метаданных",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Миграции (PostgreSQL) или DDL (SQLite) применяются при сборке компонентов
			return withComponents(cmd, func(_ context.Context, _ *app.Components) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Миграции применены")
				return nil
			})
		},
	}
}

func newLoadCmd() *cobra.Command {
	var (
		appName   string
		isDefault bool
		owner     string
	)

	cmd := &cobra.Command{
		Use:   "load FILE",
		Short: "Загрузить документ схемы",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("ошибка открытия %s: %w", args[0], err)
			}
			defer f.Close()

			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				result, err := c.Schemas.Ingest(ctx, service.IngestRequest{
					Filename: filepath.Base(args[0]),
					Data:     f,
					AppName:  appName,
					Default:  isDefault,
					Owner:    owner,
				})
				if err != nil {
					return err
				}
				printIngestResult(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&appName, "app", "", "приложение, к которому относится схема")
	cmd.Flags().BoolVar(&isDefault, "default", false, "сделать схемой по умолчанию своего семейства")
	cmd.Flags().StringVar(&owner, "owner", middleware.AnonymousOwner, "владелец загрузки")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

func newListCmd() *cobra.Command {
	var appName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список схем",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				schemas, err := c.Schemas.ListSchemas(ctx, appName)
				if err != nil {
					return err
				}
				printSchemas(cmd, schemas)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&appName, "app", "", "только схемы приложения")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show SCHEMA_ID",
		Short: "Показать схему и её свойства",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				display, err := c.Schemas.GetSchemaDisplay(ctx, args[0])
				if err != nil {
					return err
				}
				printSchemas(cmd, []*model.Schema{display.Schema})

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "\nPROPERTY\tLABEL\tCLASSIFICATION\tFILL MODE\tOPTIONS")
				for _, p := range display.Properties {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
						p.PropertyName, p.Label, p.Classification, p.FillMode, len(p.Options))
				}
				return w.Flush()
			})
		},
	}
}

func newDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default SCHEMA_ID",
		Short: "Сделать схему схемой по умолчанию её семейства",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				schema, err := c.Schemas.PromoteDefault(ctx, args[0])
				if err != nil {
					return err
				}
				printSchemas(cmd, []*model.Schema{schema})
				return nil
			})
		},
	}
}

func newDBTypeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db-type",
		Short: "Справочник типов публичных баз данных",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Список типов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				types, err := c.Schemas.ListDatabaseTypes(ctx)
				if err != nil {
					return err
				}
				for _, t := range types {
					fmt.Fprintln(cmd.OutOrStdout(), t.Name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Добавить тип",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				t, err := c.Schemas.CreateDatabaseType(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Тип %s добавлен (%s)\n", t.Name, t.ID)
				return nil
			})
		},
	})

	return cmd
}

func printSchemas(cmd *cobra.Command, schemas []*model.Schema) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tAPP\tDEFAULT\tOWNER")
	for _, s := range schemas {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", s.ID, s.Name, s.Version, s.AppName, s.IsDefault, s.Owner)
	}
	_ = w.Flush()
}

func printIngestResult(cmd *cobra.Command, r *service.IngestResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, r.Message)
	fmt.Fprintf(out, "schema_id: %s\n", r.Schema.ID)
	fmt.Fprintf(out, "properties: %d, options: %d\n", r.Properties, r.Options)
	fmt.Fprintf(out, "bioinfo: %d, lineage: %d, public databases: %d\n",
		r.BioinfoFields, r.LineageFields, r.PublicDatabaseFields)
	for _, s := range r.Skipped {
		fmt.Fprintf(out, "пропущено %s (%s): %s\n", s.PropertyKey, s.Stage, s.Reason)
	}
}
