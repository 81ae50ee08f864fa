package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docgen/internal/app"
	"github.com/nikhilbhutani/docgen/internal/config"
	"github.com/nikhilbhutani/docgen/internal/database"
	"github.com/nikhilbhutani/docgen/internal/prompt"
)

func newMigrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			src := database.MigrationSource(cfg.Database.MigrationsPath)
			if dryRun {
				files, err := database.PendingMigrations(src)
				if err != nil {
					return err
				}
				for _, f := range files {
					cmd.Println(f)
				}
				return nil
			}

			a, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list migration files without applying them")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import document templates",
		Long:  `Creates the built-in document templates, or those of a YAML seed file. Templates whose name already exists in their category are skipped.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := loadSeed(file)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Templates.Seed(cmd.Context(), defs)
			if err != nil {
				return err
			}
			cmd.Printf("created %d templates, skipped %d existing\n", res.Created, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file (defaults to the built-in templates)")
	return cmd
}

func loadSeed(path string) ([]prompt.SeedTemplate, error) {
	if path == "" {
		return prompt.BuiltinSeed()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return prompt.LoadSeed(f)
}

// connect opens the deployment's database. Admin commands are pointless
// against the in-memory stores.
func connect(ctx context.Context, cfg *config.Config) (*app.App, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	cfg.Redis.Addr = ""
	cfg.Notify.WebhookURL = ""
	return app.New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}
