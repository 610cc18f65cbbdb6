package cli

import (
	"context"
	"fmt"
	"log"

	"crqbank/internal/config"
	"crqbank/internal/infra/csv"
	"crqbank/internal/infra/postgres"
	"github.com/spf13/cobra"
)

// NewImportCmd loads a question CSV into the questions table.
func NewImportCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a question bank CSV into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file to import (defaults to questions.path)")
	return cmd
}

func runImport(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if file == "" {
		file = cfg.Questions.Path
	}
	if file == "" {
		return fmt.Errorf("no CSV file given")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	questions, err := csv.NewFileSource(file).LoadQuestions(ctx)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := postgres.ImportQuestions(ctx, db, questions)
	if err != nil {
		return err
	}
	log.Printf("imported %d questions from %s", n, file)
	return nil
}
