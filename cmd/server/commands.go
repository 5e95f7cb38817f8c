package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"diagnostic-trainer/internal/cases"
	"diagnostic-trainer/internal/config"
	"diagnostic-trainer/internal/platform/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadDatabaseConfig()
			if err != nil {
				return err
			}
			applied, err := database.MigrateUp(cfg.DatabaseURL, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			if applied {
				logger.Info().Msg("migrations applied")
			} else {
				logger.Info().Msg("schema already up to date")
			}
			return nil
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadDatabaseConfig()
			if err != nil {
				return err
			}
			if err := database.MigrateDown(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
				return err
			}
			logger.Info().Msg("rolled back one migration")
			return nil
		},
	}

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

func loadDatabaseConfig() (*config.Config, zerolog.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, logger, err
	}
	if !cfg.HasDatabase() {
		return nil, logger, fmt.Errorf("DATABASE_URL is not set")
	}
	return cfg, logger, nil
}

func casesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Validate and print the case table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				if cfg, err := config.Load(); err == nil {
					file = cfg.CasesFile
				}
			}
			table, err := cases.LoadTable(file)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tDIFFICULTY\tPATIENT\tDIFFERENTIALS")
			for _, f := range table.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s, %d\t%d\n",
					f.ID, f.Title, f.Difficulty, f.Patient.Name, f.Patient.Age, len(f.Differentials))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "extra YAML case file (defaults to CASES_FILE)")
	return cmd
}

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Manage stored patients used as training cases",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadDatabaseConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DatabaseURL, 1, 0, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			list, err := cases.NewPatientRepository(db).List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAGE\tGENDER\tWORKING DIAGNOSIS")
			for _, p := range list {
				dx := p.WorkingDiagnosis
				if dx == "" {
					dx = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.ID, p.Name, p.Age, p.Gender, dx)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	listCmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import patients from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readPatients(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := loadDatabaseConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DatabaseURL, 1, 0, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := cases.NewPatientRepository(db)
			for _, p := range records {
				if err := repo.Save(cmd.Context(), p); err != nil {
					return fmt.Errorf("save patient %q: %w", p.Name, err)
				}
				logger.Info().Str("patient_id", p.ID.String()).Str("name", p.Name).Msg("patient imported")
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, importCmd)
	return cmd
}

func readPatients(path string) ([]*cases.PatientRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []*cases.PatientRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, p := range records {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("patient %d in %s has no name", i, path)
		}
	}
	return records, nil
}
