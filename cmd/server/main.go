package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"diagnostic-trainer/internal/agent"
	"diagnostic-trainer/internal/cases"
	"diagnostic-trainer/internal/config"
	"diagnostic-trainer/internal/platform/database"
	"diagnostic-trainer/internal/platform/middleware"
	"diagnostic-trainer/internal/platform/telegram"
	"diagnostic-trainer/internal/report"
	"diagnostic-trainer/internal/training"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "trainer",
		Short:        "Interactive diagnostic training server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(casesCmd())
	rootCmd.AddCommand(patientsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the training API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openDatabase(cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	applied, err := database.MigrateUp(cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		return nil, err
	}
	if applied {
		logger.Info().Msg("migrations applied")
	}
	return database.Open(cfg.DatabaseURL, 10, 2*time.Second, logger)
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	// Patient-backed cases need the database; demo cases never do.
	var patients cases.PatientRepository
	if cfg.HasDatabase() {
		db, err := openDatabase(cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("database unavailable")
			return err
		}
		defer db.Close()
		patients = cases.NewPatientRepository(db)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL is not set, patient cases are disabled")
	}

	table, err := cases.LoadTable(cfg.CasesFile)
	if err != nil {
		logger.Error().Err(err).Str("file", cfg.CasesFile).Msg("failed to load case table")
		return err
	}
	logger.Info().Int("cases", table.Len()).Msg("case table loaded")

	grader := training.RoutingGrader{Local: training.LocalGrader{}}
	if cfg.HasRemoteGrader() {
		grader.Remote = agent.NewGrader(agent.NewDeepSeekClient(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel))
		logger.Info().Str("model", cfg.AIModel).Msg("remote grader enabled for patient cases")
	}

	var (
		tg        report.TelegramClient
		debriefer training.Debriefer
	)
	if cfg.TelegramBotToken != "" {
		tg = telegram.NewClient(cfg.TelegramBotToken)
	}
	reportSvc := report.NewService(tg, cfg.InstructorChatID, logger)
	if tg != nil {
		debriefer = reportSvc
	} else {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN is not set, debriefs will not be sent")
	}

	svc := training.NewService(
		cases.NewProvider(table, patients),
		grader,
		training.NewStore(cfg.SessionTTL),
		training.Options{
			GradingDelay: cfg.GradingDelay,
			Debriefer:    debriefer,
			Logger:       logger,
		},
	)
	handler := training.NewHandler(svc, reportSvc)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Route("/api", func(r chi.Router) {
		training.RegisterRoutes(r, handler)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server failed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
