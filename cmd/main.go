package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"catalog-migrator/internal/config"
	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/domain/importer"
	"catalog-migrator/internal/infrastructure/database/memory"
	"catalog-migrator/internal/infrastructure/database/mongodb"
	"catalog-migrator/internal/infrastructure/database/postgres"
	"catalog-migrator/internal/infrastructure/logging"
	"catalog-migrator/internal/pkg/apperrors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const adminRole = "admin"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "catalog-migrator",
		Short:         "Migrate a legacy library catalog from CSV exports into a live database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding config.yml")

	root.AddCommand(newImportCmd(&configPath))
	root.AddCommand(newInitDBCmd(&configPath))
	root.AddCommand(newGrantAdminCmd(&configPath))
	return root
}

func newImportCmd(configPath *string) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run the CSV import, once or on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := initializeApp(*configPath)
			if dir != "" {
				cfg.Import.Dir = dir
			}

			store, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("Failed to open store", "error", err)
				return err
			}
			defer closeStore()

			im := importer.New(store, cfg.Import.ItemTypePrefixes, logger)
			if cfg.Import.Schedule == "" {
				return runImportOnce(cmd.Context(), im, cfg, logger)
			}
			return runImportScheduled(im, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory holding the CSV export files (overrides config)")
	return cmd
}

func newInitDBCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the target tables or indexes if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := initializeApp(*configPath)

			store, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("Failed to open store", "error", err)
				return err
			}
			defer closeStore()

			initializer, ok := store.(interface{ InitSchema(ctx context.Context) error })
			if !ok {
				logger.Info("Backend needs no schema setup", "driver", cfg.Database.Driver)
				return nil
			}
			if err := initializer.InitSchema(cmd.Context()); err != nil {
				logger.Error("Schema initialization failed", "error", err)
				return err
			}
			return nil
		},
	}
}

func newGrantAdminCmd(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "grant-admin <user name>",
		Short: "Grant the admin role to an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := initializeApp(*configPath)
			userName := args[0]

			if !yes && !confirm(cmd, fmt.Sprintf("Grant %s rights to %q?", adminRole, userName)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			store, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("Failed to open store", "error", err)
				return err
			}
			defer closeStore()

			created, err := store.GrantRole(cmd.Context(), userName, adminRole)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "No user named %q exists; import the users first.\n", userName)
					return err
				}
				logger.Error("Failed to grant role", "user", userName, "error", err)
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %s rights to %q.\n", adminRole, userName)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%q already has %s rights.\n", userName, adminRole)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

func initializeApp(configPath string) (*config.Config, *slog.Logger) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env file")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	slog.SetDefault(logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed())

	return cfg, logger
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Store, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		dbPool, err := postgres.NewConnectionPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		closeStore := func() {
			logger.Info("Closing database connection pool...")
			dbPool.Close()
		}
		return postgres.NewCatalogRepository(dbPool, logger), closeStore, nil

	case "mongodb":
		client, err := mongodb.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		closeStore := func() {
			logger.Info("Disconnecting from MongoDB...")
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("Failed to disconnect cleanly", "error", err)
			}
		}
		return mongodb.NewCatalogRepository(client.Database(cfg.Database.Name), logger), closeStore, nil

	case "memory":
		return memory.NewStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown database driver %q", apperrors.ErrInvalidArgument, cfg.Database.Driver)
	}
}

func runImportOnce(ctx context.Context, im *importer.Importer, cfg *config.Config, logger *slog.Logger) error {
	summaries := im.Run(ctx, cfg.Import.Dir)
	return reportSummaries(summaries, logger)
}

func runImportScheduled(im *importer.Importer, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Initializing import scheduler...")
	c := cron.New()

	jobTimeout := cfg.Import.ScheduleTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}

	jobID, err := c.AddJob(cfg.Import.Schedule, cron.FuncJob(func() {
		jobLogger := logger.With("job_name", "CatalogImport")
		jobLogger.Info("Cron triggered: Running catalog import.")

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		summaries := im.Run(ctx, cfg.Import.Dir)
		if runErr := reportSummaries(summaries, jobLogger); runErr != nil {
			jobLogger.Error("Catalog import finished with errors", slog.Any("error", runErr))
		} else {
			jobLogger.Info("Catalog import finished successfully.")
		}
	}))
	if err != nil {
		logger.Error("Failed to schedule import", "schedule", cfg.Import.Schedule, slog.Any("error", err))
		return err
	}
	logger.Info("Scheduled catalog import", "schedule", cfg.Import.Schedule, "job_id", jobID)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetricsServer(cfg.Metrics, logger)
	}

	c.Start()
	logger.Info("Cron scheduler started.")

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdownChan
	logger.Info("Shutdown signal received.", "signal", sig.String())

	logger.Info("Stopping cron scheduler...")
	cronCtx := c.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		logger.Warn("Cron scheduler shutdown timed out.")
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Application shutdown process complete.")
	return nil
}

func startMetricsServer(cfg config.MetricsConfig, logger *slog.Logger) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:     fmt.Sprintf(":%d", cfg.Port),
		Handler:  router,
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	go func() {
		logger.Info("Metrics server listening", "port", cfg.Port, "path", cfg.Path)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", "error", err)
		}
	}()
	return srv
}

func reportSummaries(summaries []*importer.Summary, logger *slog.Logger) error {
	var failed int
	for _, sum := range summaries {
		if sum.Err != nil {
			failed++
			logger.Error("File failed",
				"file", sum.File, "processed", sum.Processed, "error", sum.Err)
			continue
		}
		logger.Info("File imported",
			"file", sum.File, "processed", sum.Processed, "imported", sum.Imported,
			"skipped", sum.Skipped, "warnings", len(sum.Warnings))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(summaries))
	}
	return nil
}
