package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-notebook/pkg/audit"
	"github.com/ekaya-inc/ekaya-notebook/pkg/config"
	"github.com/ekaya-inc/ekaya-notebook/pkg/datasets"
	"github.com/ekaya-inc/ekaya-notebook/pkg/handlers"
	"github.com/ekaya-inc/ekaya-notebook/pkg/llm"
	"github.com/ekaya-inc/ekaya-notebook/pkg/logging"
	"github.com/ekaya-inc/ekaya-notebook/pkg/middleware"
	"github.com/ekaya-inc/ekaya-notebook/pkg/python"
	"github.com/ekaya-inc/ekaya-notebook/pkg/repositories"
	"github.com/ekaya-inc/ekaya-notebook/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "ekaya-notebook",
		Short:         "Database gateway and Python bridge for AI analytics notebooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Provision the database server and start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "provision",
		Short: "Run first-boot provisioning and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := build(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			return app.provisioning.Bootstrap(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the wired process dependencies.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	pools        *datasource.PoolRegistry
	provisioning services.ProvisioningService
	handler      http.Handler
}

func build(configPath string) (*app, error) {
	cfg, err := config.LoadFile(configPath, Version)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.Debug)
	if err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("dialect", cfg.Database.Dialect),
		zap.String("db_host", cfg.Database.Host),
		zap.String("system_database", cfg.Database.SystemDatabase),
		zap.String("master_database", cfg.Database.MasterDatabase),
		zap.Bool("llm_available", cfg.LLM.IsAvailable()),
	)

	var params map[string]string
	if cfg.Database.SSLMode != "" {
		params = map[string]string{"sslmode": cfg.Database.SSLMode}
	}
	pools, err := datasource.NewPoolRegistry(datasource.PoolRegistryConfig{
		Server: datasource.ConnConfig{
			Dialect:  cfg.Database.Dialect,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Params:   params,
		},
		Options: datasource.PoolOptions{
			MaxConns:              cfg.Database.PoolMaxConns,
			ConnectTimeoutSeconds: cfg.Database.ConnectTimeoutSeconds,
		},
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to create pool registry: %w", err)
	}

	systemDB := cfg.Database.SystemDatabase
	notebookRepo := repositories.NewNotebookRepository(pools, systemDB)
	appRepo := repositories.NewAppRepository(pools, systemDB)
	shareRepo := repositories.NewShareRepository(pools, systemDB)
	settingsRepo := repositories.NewSettingsRepository(pools, systemDB)
	seedRepo := repositories.NewSeedHistoryRepository(pools, systemDB)

	auditor := audit.NewExecutionAuditor(logger)

	llmClient, err := llm.NewClientFromConfig(cfg.LLM, logger)
	if err != nil {
		if !errors.Is(err, llm.ErrNotConfigured) {
			_ = pools.Close()
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
		logger.Info("LLM not configured, metadata inference disabled")
		llmClient = nil
	}

	manifest, err := datasets.Bundled()
	if err != nil {
		_ = pools.Close()
		return nil, fmt.Errorf("failed to load bundled datasets: %w", err)
	}

	notebookSvc := services.NewNotebookService(pools, notebookRepo, appRepo, shareRepo, auditor, services.NotebookServiceConfig{
		SystemDatabase: systemDB,
		MasterDatabase: cfg.Database.MasterDatabase,
	}, logger)
	querySvc := services.NewQueryService(pools, auditor, logger)
	pythonSvc := services.NewPythonService(pools, python.NewRunner(cfg.Python, cfg.LLM, logger), auditor, logger)
	metadataSvc := services.NewMetadataService(pools, notebookRepo, llmClient, logger)
	provisioningSvc := services.NewProvisioningService(pools, notebookSvc, notebookRepo, settingsRepo, seedRepo, manifest, services.ProvisioningConfig{
		SystemDatabase: systemDB,
		MasterDatabase: cfg.Database.MasterDatabase,
		SentinelPath:   cfg.Provisioning.SentinelPath,
		LoadSamples:    cfg.Provisioning.LoadSamples,
		SeedDemo:       cfg.Provisioning.SeedDemo,
	}, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, pools, logger).RegisterRoutes(mux)
	handlers.NewSQLHandler(querySvc, logger).RegisterRoutes(mux)
	handlers.NewPythonHandler(pythonSvc, logger).RegisterRoutes(mux)
	handlers.NewNotebooksHandler(notebookSvc, metadataSvc, logger).RegisterRoutes(mux)

	return &app{
		cfg:          cfg,
		logger:       logger,
		pools:        pools,
		provisioning: provisioningSvc,
		handler:      middleware.Chain(mux, middleware.RequestLogger(logger), middleware.Recover(logger)),
	}, nil
}

func (a *app) close() {
	if err := a.pools.Close(); err != nil {
		a.logger.Warn("Failed to close pools", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func serve(ctx context.Context, configPath string) error {
	a, err := build(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.provisioning.Bootstrap(ctx); err != nil {
		a.logger.Error("Provisioning failed", zap.Error(err))
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.BindAddr, a.cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting ekaya-notebook",
			zap.String("addr", srv.Addr),
			zap.String("version", a.cfg.Version),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
