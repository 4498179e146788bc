package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/database"
	"github.com/ekaya-inc/ekaya-notebook/pkg/datasets"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
	"github.com/ekaya-inc/ekaya-notebook/pkg/repositories"
	"github.com/ekaya-inc/ekaya-notebook/pkg/retry"
)

// Provisioning steps reported in apperrors.ProvisioningError.
const (
	StepWaitForServer   = "wait for database server"
	StepEnsureDatabases = "ensure databases"
	StepMigrate         = "migrate system database"
	StepSentinel        = "acquire sentinel"
	StepLoadDatasets    = "load sample datasets"
	StepSeedDemo        = "seed demo notebook"
)

const (
	demoTopic     = "Persona engagement"
	demoIcon      = "📊"
	demoTable     = "persona_metrics"
	demoDays      = 365
	demoPersonas  = 5
	demoBatchRows = 200
)

// ProvisioningConfig configures Bootstrap.
type ProvisioningConfig struct {
	SystemDatabase string
	MasterDatabase string
	SentinelPath   string
	LoadSamples    bool
	SeedDemo       bool
}

// ProvisioningService prepares the server on first boot.
type ProvisioningService interface {
	// Bootstrap waits for the server, creates the system and master
	// databases, migrates the system database and seeds sample data once.
	// It is safe to call on every start.
	Bootstrap(ctx context.Context) error
}

type provisioningService struct {
	pools     datasource.PoolProvider
	notebooks NotebookService
	registry  repositories.NotebookRepository
	settings  repositories.SettingsRepository
	seeds     repositories.SeedHistoryRepository
	manifest  *datasets.Manifest
	cfg       ProvisioningConfig
	startup   *retry.Config
	migrate   func(ctx context.Context, pool datasource.Pool, dialect string) error
	now       func() time.Time
	logger    *zap.Logger
}

var _ ProvisioningService = (*provisioningService)(nil)

// NewProvisioningService creates a provisioning service.
func NewProvisioningService(
	pools datasource.PoolProvider,
	notebooks NotebookService,
	registry repositories.NotebookRepository,
	settings repositories.SettingsRepository,
	seeds repositories.SeedHistoryRepository,
	manifest *datasets.Manifest,
	cfg ProvisioningConfig,
	logger *zap.Logger,
) ProvisioningService {
	s := &provisioningService{
		pools:     pools,
		notebooks: notebooks,
		registry:  registry,
		settings:  settings,
		seeds:     seeds,
		manifest:  manifest,
		cfg:       cfg,
		startup:   retry.ServerStartupConfig(),
		now:       time.Now,
		logger:    logger.Named("provisioning"),
	}
	s.migrate = s.runMigrations
	return s
}

func (s *provisioningService) Bootstrap(ctx context.Context) error {
	if err := s.waitForServer(ctx); err != nil {
		return &apperrors.ProvisioningError{Step: StepWaitForServer, Err: err}
	}

	if err := s.ensureDatabases(ctx); err != nil {
		return &apperrors.ProvisioningError{Step: StepEnsureDatabases, Err: err}
	}

	systemPool, err := s.pools.Get(ctx, s.cfg.SystemDatabase)
	if err != nil {
		return &apperrors.ProvisioningError{Step: StepMigrate, Err: err}
	}
	_, dialect, err := s.pools.Resolve(s.cfg.SystemDatabase)
	if err != nil {
		return &apperrors.ProvisioningError{Step: StepMigrate, Err: err}
	}
	if err := s.migrate(ctx, systemPool, dialect.Name()); err != nil {
		return &apperrors.ProvisioningError{Step: StepMigrate, Err: err}
	}

	acquired, err := s.acquireSentinel()
	if err != nil {
		return &apperrors.ProvisioningError{Step: StepSentinel, Err: err}
	}
	if !acquired {
		s.logger.Info("Already provisioned, skipping seeding", zap.String("sentinel", s.cfg.SentinelPath))
		return nil
	}

	if err := s.seed(ctx, dialect.Name()); err != nil {
		s.releaseSentinel()
		return err
	}

	s.logger.Info("Provisioning complete")
	return nil
}

func (s *provisioningService) waitForServer(ctx context.Context) error {
	attempt := 0
	return retry.Do(ctx, s.startup, func() error {
		attempt++
		admin, err := s.pools.Admin(ctx)
		if err == nil {
			err = admin.Ping(ctx)
		}
		if err != nil {
			s.logger.Info("Waiting for database server", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
}

func (s *provisioningService) ensureDatabases(ctx context.Context) error {
	admin, err := s.pools.Admin(ctx)
	if err != nil {
		return err
	}
	for _, name := range []string{s.cfg.SystemDatabase, s.cfg.MasterDatabase} {
		exists, err := admin.DatabaseExists(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to check database %s: %w", name, err)
		}
		if exists {
			continue
		}
		if err := admin.CreateDatabase(ctx, name); err != nil {
			return fmt.Errorf("failed to create database %s: %w", name, err)
		}
		s.logger.Info("Created database", zap.String("database", name))
	}
	return nil
}

func (s *provisioningService) runMigrations(ctx context.Context, pool datasource.Pool, dialect string) error {
	target, ok := pool.(database.Migratable)
	if !ok {
		return fmt.Errorf("%s pool does not support migrations", dialect)
	}
	return database.RunMigrations(ctx, target, dialect, s.logger)
}

// acquireSentinel creates the sentinel file exclusively. It reports false
// when another run already created it.
func (s *provisioningService) acquireSentinel() (bool, error) {
	if dir := filepath.Dir(s.cfg.SentinelPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
	}
	f, err := os.OpenFile(s.cfg.SentinelPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "provisioned at %s\n", s.now().UTC().Format(time.RFC3339))
	return true, err
}

func (s *provisioningService) releaseSentinel() {
	if err := os.Remove(s.cfg.SentinelPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("Failed to remove provisioning sentinel", zap.String("sentinel", s.cfg.SentinelPath), zap.Error(err))
	}
}

func (s *provisioningService) seed(ctx context.Context, dialect string) error {
	if s.cfg.LoadSamples && s.manifest != nil {
		if err := s.loadDatasets(ctx, dialect); err != nil {
			return &apperrors.ProvisioningError{Step: StepLoadDatasets, Err: err}
		}
	}
	if s.cfg.SeedDemo {
		if err := s.seedDemo(ctx); err != nil {
			return &apperrors.ProvisioningError{Step: StepSeedDemo, Err: err}
		}
	}
	return nil
}

func (s *provisioningService) loadDatasets(ctx context.Context, dialect string) error {
	master, err := s.pools.Get(ctx, s.cfg.MasterDatabase)
	if err != nil {
		return err
	}

	for _, d := range s.manifest.Datasets {
		loaded, err := s.seeds.IsLoaded(ctx, d.Name)
		if err != nil {
			return err
		}
		if loaded {
			continue
		}

		script, ok, err := s.manifest.Script(d, dialect)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Warn("Dataset has no script for dialect", zap.String("dataset", d.Name), zap.String("dialect", dialect))
			continue
		}

		if _, err := master.Run(ctx, script); err != nil {
			return fmt.Errorf("dataset %s: %w", d.Name, err)
		}
		if err := s.seeds.MarkLoaded(ctx, d.Name); err != nil {
			return err
		}
		s.logger.Info("Loaded sample dataset", zap.String("dataset", d.Name))
	}
	return nil
}

func (s *provisioningService) seedDemo(ctx context.Context) error {
	if id, ok, err := s.settings.Get(ctx, models.SettingDemoNotebookID); err != nil {
		return err
	} else if ok {
		_, err := s.registry.Get(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
	}

	nb, err := s.notebooks.Create(ctx, demoTopic, demoIcon)
	if err != nil {
		return err
	}

	if err := s.fillDemo(ctx, nb.DBName); err != nil {
		if _, delErr := s.notebooks.Delete(context.WithoutCancel(ctx), nb.ID); delErr != nil {
			s.logger.Error("Failed to remove partial demo notebook", zap.String("id", nb.ID), zap.Error(delErr))
		}
		return err
	}

	if err := s.settings.Set(ctx, models.SettingDemoNotebookID, nb.ID); err != nil {
		return err
	}
	s.logger.Info("Seeded demo notebook", zap.String("id", nb.ID))
	return nil
}

// demoRow is one day of metrics for one persona.
type demoRow struct {
	id          int
	date        time.Time
	persona     string
	sessions    int
	conversions int
	revenue     float64
}

// demoRows generates demoDays of metrics per persona ending today. The shape
// is fixed; names and figures depend on seed.
func demoRows(today time.Time, seed int64) []demoRow {
	faker := gofakeit.New(seed)
	personas := make([]string, 0, demoPersonas)
	seen := make(map[string]bool, demoPersonas)
	for len(personas) < demoPersonas {
		name := faker.Name()
		if !seen[name] {
			seen[name] = true
			personas = append(personas, name)
		}
	}

	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(demoDays - 1))
	rows := make([]demoRow, 0, demoDays*demoPersonas)
	for day := 0; day < demoDays; day++ {
		date := start.AddDate(0, 0, day)
		for _, persona := range personas {
			sessions := faker.Number(20, 400)
			conversions := faker.Number(0, sessions/10)
			rows = append(rows, demoRow{
				id:          len(rows) + 1,
				date:        date,
				persona:     persona,
				sessions:    sessions,
				conversions: conversions,
				revenue:     math.Round(float64(conversions)*faker.Float64Range(15, 120)*100) / 100,
			})
		}
	}
	return rows
}

func (s *provisioningService) fillDemo(ctx context.Context, dbName string) error {
	pool, err := s.pools.Get(ctx, dbName)
	if err != nil {
		return err
	}

	table := pool.QuoteIdentifier(demoTable)
	ddl := "CREATE TABLE " + table + ` (
    id INTEGER NOT NULL PRIMARY KEY,
    metric_date DATE NOT NULL,
    persona VARCHAR(120) NOT NULL,
    sessions INTEGER NOT NULL,
    conversions INTEGER NOT NULL,
    revenue DECIMAL(12,2) NOT NULL
)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", demoTable, err)
	}

	now := s.now()
	rows := demoRows(now, now.UnixNano())
	for start := 0; start < len(rows); start += demoBatchRows {
		end := min(start+demoBatchRows, len(rows))
		query, args := demoInsert(table, rows[start:end])
		if _, err := pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert %s rows: %w", demoTable, err)
		}
	}
	return nil
}

func demoInsert(table string, rows []demoRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO " + table + " (id, metric_date, persona, sessions, conversions, revenue) VALUES ")
	args := make([]any, 0, len(rows)*6)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, r.id, r.date, r.persona, r.sessions, r.conversions, r.revenue)
	}
	return b.String(), args
}
