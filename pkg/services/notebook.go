package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/audit"
	"github.com/ekaya-inc/ekaya-notebook/pkg/logging"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
	"github.com/ekaya-inc/ekaya-notebook/pkg/repositories"
)

// rowCountConcurrency bounds parallel COUNT(*) queries during a refresh.
const rowCountConcurrency = 4

// DeleteResult reports what Delete did.
type DeleteResult struct {
	Success bool `json:"success"`
	// Dropped is true when the physical database was dropped.
	Dropped bool `json:"dropped"`
}

// NotebookService manages notebook databases and their registry rows.
type NotebookService interface {
	// Create creates an owned database for a new notebook.
	Create(ctx context.Context, topic, icon string) (*models.Notebook, error)

	// Connect registers a notebook over an existing database. The database
	// is never owned, so Delete never drops it. The system database cannot
	// be connected (apperrors.ErrProtectedDatabase).
	Connect(ctx context.Context, topic, icon, dbName string) (*models.Notebook, error)

	// Clone copies every base table of a notebook into a new owned database.
	Clone(ctx context.Context, id string) (*models.Notebook, error)

	Get(ctx context.Context, id string) (*models.Notebook, error)
	List(ctx context.Context) ([]*models.Notebook, error)

	// Open returns the notebook and counts a view.
	Open(ctx context.Context, id string) (*models.Notebook, error)

	// Delete removes the registry row and the apps published from it. The
	// physical database is dropped only when owned and not protected.
	Delete(ctx context.Context, id string) (*DeleteResult, error)

	// Tables lists the notebook's tables. With refresh, row counts are sampled.
	Tables(ctx context.Context, id string, refresh bool) ([]datasource.TableMetadata, error)

	// ListDatabases lists the non-system databases on the configured server.
	ListDatabases(ctx context.Context) ([]string, error)
}

// NotebookServiceConfig names the databases the service must never drop.
type NotebookServiceConfig struct {
	SystemDatabase string
	MasterDatabase string
}

type notebookService struct {
	pools     datasource.PoolProvider
	notebooks repositories.NotebookRepository
	apps      repositories.AppRepository
	shares    repositories.ShareRepository
	auditor   *audit.ExecutionAuditor
	cfg       NotebookServiceConfig
	logger    *zap.Logger
}

var _ NotebookService = (*notebookService)(nil)

// NewNotebookService creates a notebook service.
func NewNotebookService(
	pools datasource.PoolProvider,
	notebooks repositories.NotebookRepository,
	apps repositories.AppRepository,
	shares repositories.ShareRepository,
	auditor *audit.ExecutionAuditor,
	cfg NotebookServiceConfig,
	logger *zap.Logger,
) NotebookService {
	return &notebookService{
		pools:     pools,
		notebooks: notebooks,
		apps:      apps,
		shares:    shares,
		auditor:   auditor,
		cfg:       cfg,
		logger:    logger.Named("notebooks"),
	}
}

func (s *notebookService) Create(ctx context.Context, topic, icon string) (*models.Notebook, error) {
	nb := newOwnedNotebook(topic, icon)

	admin, err := s.pools.Admin(ctx)
	if err != nil {
		return nil, err
	}
	if err := admin.CreateDatabase(ctx, nb.DBName); err != nil {
		return nil, fmt.Errorf("failed to create notebook database: %w", err)
	}

	if err := s.notebooks.Create(ctx, nb); err != nil {
		s.dropQuietly(ctx, admin, nb.DBName)
		return nil, err
	}

	s.logger.Info("Created notebook",
		zap.String("id", nb.ID),
		zap.String("database", nb.DBName))
	return nb, nil
}

func (s *notebookService) Connect(ctx context.Context, topic, icon, dbName string) (*models.Notebook, error) {
	if dbName == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if strings.EqualFold(dbName, s.cfg.SystemDatabase) {
		return nil, fmt.Errorf("%s: %w", dbName, apperrors.ErrProtectedDatabase)
	}
	if _, err := s.pools.Get(ctx, dbName); err != nil {
		return nil, err
	}

	nb := &models.Notebook{
		ID:          models.NewID(),
		DBName:      dbName,
		Topic:       topic,
		Icon:        icon,
		Suggestions: []string{},
		CreatedAt:   models.NowMillis(),
		IsOwner:     false,
	}
	if err := s.notebooks.Create(ctx, nb); err != nil {
		return nil, err
	}

	s.logger.Info("Connected notebook",
		zap.String("id", nb.ID),
		zap.String("database", logging.SanitizeConnectionString(dbName)))
	return nb, nil
}

func (s *notebookService) Clone(ctx context.Context, id string) (*models.Notebook, error) {
	src, err := s.notebooks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	srcPool, err := s.pools.Get(ctx, src.DBName)
	if err != nil {
		return nil, err
	}

	nb := newOwnedNotebook(src.Topic, src.Icon)
	nb.Suggestions = append(nb.Suggestions, src.Suggestions...)

	admin, err := s.pools.Admin(ctx)
	if err != nil {
		return nil, err
	}
	if err := admin.CreateDatabase(ctx, nb.DBName); err != nil {
		return nil, fmt.Errorf("failed to create clone database: %w", err)
	}

	dstPool, err := s.pools.Get(ctx, nb.DBName)
	if err != nil {
		s.dropQuietly(ctx, admin, nb.DBName)
		return nil, err
	}
	if err := srcPool.CloneInto(ctx, dstPool); err != nil {
		s.pools.Evict(nb.DBName)
		s.dropQuietly(ctx, admin, nb.DBName)
		return nil, fmt.Errorf("failed to clone notebook %s: %w", id, err)
	}

	if err := s.notebooks.Create(ctx, nb); err != nil {
		s.pools.Evict(nb.DBName)
		s.dropQuietly(ctx, admin, nb.DBName)
		return nil, err
	}

	s.logger.Info("Cloned notebook",
		zap.String("source_id", src.ID),
		zap.String("id", nb.ID),
		zap.String("database", nb.DBName))
	return nb, nil
}

func (s *notebookService) Get(ctx context.Context, id string) (*models.Notebook, error) {
	return s.notebooks.Get(ctx, id)
}

func (s *notebookService) List(ctx context.Context) ([]*models.Notebook, error) {
	return s.notebooks.List(ctx)
}

func (s *notebookService) Open(ctx context.Context, id string) (*models.Notebook, error) {
	nb, err := s.notebooks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.notebooks.IncrementViews(ctx, id); err != nil {
		s.logger.Warn("Failed to count notebook view", zap.String("id", id), zap.Error(err))
	} else {
		nb.Views++
	}
	return nb, nil
}

func (s *notebookService) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	nb, err := s.notebooks.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{}
	if nb.IsOwner && !s.isProtected(nb.DBName) {
		admin, err := s.pools.Admin(ctx)
		if err != nil {
			return nil, err
		}
		// The cached pool holds connections to the database; close it first.
		s.pools.Evict(nb.DBName)
		if err := admin.DropDatabase(ctx, nb.DBName); err != nil {
			return nil, fmt.Errorf("failed to drop notebook database: %w", err)
		}
		s.auditor.LogDatabaseDropped(nb.DBName, nb.ID)
		result.Dropped = true
	} else {
		s.logger.Info("Keeping notebook database",
			zap.String("id", nb.ID),
			zap.String("database", logging.SanitizeConnectionString(nb.DBName)),
			zap.Bool("owned", nb.IsOwner))
	}

	appIDs, err := s.apps.DeleteBySourceNotebook(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(appIDs) > 0 {
		if _, err := s.shares.DeleteByApps(ctx, appIDs); err != nil {
			return nil, err
		}
	}
	if err := s.notebooks.Delete(ctx, id); err != nil {
		return nil, err
	}

	s.logger.Info("Deleted notebook",
		zap.String("id", id),
		zap.Int("apps_removed", len(appIDs)),
		zap.Bool("dropped", result.Dropped))

	result.Success = true
	return result, nil
}

func (s *notebookService) Tables(ctx context.Context, id string, refresh bool) ([]datasource.TableMetadata, error) {
	nb, err := s.notebooks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pool, err := s.pools.Get(ctx, nb.DBName)
	if err != nil {
		return nil, err
	}

	tables, err := pool.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	if !refresh {
		return tables, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rowCountConcurrency)
	for i := range tables {
		g.Go(func() error {
			n, err := pool.CountRows(gctx, tables[i].TableName)
			if err != nil {
				return fmt.Errorf("failed to count rows of %s: %w", tables[i].TableName, err)
			}
			tables[i].RowCount = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func (s *notebookService) ListDatabases(ctx context.Context) ([]string, error) {
	admin, err := s.pools.Admin(ctx)
	if err != nil {
		return nil, err
	}
	names, err := admin.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == s.cfg.SystemDatabase {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// isProtected reports whether a database must never be dropped: external
// URIs, the system and master databases, and the server's own databases.
func (s *notebookService) isProtected(dbName string) bool {
	if datasource.IsURI(dbName) {
		return true
	}
	if strings.EqualFold(dbName, s.cfg.SystemDatabase) || strings.EqualFold(dbName, s.cfg.MasterDatabase) {
		return true
	}
	_, dialect, err := s.pools.Resolve(dbName)
	if err != nil {
		return true
	}
	for _, name := range dialect.SystemDatabases() {
		if strings.EqualFold(dbName, name) {
			return true
		}
	}
	return false
}

func (s *notebookService) dropQuietly(ctx context.Context, admin datasource.Pool, name string) {
	if err := admin.DropDatabase(context.WithoutCancel(ctx), name); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Error("Failed to drop half-built database",
			zap.String("database", name),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func newOwnedNotebook(topic, icon string) *models.Notebook {
	id := models.NewID()
	return &models.Notebook{
		ID:          id,
		DBName:      models.NotebookDatabaseName(id),
		Topic:       topic,
		Icon:        icon,
		Suggestions: []string{},
		CreatedAt:   models.NowMillis(),
		IsOwner:     true,
	}
}
