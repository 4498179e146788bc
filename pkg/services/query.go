package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/audit"
	"github.com/ekaya-inc/ekaya-notebook/pkg/logging"
)

// QueryService runs user SQL against a logical database.
type QueryService interface {
	// Run executes sql against dbName (bare name or URI) and returns the
	// normalized result of the last statement. The SQL is passed through untouched.
	Run(ctx context.Context, dbName, sql, clientIP string) (*datasource.QueryResult, error)
}

type queryService struct {
	pools   datasource.PoolProvider
	auditor *audit.ExecutionAuditor
	logger  *zap.Logger
}

var _ QueryService = (*queryService)(nil)

// NewQueryService creates a query service.
func NewQueryService(pools datasource.PoolProvider, auditor *audit.ExecutionAuditor, logger *zap.Logger) QueryService {
	return &queryService{
		pools:   pools,
		auditor: auditor,
		logger:  logger.Named("query"),
	}
}

func (s *queryService) Run(ctx context.Context, dbName, sql, clientIP string) (*datasource.QueryResult, error) {
	pool, err := s.pools.Get(ctx, dbName)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := pool.Run(ctx, sql)
	elapsed := time.Since(started)

	s.auditor.LogSQLExecution(dbName, sql, clientIP, elapsed, err)
	if err != nil {
		s.logger.Debug("Query failed",
			zap.String("database", logging.SanitizeConnectionString(dbName)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}
	return result, nil
}
