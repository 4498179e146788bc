package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/audit"
	"github.com/ekaya-inc/ekaya-notebook/pkg/python"
)

// PythonRequest is one Python cell execution.
type PythonRequest struct {
	Code     string
	DBName   string
	Mode     string
	Params   map[string]any
	ClientIP string
}

// ScriptRunner runs composed Python. *python.Runner is the production implementation.
type ScriptRunner interface {
	Run(ctx context.Context, req python.Request) (*python.Result, error)
}

// PythonService runs user Python with a connection URL for the target database.
type PythonService interface {
	Execute(ctx context.Context, req PythonRequest) (*python.Result, error)
}

type pythonService struct {
	pools   datasource.PoolProvider
	runner  ScriptRunner
	auditor *audit.ExecutionAuditor
	logger  *zap.Logger
}

var _ PythonService = (*pythonService)(nil)

// NewPythonService creates a Python service.
func NewPythonService(pools datasource.PoolProvider, runner ScriptRunner, auditor *audit.ExecutionAuditor, logger *zap.Logger) PythonService {
	return &pythonService{
		pools:   pools,
		runner:  runner,
		auditor: auditor,
		logger:  logger.Named("python"),
	}
}

func (s *pythonService) Execute(ctx context.Context, req PythonRequest) (*python.Result, error) {
	cfg, dialect, err := s.pools.Resolve(req.DBName)
	if err != nil {
		return nil, err
	}

	if flagged := s.auditor.CheckParameters(req.DBName, req.Params, req.ClientIP); flagged > 0 {
		s.logger.Warn("Suspicious parameter values passed to python", zap.Int("count", flagged))
	}

	result, err := s.runner.Run(ctx, python.Request{
		Code:    req.Code,
		Mode:    req.Mode,
		Params:  req.Params,
		DBURL:   dialect.PythonURL(cfg),
		Dialect: dialect.Name(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run python: %w", err)
	}

	s.auditor.LogPythonExecution(req.DBName, req.Mode, req.Code, req.ClientIP, result.ExitCode, result.TimedOut, result.Elapsed)
	return result, nil
}
