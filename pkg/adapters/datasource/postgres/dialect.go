package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

const maintenanceDatabase = "postgres"

var systemDatabases = []string{maintenanceDatabase, "template0", "template1"}

// Dialect implements datasource.Dialect for PostgreSQL 12+.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) DefaultPort() int { return defaultPort }

func (Dialect) MaintenanceDatabase() string { return maintenanceDatabase }

func (Dialect) SystemDatabases() []string {
	return append([]string(nil), systemDatabases...)
}

func (Dialect) PythonURL(cfg datasource.ConnConfig) string {
	return buildPythonURL(cfg)
}

// Open creates a pgxpool capped at opts.MaxConns and pings it. Acquire
// blocks beyond the cap until a connection is released.
func (Dialect) Open(ctx context.Context, cfg datasource.ConnConfig, opts datasource.PoolOptions) (datasource.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(buildConnectionString(cfg, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = datasource.DefaultPoolMaxConns
	}
	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return newAdapter(pool, cfg), nil
}
