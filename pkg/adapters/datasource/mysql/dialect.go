package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

// systemDatabases are server-owned schemas.
var systemDatabases = []string{"information_schema", "mysql", "performance_schema", "sys"}

// Dialect implements datasource.Dialect for MySQL 8 and compatible servers.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) DefaultPort() int { return defaultPort }

// MaintenanceDatabase is empty: MySQL admin connections select no schema.
func (Dialect) MaintenanceDatabase() string { return "" }

func (Dialect) SystemDatabases() []string {
	return append([]string(nil), systemDatabases...)
}

func (Dialect) PythonURL(cfg datasource.ConnConfig) string {
	return buildPythonURL(cfg)
}

// Open creates a *sql.DB capped at opts.MaxConns open connections and pings it.
// Callers beyond the cap wait for a free connection.
func (Dialect) Open(ctx context.Context, cfg datasource.ConnConfig, opts datasource.PoolOptions) (datasource.Pool, error) {
	db, err := sql.Open("mysql", buildDSN(cfg, opts))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = datasource.DefaultPoolMaxConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newAdapter(db, cfg, opts), nil
}
