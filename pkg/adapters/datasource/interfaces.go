package datasource

import (
	"context"
)

// Dialect is the per-engine strategy behind the pool manager. Each adapter
// registers exactly one implementation from its init().
type Dialect interface {
	// Name is the registry key ("mysql", "postgres").
	Name() string

	// DefaultPort is used when a URI or the configuration omits the port.
	DefaultPort() int

	// MaintenanceDatabase is the database admin pools connect to.
	// Empty means no default database.
	MaintenanceDatabase() string

	// SystemDatabases lists server-owned databases that are never listed,
	// dropped or treated as notebooks.
	SystemDatabases() []string

	// Open creates a pool for cfg and verifies it with a ping.
	Open(ctx context.Context, cfg ConnConfig, opts PoolOptions) (Pool, error)

	// PythonURL renders cfg as a SQLAlchemy URL with percent-encoded credentials.
	PythonURL(cfg ConnConfig) string
}

// QueryExecutor runs SQL against one database.
type QueryExecutor interface {
	// Run executes arbitrary user SQL, possibly several statements, and
	// normalizes the last statement's outcome. Driver errors are returned
	// as *apperrors.StatementError.
	Run(ctx context.Context, sql string) (*QueryResult, error)

	// Exec, Query and QueryRow take '?' placeholders regardless of dialect.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row

	// QuoteIdentifier quotes a table, column or database name.
	QuoteIdentifier(name string) string
}

// SchemaIntrospector lists tables of the pool's database.
type SchemaIntrospector interface {
	// ListTables returns every base table outside the reserved prefix with
	// columns in ordinal order and RowCount = UnknownRowCount.
	ListTables(ctx context.Context) ([]TableMetadata, error)

	// CountRows runs SELECT COUNT(*) on the table.
	CountRows(ctx context.Context, table string) (int64, error)
}

// DatabaseAdmin manages databases on the pool's server.
type DatabaseAdmin interface {
	ListDatabases(ctx context.Context) ([]string, error)
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name string) error

	// DropDatabase drops name if it exists. PostgreSQL first terminates
	// other sessions connected to it.
	DropDatabase(ctx context.Context, name string) error

	// CloneInto recreates every base table of this pool's database in dst
	// and copies all rows. dst must already exist and be empty.
	CloneInto(ctx context.Context, dst Pool) error
}

// Pool is a bounded connection pool bound to one logical database.
type Pool interface {
	QueryExecutor
	SchemaIntrospector
	DatabaseAdmin

	// Config returns the connection parameters the pool was opened with.
	Config() ConnConfig

	Ping(ctx context.Context) error
	Close() error
}

// Rows is the iteration surface shared by pgx.Rows and *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is a single-row result. Scan returns apperrors.ErrNotFound when no
// row matched.
type Row interface {
	Scan(dest ...any) error
}

// PoolOptions bounds each pool.
type PoolOptions struct {
	MaxConns int
	// ConnectTimeoutSeconds bounds dialing a single connection. 0 uses the driver default.
	ConnectTimeoutSeconds int
}

// PoolProvider hands out pools by database identifier. *PoolRegistry is the
// production implementation.
type PoolProvider interface {
	Get(ctx context.Context, identifier string) (Pool, error)
	Admin(ctx context.Context) (Pool, error)
	Resolve(identifier string) (ConnConfig, Dialect, error)
	Evict(identifier string)
}
