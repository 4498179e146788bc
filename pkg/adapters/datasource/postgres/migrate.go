package postgres

import (
	"context"
	"fmt"

	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// MigrationDriver opens a dedicated *sql.DB over the pool's connection
// config for golang-migrate. Closing the migrate instance closes it without
// touching the pool.
func (a *Adapter) MigrationDriver(ctx context.Context) (migratedb.Driver, error) {
	db := stdlib.OpenDB(*a.pool.Config().ConnConfig)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{DatabaseName: a.cfg.Database})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create postgres migration driver: %w", err)
	}
	return driver, nil
}
