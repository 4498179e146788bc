package mysql

import (
	"context"
	"database/sql"
	"fmt"

	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
)

// MigrationDriver opens a dedicated *sql.DB for golang-migrate. Closing the
// migrate instance closes it without touching the pool.
func (a *Adapter) MigrationDriver(ctx context.Context) (migratedb.Driver, error) {
	db, err := sql.Open("mysql", buildMigrationDSN(a.cfg, a.opts))
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{
		DatabaseName: a.cfg.Database,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create mysql migration driver: %w", err)
	}
	return driver, nil
}
