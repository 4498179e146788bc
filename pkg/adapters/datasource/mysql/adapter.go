package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
)

// Adapter is a MySQL pool bound to one database. It implements datasource.Pool.
type Adapter struct {
	db   *sql.DB
	cfg  datasource.ConnConfig
	opts datasource.PoolOptions
}

var _ datasource.Pool = (*Adapter)(nil)

func newAdapter(db *sql.DB, cfg datasource.ConnConfig, opts datasource.PoolOptions) *Adapter {
	return &Adapter{db: db, cfg: cfg, opts: opts}
}

// DB exposes the underlying *sql.DB.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

func (a *Adapter) Config() datasource.ConnConfig {
	return a.cfg
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

func (a *Adapter) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (a *Adapter) Query(ctx context.Context, query string, args ...any) (datasource.Rows, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (a *Adapter) QueryRow(ctx context.Context, query string, args ...any) datasource.Row {
	return sqlRow{row: a.db.QueryRowContext(ctx, query, args...)}
}

// sqlRows adapts *sql.Rows to datasource.Rows.
type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error             { return r.rows.Err() }
func (r *sqlRows) Close()                 { _ = r.rows.Close() }

// sqlRow maps sql.ErrNoRows to apperrors.ErrNotFound.
type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return err
}
