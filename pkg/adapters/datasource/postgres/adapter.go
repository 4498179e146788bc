package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
)

// Adapter is a pgxpool bound to one database. It implements datasource.Pool.
type Adapter struct {
	pool *pgxpool.Pool
	cfg  datasource.ConnConfig
}

var _ datasource.Pool = (*Adapter)(nil)

func newAdapter(pool *pgxpool.Pool, cfg datasource.ConnConfig) *Adapter {
	return &Adapter{pool: pool, cfg: cfg}
}

// PgxPool exposes the underlying pool.
func (a *Adapter) PgxPool() *pgxpool.Pool {
	return a.pool
}

func (a *Adapter) Config() datasource.ConnConfig {
	return a.cfg
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

func (a *Adapter) QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// Exec rebinds '?' placeholders and executes a statement.
func (a *Adapter) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := a.pool.Exec(ctx, datasource.RebindDollar(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (a *Adapter) Query(ctx context.Context, query string, args ...any) (datasource.Rows, error) {
	rows, err := a.pool.Query(ctx, datasource.RebindDollar(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *Adapter) QueryRow(ctx context.Context, query string, args ...any) datasource.Row {
	return pgxRow{row: a.pool.QueryRow(ctx, datasource.RebindDollar(query), args...)}
}

// pgxRow maps pgx.ErrNoRows to apperrors.ErrNotFound.
type pgxRow struct {
	row pgx.Row
}

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return err
}
