package mysql

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
)

// ListDatabases returns every schema except the server's own.
func (a *Adapter) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		if slices.Contains(systemDatabases, strings.ToLower(name)) {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (a *Adapter) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check database %s: %w", name, err)
	}
	return count > 0, nil
}

func (a *Adapter) CreateDatabase(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", quoteIdentifier(name))
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	return nil
}

func (a *Adapter) DropDatabase(ctx context.Context, name string) error {
	if _, err := a.db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", name, err)
	}
	return nil
}

const cloneColumnsQuery = `
	SELECT c.TABLE_NAME, c.COLUMN_NAME
	FROM information_schema.COLUMNS c
	JOIN information_schema.TABLES t
	  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
	WHERE c.TABLE_SCHEMA = ?
	  AND t.TABLE_TYPE = 'BASE TABLE'
	  AND c.EXTRA NOT LIKE '%GENERATED%'
	ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

// CloneInto copies every base table into dst with CREATE TABLE ... LIKE,
// which keeps column types, comments and indexes, followed by
// INSERT ... SELECT. Both databases must live on the same server.
func (a *Adapter) CloneInto(ctx context.Context, dst datasource.Pool) error {
	dstCfg := dst.Config()
	if dstCfg.Dialect != a.cfg.Dialect || dstCfg.ServerKey() != a.cfg.ServerKey() {
		return apperrors.ErrCrossServerClone
	}

	tables, columns, err := a.cloneableColumns(ctx)
	if err != nil {
		return err
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	// Rows are copied table by table, so foreign keys cannot be satisfied in order.
	if _, err := conn.ExecContext(ctx, "SET SESSION FOREIGN_KEY_CHECKS = 0"); err != nil {
		return fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SET SESSION FOREIGN_KEY_CHECKS = 1")
	}()

	for _, table := range tables {
		src := qualified(a.cfg.Database, table)
		target := qualified(dstCfg.Database, table)

		if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s LIKE %s", target, src)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}

		quoted := make([]string, len(columns[table]))
		for i, col := range columns[table] {
			quoted[i] = quoteIdentifier(col)
		}
		colList := strings.Join(quoted, ", ")
		copyStmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", target, colList, colList, src)
		if _, err := conn.ExecContext(ctx, copyStmt); err != nil {
			return fmt.Errorf("failed to copy rows of %s: %w", table, err)
		}
	}

	return nil
}

// cloneableColumns returns base table names in order and their non-generated columns.
func (a *Adapter) cloneableColumns(ctx context.Context) ([]string, map[string][]string, error) {
	rows, err := a.db.QueryContext(ctx, cloneColumnsQuery, a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read source columns: %w", err)
	}
	defer rows.Close()

	var tables []string
	columns := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, nil, fmt.Errorf("failed to scan source column: %w", err)
		}
		if _, seen := columns[table]; !seen {
			tables = append(tables, table)
		}
		columns[table] = append(columns[table], column)
	}
	return tables, columns, rows.Err()
}
