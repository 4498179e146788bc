package mysql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

const listTablesQuery = `
	SELECT c.TABLE_NAME, c.COLUMN_NAME, UPPER(c.COLUMN_TYPE), COALESCE(c.COLUMN_COMMENT, '')
	FROM information_schema.COLUMNS c
	JOIN information_schema.TABLES t
	  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
	WHERE c.TABLE_SCHEMA = ?
	  AND t.TABLE_TYPE = 'BASE TABLE'
	  AND LEFT(c.TABLE_NAME, 2) <> ?
	ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

// ListTables reads base tables and their columns from information_schema in
// one round trip. Row counts are left unknown.
func (a *Adapter) ListTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	rows, err := a.db.QueryContext(ctx, listTablesQuery, a.cfg.Database, datasource.SystemTablePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]datasource.TableMetadata, 0)
	index := make(map[string]int)
	for rows.Next() {
		var tableName string
		var col datasource.Column
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &col.Comment); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		i, ok := index[tableName]
		if !ok {
			i = len(tables)
			index[tableName] = i
			tables = append(tables, datasource.TableMetadata{
				ID:        tableName,
				TableName: tableName,
				Columns:   make([]datasource.Column, 0),
				RowCount:  datasource.UnknownRowCount,
			})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	return tables, nil
}

// CountRows returns the exact row count of a table in the pool's database.
func (a *Adapter) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + quoteIdentifier(table)
	if err := a.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}
