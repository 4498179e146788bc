package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

// userTableFilter matches the tables a notebook sees: plain tables and
// partitioned parents, never the partitions themselves. The alias is c.
const userTableFilter = `c.relkind IN ('r', 'p') AND NOT c.relispartition`

const listTablesQuery = `
	SELECT c.relname,
	       a.attname,
	       format_type(a.atttypid, a.atttypmod),
	       COALESCE(d.description, '')
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid
	LEFT JOIN pg_catalog.pg_description d
	  ON d.objoid = c.oid AND d.objsubid = a.attnum AND d.classoid = 'pg_catalog.pg_class'::regclass
	WHERE n.nspname = current_schema()
	  AND ` + userTableFilter + `
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	  AND left(c.relname, 2) <> $1
	ORDER BY c.relname, a.attnum`

// ListTables reads user tables of the current schema from pg_catalog, which
// also carries column comments. Partitions are folded into their parent.
// Row counts are left unknown.
func (a *Adapter) ListTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	rows, err := a.pool.Query(ctx, listTablesQuery, datasource.SystemTablePrefix)
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
		col.Type = strings.ToUpper(col.Type)

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

// CountRows returns the exact row count of a table in the current schema.
func (a *Adapter) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + quoteIdentifier(table)
	if err := a.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}
