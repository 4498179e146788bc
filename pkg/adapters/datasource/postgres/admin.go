package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
)

const duplicateDatabaseCode = "42P04"

// ListDatabases returns every non-template database except the maintenance one.
func (a *Adapter) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx, "SELECT datname FROM pg_catalog.pg_database WHERE NOT datistemplate ORDER BY datname")
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
		if slices.Contains(systemDatabases, name) {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (a *Adapter) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_database WHERE datname = $1)", name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check database %s: %w", name, err)
	}
	return exists, nil
}

// CreateDatabase creates name. An existing database is not an error.
func (a *Adapter) CreateDatabase(ctx context.Context, name string) error {
	_, err := a.pool.Exec(ctx, "CREATE DATABASE "+quoteIdentifier(name))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateDatabaseCode {
			return nil
		}
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	return nil
}

// DropDatabase terminates other sessions on name, then drops it.
func (a *Adapter) DropDatabase(ctx context.Context, name string) error {
	_, err := a.pool.Exec(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_catalog.pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
		name,
	)
	if err != nil {
		return fmt.Errorf("failed to terminate sessions on %s: %w", name, err)
	}

	if _, err := a.pool.Exec(ctx, "DROP DATABASE IF EXISTS "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", name, err)
	}
	return nil
}

// cloneColumn describes one source column as needed to recreate it.
type cloneColumn struct {
	Name      string
	Type      string
	NotNull   bool
	Default   string
	Identity  string // "a" (ALWAYS), "d" (BY DEFAULT) or ""
	Generated string // "s" (STORED) or ""
	Comment   string
}

type cloneTable struct {
	Name        string
	Columns     []cloneColumn
	Constraints []cloneConstraint
}

type cloneConstraint struct {
	Name       string
	Definition string
}

// copyColumns are the columns COPY writes; generated columns are computed.
func (t cloneTable) copyColumns() []string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Generated == "" {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// sequenceColumns are columns backed by a sequence that must be advanced
// past the copied values.
func (t cloneTable) sequenceColumns() []string {
	var cols []string
	for _, c := range t.Columns {
		if c.Identity != "" || isSerialDefault(c.Default) {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

const cloneColumnsQuery = `
	SELECT c.relname,
	       a.attname,
	       format_type(a.atttypid, a.atttypmod),
	       a.attnotnull,
	       COALESCE(pg_get_expr(ad.adbin, ad.adrelid), ''),
	       a.attidentity::text,
	       a.attgenerated::text,
	       COALESCE(col_description(c.oid, a.attnum), '')
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid
	LEFT JOIN pg_catalog.pg_attrdef ad ON ad.adrelid = c.oid AND ad.adnum = a.attnum
	WHERE n.nspname = current_schema()
	  AND ` + userTableFilter + `
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	ORDER BY c.relname, a.attnum`

const cloneConstraintsQuery = `
	SELECT c.relname, con.conname, con.contype::text, pg_get_constraintdef(con.oid)
	FROM pg_catalog.pg_constraint con
	JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = current_schema()
	  AND ` + userTableFilter + `
	  AND con.contype IN ('p', 'u', 'c', 'f')
	ORDER BY c.relname, con.conname`

const cloneIndexesQuery = `
	SELECT pg_get_indexdef(ix.indexrelid)
	FROM pg_catalog.pg_index ix
	JOIN pg_catalog.pg_class c ON c.oid = ix.indrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = current_schema()
	  AND ` + userTableFilter + `
	  AND NOT EXISTS (SELECT 1 FROM pg_catalog.pg_constraint con WHERE con.conindid = ix.indexrelid)
	ORDER BY 1`

// CloneInto rebuilds every user table in dst column by column, streams rows
// with COPY, then restores foreign keys, indexes, comments and sequence
// positions. A partitioned table arrives as one plain table holding the rows
// of all its partitions. Works across servers as long as dst is PostgreSQL.
func (a *Adapter) CloneInto(ctx context.Context, dst datasource.Pool) error {
	target, ok := dst.(*Adapter)
	if !ok {
		return apperrors.ErrCrossServerClone
	}

	tables, foreignKeys, err := a.describeTables(ctx)
	if err != nil {
		return err
	}
	indexes, err := a.describeIndexes(ctx)
	if err != nil {
		return err
	}

	for _, table := range tables {
		if _, err := target.pool.Exec(ctx, buildCreateTable(table)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
		if err := a.copyTable(ctx, target, table); err != nil {
			return err
		}
	}

	for _, fk := range foreignKeys {
		if _, err := target.pool.Exec(ctx, fk); err != nil {
			return fmt.Errorf("failed to add foreign key: %w", err)
		}
	}
	for _, idx := range indexes {
		if _, err := target.pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	for _, table := range tables {
		for _, stmt := range buildComments(table) {
			if _, err := target.pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to set comment on %s: %w", table.Name, err)
			}
		}
		for _, col := range table.sequenceColumns() {
			if _, err := target.pool.Exec(ctx, buildSetval(table.Name, col)); err != nil {
				return fmt.Errorf("failed to advance sequence of %s.%s: %w", table.Name, col, err)
			}
		}
	}

	return nil
}

// copyTable streams rows of table from this pool into target.
func (a *Adapter) copyTable(ctx context.Context, target *Adapter, table cloneTable) error {
	columns := table.copyColumns()
	if len(columns) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(c)
	}
	rows, err := a.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdentifier(table.Name)))
	if err != nil {
		return fmt.Errorf("failed to read rows of %s: %w", table.Name, err)
	}
	defer rows.Close()

	source := pgx.CopyFromFunc(func() ([]any, error) {
		if !rows.Next() {
			return nil, rows.Err()
		}
		return rows.Values()
	})

	if _, err := target.pool.CopyFrom(ctx, pgx.Identifier{table.Name}, columns, source); err != nil {
		return fmt.Errorf("failed to copy rows of %s: %w", table.Name, err)
	}
	return nil
}

// describeTables reads columns and constraints of every base table. Foreign
// keys come back as ALTER TABLE statements to run after all rows are copied.
func (a *Adapter) describeTables(ctx context.Context) ([]cloneTable, []string, error) {
	rows, err := a.pool.Query(ctx, cloneColumnsQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read source columns: %w", err)
	}
	defer rows.Close()

	var tables []cloneTable
	index := make(map[string]int)
	for rows.Next() {
		var tableName string
		var col cloneColumn
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &col.NotNull, &col.Default, &col.Identity, &col.Generated, &col.Comment); err != nil {
			return nil, nil, fmt.Errorf("failed to scan source column: %w", err)
		}
		i, ok := index[tableName]
		if !ok {
			i = len(tables)
			index[tableName] = i
			tables = append(tables, cloneTable{Name: tableName})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating source columns: %w", err)
	}
	rows.Close()

	crows, err := a.pool.Query(ctx, cloneConstraintsQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read source constraints: %w", err)
	}
	defer crows.Close()

	var foreignKeys []string
	for crows.Next() {
		var tableName, kind string
		var con cloneConstraint
		if err := crows.Scan(&tableName, &con.Name, &kind, &con.Definition); err != nil {
			return nil, nil, fmt.Errorf("failed to scan source constraint: %w", err)
		}
		if kind == "f" {
			foreignKeys = append(foreignKeys, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s",
				quoteIdentifier(tableName), quoteIdentifier(con.Name), con.Definition))
			continue
		}
		if i, ok := index[tableName]; ok {
			tables[i].Constraints = append(tables[i].Constraints, con)
		}
	}
	if err := crows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating source constraints: %w", err)
	}

	return tables, foreignKeys, nil
}

func (a *Adapter) describeIndexes(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx, cloneIndexesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to read source indexes: %w", err)
	}
	defer rows.Close()

	var defs []string
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, fmt.Errorf("failed to scan source index: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// buildCreateTable renders the DDL for one table.
func buildCreateTable(t cloneTable) string {
	parts := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		parts = append(parts, buildColumnDef(c))
	}
	for _, con := range t.Constraints {
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s %s", quoteIdentifier(con.Name), con.Definition))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quoteIdentifier(t.Name), strings.Join(parts, ",\n  "))
}

func buildColumnDef(c cloneColumn) string {
	var b strings.Builder
	b.WriteString(quoteIdentifier(c.Name))
	b.WriteByte(' ')

	switch {
	case c.Generated == "s":
		fmt.Fprintf(&b, "%s GENERATED ALWAYS AS (%s) STORED", c.Type, c.Default)
		return b.String()
	case isSerialDefault(c.Default):
		b.WriteString(serialType(c.Type))
	default:
		b.WriteString(c.Type)
	}

	if c.NotNull {
		b.WriteString(" NOT NULL")
	}

	switch c.Identity {
	case "a":
		b.WriteString(" GENERATED ALWAYS AS IDENTITY")
	case "d":
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
	default:
		if c.Default != "" && !isSerialDefault(c.Default) {
			b.WriteString(" DEFAULT ")
			b.WriteString(c.Default)
		}
	}
	return b.String()
}

func isSerialDefault(def string) bool {
	return strings.HasPrefix(def, "nextval(")
}

// serialType maps an integer type with a nextval default to its serial
// shorthand, so the clone owns a fresh sequence.
func serialType(typ string) string {
	switch typ {
	case "smallint":
		return "smallserial"
	case "bigint":
		return "bigserial"
	case "integer":
		return "serial"
	default:
		return typ
	}
}

func buildComments(t cloneTable) []string {
	var stmts []string
	for _, c := range t.Columns {
		if c.Comment == "" {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s",
			quoteIdentifier(t.Name), quoteIdentifier(c.Name), quoteLiteral(c.Comment)))
	}
	return stmts
}

// buildSetval moves the column's sequence past the largest copied value.
// An empty table leaves the sequence at its start.
func buildSetval(table, column string) string {
	qt, qc := quoteIdentifier(table), quoteIdentifier(column)
	return fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence(%s, %s), COALESCE(MAX(%s), 1), MAX(%s) IS NOT NULL) FROM %s",
		quoteLiteral(qt), quoteLiteral(column), qc, qc, qt,
	)
}
