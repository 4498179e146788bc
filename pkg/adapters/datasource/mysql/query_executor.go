package mysql

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	sqlutil "github.com/ekaya-inc/ekaya-notebook/pkg/sql"
)

// StatusColumns are the columns of the synthetic row reported for
// statements without a result set.
var StatusColumns = []string{"status", "message", "affected_rows", "insert_id", "warning_count"}

// Run executes every statement of query in order on one connection, so
// session state (variables, temporary tables) carries across them, and
// returns the normalized outcome of the last statement. Statements are not
// wrapped in a transaction. A connection whose session may have changed is
// discarded afterwards instead of returning to the pool.
func (a *Adapter) Run(ctx context.Context, query string) (*datasource.QueryResult, error) {
	statements := sqlutil.SplitStatements(query)
	if len(statements) == 0 {
		return datasource.NewDataResult(nil, nil), nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, &apperrors.ConnectivityError{Target: a.cfg.Database, Err: err}
	}
	defer releaseConn(conn, sqlutil.ChangesSession(statements))

	last := len(statements) - 1
	for _, stmt := range statements[:last] {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, &apperrors.StatementError{Err: err}
		}
	}

	result, err := runFinal(ctx, conn, statements[last])
	if err != nil {
		return nil, &apperrors.StatementError{Err: err}
	}
	return result, nil
}

// releaseConn returns conn to the pool, or closes the underlying driver
// connection when discard is set.
func releaseConn(conn *sql.Conn, discard bool) {
	if discard {
		_ = conn.Raw(func(any) error { return sqldriver.ErrBadConn })
	}
	_ = conn.Close()
}

// runFinal executes the authoritative statement. Row-returning statements go
// through QueryContext; everything else through ExecContext so the driver
// reports affected rows and the insert id.
func runFinal(ctx context.Context, conn *sql.Conn, stmt string) (*datasource.QueryResult, error) {
	if sqlutil.ReturnsRows(stmt) {
		rows, err := conn.QueryContext(ctx, stmt)
		if err != nil {
			return nil, err
		}
		result, err := collectRows(rows)
		closeErr := rows.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		if result != nil {
			return result, nil
		}

		// e.g. SELECT ... INTO @var, or a CALL without result sets
		var affected sql.NullInt64
		var warnings int64
		if err := conn.QueryRowContext(ctx, "SELECT ROW_COUNT(), @@warning_count").Scan(&affected, &warnings); err != nil {
			return nil, err
		}
		return statusResult(affected.Int64, 0, warnings), nil
	}

	res, err := conn.ExecContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	insertID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	var warnings int64
	if err := conn.QueryRowContext(ctx, "SELECT @@warning_count").Scan(&warnings); err != nil {
		return nil, err
	}

	return statusResult(affected, insertID, warnings), nil
}

func statusResult(affected, insertID, warnings int64) *datasource.QueryResult {
	return datasource.NewStatusResult(StatusColumns, []any{
		"Success",
		fmt.Sprintf("Rows affected: %d", affected),
		affected,
		insertID,
		warnings,
	})
}

// collectRows reads every result set and keeps the last one that has
// columns. Returns nil when no result set had columns.
func collectRows(rows *sql.Rows) (*datasource.QueryResult, error) {
	var last *datasource.QueryResult
	for {
		columnNames, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to get columns: %w", err)
		}

		if len(columnNames) > 0 {
			columnTypes, err := rows.ColumnTypes()
			if err != nil {
				return nil, fmt.Errorf("failed to get column types: %w", err)
			}

			records := make([]datasource.Record, 0)
			for rows.Next() {
				values := make([]any, len(columnNames))
				valuePtrs := make([]any, len(columnNames))
				for i := range values {
					valuePtrs[i] = &values[i]
				}
				if err := rows.Scan(valuePtrs...); err != nil {
					return nil, fmt.Errorf("failed to scan row: %w", err)
				}
				for i := range values {
					values[i] = convertValue(values[i], columnTypes[i].DatabaseTypeName())
				}
				records = append(records, datasource.NewRecord(columnNames, values))
			}
			if err := rows.Err(); err != nil {
				return nil, err
			}
			last = datasource.NewDataResult(columnNames, records)
		}

		if !rows.NextResultSet() {
			break
		}
	}
	return last, rows.Err()
}

// convertValue turns driver byte slices into JSON-friendly values by column
// type. DECIMAL stays a string so no precision is lost.
func convertValue(val any, dbType string) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}

	typeName := strings.TrimPrefix(strings.ToUpper(dbType), "UNSIGNED ")
	s := string(b)

	switch typeName {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
		return s
	case "FLOAT", "DOUBLE", "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return b
	default:
		return s
	}
}
