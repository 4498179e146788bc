package postgres

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	sqlutil "github.com/ekaya-inc/ekaya-notebook/pkg/sql"
)

// StatusColumns are the columns of the synthetic row reported for
// statements without a result set.
var StatusColumns = []string{"status", "command", "affected_rows"}

// Run sends the whole string once over the simple query protocol. The server
// returns one result per statement; the last one is normalized. A
// multi-statement string without explicit BEGIN/COMMIT runs in one implicit
// transaction. A connection whose session may have changed is closed
// afterwards instead of returning to the pool.
func (a *Adapter) Run(ctx context.Context, query string) (*datasource.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return datasource.NewDataResult(nil, nil), nil
	}

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, &apperrors.ConnectivityError{Target: a.cfg.Database, Err: err}
	}
	discard := sqlutil.ChangesSession(sqlutil.SplitStatements(query))
	defer func() { releaseConn(conn, discard) }()

	results, err := conn.Conn().PgConn().Exec(ctx, query).ReadAll()
	if len(results) > 1 {
		discard = true
	}
	if err != nil {
		return nil, &apperrors.StatementError{Err: err}
	}

	return normalizeResults(conn.Conn().TypeMap(), results), nil
}

// releaseConn returns conn to the pool, or removes and closes it when
// discard is set.
func releaseConn(conn *pgxpool.Conn, discard bool) {
	if !discard {
		conn.Release()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Hijack().Close(ctx)
}

// normalizeResults turns the last simple-protocol result into a QueryResult.
func normalizeResults(m *pgtype.Map, results []*pgconn.Result) *datasource.QueryResult {
	if len(results) == 0 {
		return datasource.NewDataResult(nil, nil)
	}
	last := results[len(results)-1]

	if len(last.FieldDescriptions) == 0 {
		tag := last.CommandTag.String()
		if tag == "" {
			return datasource.NewDataResult(nil, nil)
		}
		return datasource.NewStatusResult(StatusColumns, []any{
			"Success",
			commandVerb(tag),
			last.CommandTag.RowsAffected(),
		})
	}

	columns := make([]string, len(last.FieldDescriptions))
	for i, fd := range last.FieldDescriptions {
		columns[i] = fd.Name
	}

	records := make([]datasource.Record, 0, len(last.Rows))
	for _, raw := range last.Rows {
		values := make([]any, len(raw))
		for i, src := range raw {
			values[i] = decodeValue(m, last.FieldDescriptions[i], src)
		}
		records = append(records, datasource.NewRecord(columns, values))
	}

	return datasource.NewDataResult(columns, records)
}

// commandVerb returns the leading word of a command tag ("INSERT 0 1" -> "INSERT").
func commandVerb(tag string) string {
	if i := strings.IndexByte(tag, ' '); i >= 0 {
		return tag[:i]
	}
	return tag
}

// decodeValue decodes one wire value with the connection's type map. Values
// that would not survive JSON encoding fall back to their text form.
func decodeValue(m *pgtype.Map, fd pgconn.FieldDescription, src []byte) any {
	if src == nil {
		return nil
	}
	if fd.DataTypeOID == pgtype.NumericOID {
		return string(src)
	}

	t, ok := m.TypeForOID(fd.DataTypeOID)
	if !ok {
		return string(src)
	}
	val, err := t.Codec.DecodeValue(m, fd.DataTypeOID, fd.Format, src)
	if err != nil {
		return string(src)
	}

	switch v := val.(type) {
	case nil, bool, string, []byte, time.Time,
		int8, int16, int32, int64, int, uint8, uint16, uint32, uint64,
		map[string]any, []any:
		return v
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return string(src)
		}
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return string(src)
		}
		return v
	case [16]byte:
		return uuid.UUID(v).String()
	case json.RawMessage:
		return v
	default:
		if fd.Format == pgtype.TextFormatCode {
			return string(src)
		}
		if s, ok := val.(interface{ String() string }); ok {
			return s.String()
		}
		return string(src)
	}
}
