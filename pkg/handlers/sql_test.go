package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
)

func serveSQL(t *testing.T, svc *mockQueryService, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewSQLHandler(svc, zap.NewNop()).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/sql", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSQLHandler_Run(t *testing.T) {
	svc := &mockQueryService{runFunc: func(_ context.Context, dbName, sql, _ string) (*datasource.QueryResult, error) {
		assert.Equal(t, "shop", dbName)
		assert.Equal(t, "SELECT 2 AS b, 1 AS a", sql)
		return datasource.NewDataResult([]string{"b", "a"}, []datasource.Record{
			datasource.NewRecord([]string{"b", "a"}, []any{2, 1}),
		}), nil
	}}

	rec := serveSQL(t, svc, `{"sql":"SELECT 2 AS b, 1 AS a","dbName":"shop"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"rows":[{"b":2,"a":1}],"columns":["b","a"]}`, strings.TrimSpace(rec.Body.String()),
		"row keys keep column order")
}

func TestSQLHandler_Run_StatusResult(t *testing.T) {
	svc := &mockQueryService{runFunc: func(context.Context, string, string, string) (*datasource.QueryResult, error) {
		return datasource.NewStatusResult(
			[]string{"status", "command", "affected_rows"},
			[]any{"Success", "UPDATE", int64(3)},
		), nil
	}}

	rec := serveSQL(t, svc, `{"sql":"UPDATE t SET x = 1","dbName":"nb_1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows":[{"status":"Success","command":"UPDATE","affected_rows":3}],"columns":["status","command","affected_rows"]}`, rec.Body.String())
}

func TestSQLHandler_Run_Validation(t *testing.T) {
	svc := &mockQueryService{runFunc: func(context.Context, string, string, string) (*datasource.QueryResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{`, "invalid_request"},
		{"missing sql", `{"dbName":"shop"}`, "missing_sql"},
		{"missing db", `{"sql":"SELECT 1"}`, "missing_db_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveSQL(t, svc, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestSQLHandler_Run_DriverErrorIs500WithMessage(t *testing.T) {
	svc := &mockQueryService{runFunc: func(context.Context, string, string, string) (*datasource.QueryResult, error) {
		return nil, &apperrors.StatementError{Err: errors.New("Unknown column 'nope' in 'field list'")}
	}}

	rec := serveSQL(t, svc, `{"sql":"SELECT nope","dbName":"shop"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "query_failed", body["error"])
	assert.Equal(t, "Unknown column 'nope' in 'field list'", body["message"])
}

func TestSQLHandler_Run_WrongMethod(t *testing.T) {
	mux := http.NewServeMux()
	NewSQLHandler(&mockQueryService{}, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sql", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
