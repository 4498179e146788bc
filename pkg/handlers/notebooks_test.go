package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/llm"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
	"github.com/ekaya-inc/ekaya-notebook/pkg/services"
)

func serveNotebooks(svc *mockNotebookService, meta *mockMetadataService, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	if meta == nil {
		meta = &mockMetadataService{}
	}
	NewNotebooksHandler(svc, meta, zap.NewNop()).RegisterRoutes(mux)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestNotebooksHandler_Create(t *testing.T) {
	svc := &mockNotebookService{createFunc: func(topic, icon string) (*models.Notebook, error) {
		return &models.Notebook{ID: "abc", DBName: "nb_abc", Topic: topic, Icon: icon, Suggestions: []string{}, IsOwner: true}, nil
	}}

	rec := serveNotebooks(svc, nil, http.MethodPost, "/api/notebooks", `{"topic":"Sales","icon":"📈"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var nb models.Notebook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nb))
	assert.Equal(t, "nb_abc", nb.DBName)
	assert.Equal(t, "Sales", nb.Topic)
	assert.True(t, nb.IsOwner)
}

func TestNotebooksHandler_Create_ConnectsExistingDatabase(t *testing.T) {
	svc := &mockNotebookService{connectFunc: func(topic, _, dbName string) (*models.Notebook, error) {
		return &models.Notebook{ID: "abc", DBName: dbName, Topic: topic}, nil
	}}

	rec := serveNotebooks(svc, nil, http.MethodPost, "/api/notebooks", `{"topic":"DW","dbName":"postgres://u:p@h/dw"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isOwner":false`)
}

func TestNotebooksHandler_Create_RequiresTopic(t *testing.T) {
	rec := serveNotebooks(&mockNotebookService{}, nil, http.MethodPost, "/api/notebooks", `{"icon":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotebooksHandler_Clone(t *testing.T) {
	svc := &mockNotebookService{cloneFunc: func(id string) (*models.Notebook, error) {
		assert.Equal(t, "src", id)
		return &models.Notebook{ID: "copy", DBName: "nb_copy", IsOwner: true}, nil
	}}

	rec := serveNotebooks(svc, nil, http.MethodPost, "/api/notebooks/src/clone", "")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dbName":"nb_copy"`)
}

func TestNotebooksHandler_Delete(t *testing.T) {
	svc := &mockNotebookService{deleteFunc: func(id string) (*services.DeleteResult, error) {
		return &services.DeleteResult{Success: true, Dropped: true}, nil
	}}

	rec := serveNotebooks(svc, nil, http.MethodDelete, "/api/notebooks/n1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"dropped":true}`, rec.Body.String())
}

func TestNotebooksHandler_NotFoundIs404(t *testing.T) {
	notFound := fmt.Errorf("notebook n1: %w", apperrors.ErrNotFound)
	svc := &mockNotebookService{
		deleteFunc: func(string) (*services.DeleteResult, error) { return nil, notFound },
		openFunc:   func(string) (*models.Notebook, error) { return nil, notFound },
		cloneFunc:  func(string) (*models.Notebook, error) { return nil, notFound },
		tablesFunc: func(string, bool) ([]datasource.TableMetadata, error) { return nil, notFound },
	}

	for _, c := range []struct{ method, target string }{
		{http.MethodDelete, "/api/notebooks/n1"},
		{http.MethodGet, "/api/notebooks/n1"},
		{http.MethodPost, "/api/notebooks/n1/clone"},
		{http.MethodGet, "/api/notebooks/n1/tables"},
	} {
		rec := serveNotebooks(svc, nil, c.method, c.target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", c.method, c.target)
	}
}

func TestNotebooksHandler_Tables(t *testing.T) {
	var gotRefresh []bool
	svc := &mockNotebookService{tablesFunc: func(id string, refresh bool) ([]datasource.TableMetadata, error) {
		gotRefresh = append(gotRefresh, refresh)
		return []datasource.TableMetadata{{
			ID:        "orders",
			TableName: "orders",
			Columns:   []datasource.Column{{Name: "id", Type: "INT", Comment: ""}},
			RowCount:  datasource.UnknownRowCount,
		}}, nil
	}}

	rec := serveNotebooks(svc, nil, http.MethodGet, "/api/notebooks/n1/tables", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"orders","tableName":"orders","columns":[{"name":"id","type":"INT","comment":""}],"rowCount":-1}]`, rec.Body.String())

	serveNotebooks(svc, nil, http.MethodGet, "/api/notebooks/n1/tables?refresh=true", "")
	assert.Equal(t, []bool{false, true}, gotRefresh)
}

func TestNotebooksHandler_ListDatabases(t *testing.T) {
	svc := &mockNotebookService{databasesFunc: func() ([]string, error) {
		return []string{"shop", "nb_1"}, nil
	}}

	rec := serveNotebooks(svc, nil, http.MethodGet, "/api/databases", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["shop","nb_1"]`, rec.Body.String())
}

func TestNotebooksHandler_InferMetadata(t *testing.T) {
	meta := &mockMetadataService{inferFunc: func(id string) (*services.MetadataInference, error) {
		return &services.MetadataInference{
			Comments:    map[string]map[string]string{"orders": {"id": "Order key"}},
			Suggestions: []string{"Revenue by month?"},
		}, nil
	}}

	rec := serveNotebooks(&mockNotebookService{}, meta, http.MethodPost, "/api/notebooks/n1/metadata", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"comments":{"orders":{"id":"Order key"}},"suggestions":["Revenue by month?"]}`, rec.Body.String())
}

func TestNotebooksHandler_InferMetadata_NotConfigured(t *testing.T) {
	meta := &mockMetadataService{inferFunc: func(string) (*services.MetadataInference, error) {
		return nil, llm.ErrNotConfigured
	}}

	rec := serveNotebooks(&mockNotebookService{}, meta, http.MethodPost, "/api/notebooks/n1/metadata", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
