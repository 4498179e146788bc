package handlers

import (
	"context"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
	"github.com/ekaya-inc/ekaya-notebook/pkg/python"
	"github.com/ekaya-inc/ekaya-notebook/pkg/services"
)

type mockQueryService struct {
	runFunc func(ctx context.Context, dbName, sql, clientIP string) (*datasource.QueryResult, error)
}

func (m *mockQueryService) Run(ctx context.Context, dbName, sql, clientIP string) (*datasource.QueryResult, error) {
	return m.runFunc(ctx, dbName, sql, clientIP)
}

type mockPythonService struct {
	got         services.PythonRequest
	executeFunc func(req services.PythonRequest) (*python.Result, error)
}

func (m *mockPythonService) Execute(_ context.Context, req services.PythonRequest) (*python.Result, error) {
	m.got = req
	return m.executeFunc(req)
}

// mockNotebookService implements services.NotebookService. Unset funcs panic.
type mockNotebookService struct {
	createFunc    func(topic, icon string) (*models.Notebook, error)
	connectFunc   func(topic, icon, dbName string) (*models.Notebook, error)
	cloneFunc     func(id string) (*models.Notebook, error)
	getFunc       func(id string) (*models.Notebook, error)
	listFunc      func() ([]*models.Notebook, error)
	openFunc      func(id string) (*models.Notebook, error)
	deleteFunc    func(id string) (*services.DeleteResult, error)
	tablesFunc    func(id string, refresh bool) ([]datasource.TableMetadata, error)
	databasesFunc func() ([]string, error)
}

var _ services.NotebookService = (*mockNotebookService)(nil)

func (m *mockNotebookService) Create(_ context.Context, topic, icon string) (*models.Notebook, error) {
	return m.createFunc(topic, icon)
}

func (m *mockNotebookService) Connect(_ context.Context, topic, icon, dbName string) (*models.Notebook, error) {
	return m.connectFunc(topic, icon, dbName)
}

func (m *mockNotebookService) Clone(_ context.Context, id string) (*models.Notebook, error) {
	return m.cloneFunc(id)
}

func (m *mockNotebookService) Get(_ context.Context, id string) (*models.Notebook, error) {
	return m.getFunc(id)
}

func (m *mockNotebookService) List(context.Context) ([]*models.Notebook, error) {
	return m.listFunc()
}

func (m *mockNotebookService) Open(_ context.Context, id string) (*models.Notebook, error) {
	return m.openFunc(id)
}

func (m *mockNotebookService) Delete(_ context.Context, id string) (*services.DeleteResult, error) {
	return m.deleteFunc(id)
}

func (m *mockNotebookService) Tables(_ context.Context, id string, refresh bool) ([]datasource.TableMetadata, error) {
	return m.tablesFunc(id, refresh)
}

func (m *mockNotebookService) ListDatabases(context.Context) ([]string, error) {
	return m.databasesFunc()
}

type mockMetadataService struct {
	inferFunc func(id string) (*services.MetadataInference, error)
}

func (m *mockMetadataService) Infer(_ context.Context, id string) (*services.MetadataInference, error) {
	return m.inferFunc(id)
}
