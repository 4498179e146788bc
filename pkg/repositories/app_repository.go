package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
)

// AppRepository defines the interface for published app access.
type AppRepository interface {
	Create(ctx context.Context, app *models.App) error
	Get(ctx context.Context, id string) (*models.App, error)
	ListBySourceNotebook(ctx context.Context, notebookID string) ([]*models.App, error)

	// DeleteBySourceNotebook removes every app published from the notebook
	// and returns their ids.
	DeleteBySourceNotebook(ctx context.Context, notebookID string) ([]string, error)
}

type appRepository struct {
	db systemDB
}

var _ AppRepository = (*appRepository)(nil)

// NewAppRepository creates an app repository over the system database.
func NewAppRepository(pools datasource.PoolProvider, systemDatabase string) AppRepository {
	return &appRepository{db: systemDB{pools: pools, database: systemDatabase}}
}

const appColumns = "id, title, description, prompt, author, type, code, source_db, source_notebook_id, params_schema, snapshot, created_at, views"

func (r *appRepository) Create(ctx context.Context, app *models.App) error {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return err
	}

	query := "INSERT INTO apps (" + appColumns + ") VALUES (" + placeholders(13) + ")"
	if _, err := pool.Exec(ctx, query,
		app.ID, app.Title, app.Description, app.Prompt, app.Author, app.Type, app.Code,
		app.SourceDB, app.SourceNotebookID, jsonText(app.ParamsSchema, "{}"), jsonText(app.Snapshot, "null"),
		app.CreatedAt, app.Views,
	); err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	return nil
}

func (r *appRepository) Get(ctx context.Context, id string) (*models.App, error) {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return nil, err
	}

	app, err := scanApp(pool.QueryRow(ctx, "SELECT "+appColumns+" FROM apps WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("app %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return app, nil
}

func (r *appRepository) ListBySourceNotebook(ctx context.Context, notebookID string) ([]*models.App, error) {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, "SELECT "+appColumns+" FROM apps WHERE source_notebook_id = ? ORDER BY created_at, id", notebookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	apps := make([]*models.App, 0)
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating apps: %w", err)
	}
	return apps, nil
}

func (r *appRepository) DeleteBySourceNotebook(ctx context.Context, notebookID string) ([]string, error) {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, "SELECT id FROM apps WHERE source_notebook_id = ?", notebookID)
	if err != nil {
		return nil, fmt.Errorf("failed to find apps of notebook: %w", err)
	}
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan app id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating app ids: %w", err)
	}

	if _, err := pool.Exec(ctx, "DELETE FROM apps WHERE source_notebook_id = ?", notebookID); err != nil {
		return nil, fmt.Errorf("failed to delete apps of notebook: %w", err)
	}
	return ids, nil
}

func scanApp(row datasource.Row) (*models.App, error) {
	var app models.App
	var paramsSchema, snapshot string
	if err := row.Scan(
		&app.ID, &app.Title, &app.Description, &app.Prompt, &app.Author, &app.Type, &app.Code,
		&app.SourceDB, &app.SourceNotebookID, &paramsSchema, &snapshot, &app.CreatedAt, &app.Views,
	); err != nil {
		return nil, err
	}
	app.ParamsSchema = rawJSON(paramsSchema)
	app.Snapshot = rawJSON(snapshot)
	return &app, nil
}
