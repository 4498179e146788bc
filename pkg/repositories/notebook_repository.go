package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
)

// NotebookRepository defines the interface for notebook registry access.
type NotebookRepository interface {
	Create(ctx context.Context, nb *models.Notebook) error

	// Get returns apperrors.ErrNotFound when no notebook has the id.
	Get(ctx context.Context, id string) (*models.Notebook, error)

	// List returns notebooks, newest first.
	List(ctx context.Context) ([]*models.Notebook, error)

	UpdateSuggestions(ctx context.Context, id string, suggestions []string) error
	IncrementViews(ctx context.Context, id string) error

	// Delete removes the registry row. Returns apperrors.ErrNotFound when
	// nothing was deleted.
	Delete(ctx context.Context, id string) error
}

type notebookRepository struct {
	db systemDB
}

var _ NotebookRepository = (*notebookRepository)(nil)

// NewNotebookRepository creates a notebook repository over the system database.
func NewNotebookRepository(pools datasource.PoolProvider, systemDatabase string) NotebookRepository {
	return &notebookRepository{db: systemDB{pools: pools, database: systemDatabase}}
}

const notebookColumns = "id, db_name, topic, icon, suggestions, created_at, views, is_owner"

func (r *notebookRepository) Create(ctx context.Context, nb *models.Notebook) error {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return err
	}

	suggestions, err := marshalSuggestions(nb.Suggestions)
	if err != nil {
		return err
	}

	query := "INSERT INTO notebooks (" + notebookColumns + ") VALUES (" + placeholders(8) + ")"
	if _, err := pool.Exec(ctx, query,
		nb.ID, nb.DBName, nb.Topic, nb.Icon, suggestions, nb.CreatedAt, nb.Views, nb.IsOwner,
	); err != nil {
		return fmt.Errorf("failed to create notebook: %w", err)
	}
	return nil
}

func (r *notebookRepository) Get(ctx context.Context, id string) (*models.Notebook, error) {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, "SELECT "+notebookColumns+" FROM notebooks WHERE id = ?", id)
	nb, err := scanNotebook(row)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("notebook %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get notebook: %w", err)
	}
	return nb, nil
}

func (r *notebookRepository) List(ctx context.Context) ([]*models.Notebook, error) {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, "SELECT "+notebookColumns+" FROM notebooks ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}
	defer rows.Close()

	notebooks := make([]*models.Notebook, 0)
	for rows.Next() {
		nb, err := scanNotebook(rows)
		if err != nil {
			return nil, err
		}
		notebooks = append(notebooks, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notebooks: %w", err)
	}
	return notebooks, nil
}

func (r *notebookRepository) UpdateSuggestions(ctx context.Context, id string, suggestions []string) error {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return err
	}

	encoded, err := marshalSuggestions(suggestions)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, "UPDATE notebooks SET suggestions = ? WHERE id = ?", encoded, id); err != nil {
		return fmt.Errorf("failed to update suggestions: %w", err)
	}
	return nil
}

func (r *notebookRepository) IncrementViews(ctx context.Context, id string) error {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, "UPDATE notebooks SET views = views + 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

func (r *notebookRepository) Delete(ctx context.Context, id string) error {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return err
	}

	n, err := pool.Exec(ctx, "DELETE FROM notebooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete notebook: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notebook %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func scanNotebook(row datasource.Row) (*models.Notebook, error) {
	var nb models.Notebook
	var suggestions string
	if err := row.Scan(&nb.ID, &nb.DBName, &nb.Topic, &nb.Icon, &suggestions, &nb.CreatedAt, &nb.Views, &nb.IsOwner); err != nil {
		return nil, err
	}
	nb.Suggestions = unmarshalSuggestions(suggestions)
	return &nb, nil
}

func marshalSuggestions(suggestions []string) (string, error) {
	if suggestions == nil {
		suggestions = []string{}
	}
	b, err := json.Marshal(suggestions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal suggestions: %w", err)
	}
	return string(b), nil
}

// unmarshalSuggestions tolerates empty or malformed text from older rows.
func unmarshalSuggestions(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}
