package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
)

// ShareRepository defines the interface for share snapshot access.
type ShareRepository interface {
	Create(ctx context.Context, share *models.Share) error
	Get(ctx context.Context, id string) (*models.Share, error)

	// DeleteByApps removes every share of the given apps.
	DeleteByApps(ctx context.Context, appIDs []string) (int64, error)
}

type shareRepository struct {
	db systemDB
}

var _ ShareRepository = (*shareRepository)(nil)

// NewShareRepository creates a share repository over the system database.
func NewShareRepository(pools datasource.PoolProvider, systemDatabase string) ShareRepository {
	return &shareRepository{db: systemDB{pools: pools, database: systemDatabase}}
}

func (r *shareRepository) Create(ctx context.Context, share *models.Share) error {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx,
		"INSERT INTO shares (id, app_id, params, created_at) VALUES (?, ?, ?, ?)",
		share.ID, share.AppID, jsonText(share.Params, "{}"), share.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	return nil
}

func (r *shareRepository) Get(ctx context.Context, id string) (*models.Share, error) {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return nil, err
	}

	var share models.Share
	var params string
	err = pool.QueryRow(ctx, "SELECT id, app_id, params, created_at FROM shares WHERE id = ?", id).
		Scan(&share.ID, &share.AppID, &params, &share.CreatedAt)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("share %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	share.Params = rawJSON(params)
	return &share, nil
}

func (r *shareRepository) DeleteByApps(ctx context.Context, appIDs []string) (int64, error) {
	if len(appIDs) == 0 {
		return 0, nil
	}

	pool, err := r.db.pool(ctx)
	if err != nil {
		return 0, err
	}

	args := make([]any, len(appIDs))
	for i, id := range appIDs {
		args[i] = id
	}
	n, err := pool.Exec(ctx, "DELETE FROM shares WHERE app_id IN ("+placeholders(len(appIDs))+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete shares: %w", err)
	}
	return n, nil
}
