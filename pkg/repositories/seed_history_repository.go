package repositories

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
)

// SeedHistoryRepository records which sample datasets have been loaded.
type SeedHistoryRepository interface {
	IsLoaded(ctx context.Context, name string) (bool, error)
	MarkLoaded(ctx context.Context, name string) error
}

type seedHistoryRepository struct {
	db systemDB
}

var _ SeedHistoryRepository = (*seedHistoryRepository)(nil)

// NewSeedHistoryRepository creates a seed history repository over the system database.
func NewSeedHistoryRepository(pools datasource.PoolProvider, systemDatabase string) SeedHistoryRepository {
	return &seedHistoryRepository{db: systemDB{pools: pools, database: systemDatabase}}
}

func (r *seedHistoryRepository) IsLoaded(ctx context.Context, name string) (bool, error) {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM seed_history WHERE name = ?", name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check seed history: %w", err)
	}
	return count > 0, nil
}

func (r *seedHistoryRepository) MarkLoaded(ctx context.Context, name string) error {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, "INSERT INTO seed_history (name, loaded_at) VALUES (?, ?)", name, models.NowMillis()); err != nil {
		return fmt.Errorf("failed to record seed %s: %w", name, err)
	}
	return nil
}
