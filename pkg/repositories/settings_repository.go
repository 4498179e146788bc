package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
)

// SettingsRepository stores user settings as key/value pairs.
type SettingsRepository interface {
	// Get returns ok=false when the key is not set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

type settingsRepository struct {
	db systemDB
}

var _ SettingsRepository = (*settingsRepository)(nil)

// NewSettingsRepository creates a settings repository over the system database.
func NewSettingsRepository(pools datasource.PoolProvider, systemDatabase string) SettingsRepository {
	return &settingsRepository{db: systemDB{pools: pools, database: systemDatabase}}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return "", false, err
	}

	var value string
	err = pool.QueryRow(ctx, "SELECT setting_value FROM user_settings WHERE setting_key = ?", key).Scan(&value)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	pool, err := r.db.pool(ctx)
	if err != nil {
		return err
	}
	dialect, err := r.db.dialect()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, upsertSettingQuery(dialect), key, value, models.NowMillis()); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

func upsertSettingQuery(dialect string) string {
	if dialect == "mysql" {
		return `INSERT INTO user_settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO user_settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = EXCLUDED.updated_at`
}
