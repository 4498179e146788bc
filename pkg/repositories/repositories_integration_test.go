//go:build integration

package repositories_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
	"github.com/ekaya-inc/ekaya-notebook/pkg/repositories"
	"github.com/ekaya-inc/ekaya-notebook/pkg/testhelpers"
)

func TestRepositories(t *testing.T) {
	for _, dialect := range testhelpers.Dialects {
		t.Run(dialect, func(t *testing.T) {
			ctx := context.Background()
			registry := testhelpers.GetTestServer(t, dialect).NewRegistry(t)
			systemDB := testhelpers.CreateSystemDatabase(t, registry)

			notebooks := repositories.NewNotebookRepository(registry, systemDB)
			apps := repositories.NewAppRepository(registry, systemDB)
			shares := repositories.NewShareRepository(registry, systemDB)
			settings := repositories.NewSettingsRepository(registry, systemDB)
			seeds := repositories.NewSeedHistoryRepository(registry, systemDB)

			t.Run("notebooks", func(t *testing.T) {
				nb := &models.Notebook{
					ID:          models.NewID(),
					Topic:       "Sales",
					Icon:        "chart",
					Suggestions: []string{"Top products"},
					CreatedAt:   models.NowMillis(),
					IsOwner:     true,
				}
				nb.DBName = models.NotebookDatabaseName(nb.ID)
				require.NoError(t, notebooks.Create(ctx, nb))

				got, err := notebooks.Get(ctx, nb.ID)
				require.NoError(t, err)
				assert.Equal(t, nb, got)

				require.NoError(t, notebooks.UpdateSuggestions(ctx, nb.ID, []string{"a", "b"}))
				require.NoError(t, notebooks.IncrementViews(ctx, nb.ID))
				got, err = notebooks.Get(ctx, nb.ID)
				require.NoError(t, err)
				assert.Equal(t, []string{"a", "b"}, got.Suggestions)
				assert.Equal(t, 1, got.Views)

				list, err := notebooks.List(ctx)
				require.NoError(t, err)
				assert.Len(t, list, 1)

				require.NoError(t, notebooks.Delete(ctx, nb.ID))
				_, err = notebooks.Get(ctx, nb.ID)
				assert.ErrorIs(t, err, apperrors.ErrNotFound)
				assert.ErrorIs(t, notebooks.Delete(ctx, nb.ID), apperrors.ErrNotFound)
			})

			t.Run("apps and shares", func(t *testing.T) {
				app := &models.App{
					ID:               models.NewID(),
					Title:            "Revenue",
					Type:             models.AppTypeSQL,
					Code:             "SELECT 1",
					SourceDB:         "nb_x",
					SourceNotebookID: "nb-1",
					ParamsSchema:     json.RawMessage(`{"n":{"type":"slider"}}`),
					CreatedAt:        models.NowMillis(),
				}
				require.NoError(t, apps.Create(ctx, app))
				require.NoError(t, shares.Create(ctx, &models.Share{ID: models.NewID(), AppID: app.ID, CreatedAt: 1}))

				got, err := apps.Get(ctx, app.ID)
				require.NoError(t, err)
				assert.JSONEq(t, `{"n":{"type":"slider"}}`, string(got.ParamsSchema))

				ids, err := apps.DeleteBySourceNotebook(ctx, "nb-1")
				require.NoError(t, err)
				assert.Equal(t, []string{app.ID}, ids)

				n, err := shares.DeleteByApps(ctx, ids)
				require.NoError(t, err)
				assert.Equal(t, int64(1), n)
			})

			t.Run("settings", func(t *testing.T) {
				_, ok, err := settings.Get(ctx, "missing")
				require.NoError(t, err)
				assert.False(t, ok)

				require.NoError(t, settings.Set(ctx, models.SettingDemoNotebookID, "one"))
				require.NoError(t, settings.Set(ctx, models.SettingDemoNotebookID, "two"))
				v, ok, err := settings.Get(ctx, models.SettingDemoNotebookID)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "two", v)
			})

			t.Run("seed history", func(t *testing.T) {
				loaded, err := seeds.IsLoaded(ctx, "retail")
				require.NoError(t, err)
				assert.False(t, loaded)

				require.NoError(t, seeds.MarkLoaded(ctx, "retail"))
				loaded, err = seeds.IsLoaded(ctx, "retail")
				require.NoError(t, err)
				assert.True(t, loaded)
			})
		})
	}
}
