package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/repository"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewClientFromDB(db), mock
}

func TestHistoryRepository_Create(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewHistoryRepository(client)

	h := entity.NewPromptHistory(entity.GenerationKindText, "a fox", "openai")
	h.Keywords = append(h.Keywords, "winter")

	mock.ExpectExec(`INSERT INTO "prompt_history"`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), h))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_GetByID_NotFound(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewHistoryRepository(client)

	mock.ExpectQuery(`SELECT \* FROM "prompt_history" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_GetByID_Found(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewHistoryRepository(client)

	mock.ExpectQuery(`SELECT \* FROM "prompt_history" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "provider", "success", "created_at"}).
			AddRow("h1", "text", "openai", true, time.Now()))

	got, err := repo.GetByID(context.Background(), "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.GenerationKindText, got.Kind)
	assert.True(t, got.Success)
}

func TestHistoryRepository_List_Search(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewHistoryRepository(client)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "prompt_history" WHERE input_text ILIKE \$1 AND kind = \$2`).
		WithArgs(`%50\%%`, "text").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "prompt_history" WHERE input_text ILIKE \$1 AND kind = \$2 ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "input_text"}).AddRow("h1", "50% off"))

	res, err := repo.List(context.Background(),
		&repository.HistoryFilter{Query: " 50% ", Kind: entity.GenerationKindText},
		repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "50% off", res.Items[0].InputText)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_Recent(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewHistoryRepository(client)

	mock.ExpectQuery(`SELECT input_text, MAX\(created_at\) AS last_used FROM "prompt_history"`).
		WillReturnRows(sqlmock.NewRows([]string{"input_text", "last_used"}).
			AddRow("a fox", time.Now()).
			AddRow("a lighthouse", time.Now().Add(-time.Hour)))

	got, err := repo.Recent(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, []string{"a fox", "a lighthouse"}, got)
}

func TestHistoryRepository_DeleteAndClear(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewHistoryRepository(client)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM "prompt_history" WHERE id = \$1`).
		WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "prompt_history"`).WillReturnResult(sqlmock.NewResult(0, 7))

	found, err := repo.Delete(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_Stats(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewHistoryRepository(client)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total`).
		WillReturnRows(sqlmock.NewRows([]string{"total", "succeeded", "degraded", "avg_processing_ms"}).
			AddRow(10, 8, 2, 1250.5))
	mock.ExpectQuery(`SELECT provider, COUNT\(\*\) AS count FROM "prompt_history" GROUP BY "provider"`).
		WillReturnRows(sqlmock.NewRows([]string{"provider", "count"}).
			AddRow("openai", 6).
			AddRow("google", 4))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 10, stats.Total)
	assert.EqualValues(t, 2, stats.Failed)
	assert.EqualValues(t, 2, stats.Degraded)
	assert.Equal(t, "openai", stats.MostUsedProvider)
	assert.Equal(t, map[string]int64{"openai": 6, "google": 4}, stats.ByProvider)
	assert.InDelta(t, 1250.5, stats.AvgProcessingMs, 1e-9)
}

func TestSettingsRepository(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewSettingsRepository(client)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM "app_settings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectExec(`INSERT INTO "app_settings" .* ON CONFLICT \("id"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s := entity.NewAppSettings("google", true)
	s.APIKeys["google"] = "g-key"
	require.NoError(t, repo.Save(ctx, s))

	mock.ExpectQuery(`SELECT \* FROM "app_settings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "default_provider", "nsfw_enabled", "api_keys", "updated_at"}).
			AddRow(1, "google", true, []byte(`{"google":"g-key"}`), time.Now()))
	got, err = repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "g-key", got.APIKeys["google"])
	assert.True(t, got.NSFWEnabled)

	mock.ExpectExec(`DELETE FROM "app_settings" WHERE id = \$1`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_CommitAndRollback(t *testing.T) {
	client, mock := newMockClient(t)
	tx := NewTxManager(client)
	repo := NewSettingsRepository(client)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "app_settings"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, tx.WithTransaction(ctx, func(ctx context.Context) error {
		return repo.Delete(ctx)
	}))

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
