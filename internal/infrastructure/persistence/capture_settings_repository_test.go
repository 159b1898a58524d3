package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive across queries
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.CaptureSettingModel{}))
	return db
}

func TestCaptureSettingsRepository_NotFound(t *testing.T) {
	repo := NewGormCaptureSettingsRepository(newSQLiteDB(t))

	settings, err := repo.GetSettings(context.Background())
	assert.Nil(t, settings)
	assert.ErrorIs(t, err, capture.ErrSettingsNotFound)
}

func TestCaptureSettingsRepository_SaveAndGet(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormCaptureSettingsRepository(db)
	first := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return first }
	ctx := context.Background()

	require.NoError(t, repo.SaveSettings(ctx, &capture.Settings{
		GuestSKUs:    []string{"GUEST-COUNT"},
		WeddingTagID: "tag-1",
	}))

	got, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GUEST-COUNT"}, got.GuestSKUs)
	assert.Equal(t, "tag-1", got.WeddingTagID)

	t.Run("save overwrites existing rows", func(t *testing.T) {
		second := first.Add(time.Hour)
		repo.now = func() time.Time { return second }

		require.NoError(t, repo.SaveSettings(ctx, &capture.Settings{GuestSKUs: []string{"A", "B"}}))

		got, err := repo.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, got.GuestSKUs)
		assert.Empty(t, got.WeddingTagID)

		var rows []models.CaptureSettingModel
		require.NoError(t, db.Find(&rows).Error)
		assert.Len(t, rows, 2)
		for _, row := range rows {
			assert.True(t, row.UpdatedAt.Equal(second), "row %s not restamped", row.Key)
		}
	})
}

func TestCaptureSettingsRepository_SaveRejectsEmptySKUs(t *testing.T) {
	repo := NewGormCaptureSettingsRepository(newSQLiteDB(t))

	err := repo.SaveSettings(context.Background(), &capture.Settings{GuestSKUs: []string{"  "}})
	assert.ErrorIs(t, err, capture.ErrNoGuestSKUs)
}

func TestCaptureSettingsRepository_QueryError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "capture_settings" WHERE key IN`).
		WillReturnError(errors.New("connection reset"))

	_, err = NewGormCaptureSettingsRepository(db).GetSettings(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotErrorIs(t, err, capture.ErrSettingsNotFound)
}
