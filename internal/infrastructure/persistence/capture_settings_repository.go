package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCaptureSettingsRepository implements capture.SettingsRepository using GORM
type GormCaptureSettingsRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormCaptureSettingsRepository creates a new GormCaptureSettingsRepository
func NewGormCaptureSettingsRepository(db *gorm.DB) *GormCaptureSettingsRepository {
	return &GormCaptureSettingsRepository{db: db, now: time.Now}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormCaptureSettingsRepository) WithTx(tx *gorm.DB) *GormCaptureSettingsRepository {
	return &GormCaptureSettingsRepository{db: tx, now: r.now}
}

// GetSettings loads every settings row. An empty table yields ErrSettingsNotFound.
func (r *GormCaptureSettingsRepository) GetSettings(ctx context.Context) (*capture.Settings, error) {
	var rows []models.CaptureSettingModel
	if err := r.db.WithContext(ctx).
		Where("key IN ?", []string{models.SettingGuestCountSKUs, models.SettingWeddingLeadTagID}).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load capture settings: %w", err)
	}
	if len(rows) == 0 {
		return nil, capture.ErrSettingsNotFound
	}
	return models.CaptureSettingsFromRows(rows)
}

// SaveSettings validates and upserts every settings row in one transaction.
func (r *GormCaptureSettingsRepository) SaveSettings(ctx context.Context, settings *capture.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	rows, err := models.CaptureSettingsToRows(settings, r.now().UTC())
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&rows[i]).Error; err != nil {
				return fmt.Errorf("save capture setting %s: %w", rows[i].Key, err)
			}
		}
		return nil
	})
}

var _ capture.SettingsRepository = (*GormCaptureSettingsRepository)(nil)
