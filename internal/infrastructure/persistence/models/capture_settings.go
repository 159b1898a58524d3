package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/capture/backend/internal/domain/capture"
)

// Capture settings keys.
const (
	SettingGuestCountSKUs   = "guest_count_skus"
	SettingWeddingLeadTagID = "wedding_lead_tag_id"
)

// CaptureSettingModel is one key/value row of the capture_settings table.
type CaptureSettingModel struct {
	Key       string    `gorm:"type:varchar(100);primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CaptureSettingModel) TableName() string {
	return "capture_settings"
}

// CaptureSettingsFromRows builds domain settings from stored rows.
// Unknown keys are ignored. The SKU list accepts a JSON array or a
// comma separated string.
func CaptureSettingsFromRows(rows []CaptureSettingModel) (*capture.Settings, error) {
	settings := &capture.Settings{}
	for _, row := range rows {
		switch row.Key {
		case SettingGuestCountSKUs:
			skus, err := decodeSKUs(row.Value)
			if err != nil {
				return nil, err
			}
			settings.GuestSKUs = skus
		case SettingWeddingLeadTagID:
			settings.WeddingTagID = strings.TrimSpace(row.Value)
		}
	}
	return settings, nil
}

// CaptureSettingsToRows flattens settings into rows stamped with now.
func CaptureSettingsToRows(settings *capture.Settings, now time.Time) ([]CaptureSettingModel, error) {
	skus := settings.GuestSKUs
	if skus == nil {
		skus = []string{}
	}
	encoded, err := json.Marshal(skus)
	if err != nil {
		return nil, fmt.Errorf("encode guest SKUs: %w", err)
	}
	return []CaptureSettingModel{
		{Key: SettingGuestCountSKUs, Value: string(encoded), UpdatedAt: now},
		{Key: SettingWeddingLeadTagID, Value: settings.WeddingTagID, UpdatedAt: now},
	}, nil
}

func decodeSKUs(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "[") {
		var skus []string
		if err := json.Unmarshal([]byte(value), &skus); err != nil {
			return nil, fmt.Errorf("decode %s: %w", SettingGuestCountSKUs, err)
		}
		return skus, nil
	}
	var skus []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			skus = append(skus, part)
		}
	}
	return skus, nil
}
