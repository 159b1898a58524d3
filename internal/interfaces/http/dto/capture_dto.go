package dto

import (
	"fmt"
	"time"

	"github.com/capture/backend/internal/domain/capture"
)

// RangeQuery selects a reporting window either by explicit dates or by a
// calendar month. Dates are interpreted in UTC and End covers its whole day.
type RangeQuery struct {
	Start string `form:"start" binding:"required_without=Month,omitempty,datetime=2006-01-02"`
	End   string `form:"end" binding:"required_without=Month,omitempty,datetime=2006-01-02"`
	Month string `form:"month" binding:"omitempty,datetime=2006-01"`
}

// Range resolves the query to an inclusive [start, end] window.
func (q RangeQuery) Range() (time.Time, time.Time, error) {
	if q.Month != "" && q.Start == "" && q.End == "" {
		m, err := time.Parse("2006-01", q.Month)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q: %w", q.Month, err)
		}
		start, end := capture.MonthRange(m.Year(), m.Month())
		return start, end, nil
	}

	start, err := time.Parse(time.DateOnly, q.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q: %w", q.Start, err)
	}
	end, err := time.Parse(time.DateOnly, q.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q: %w", q.End, err)
	}
	return start, end.AddDate(0, 0, 1).Add(-time.Second), nil
}

// UpdateSettingsRequest replaces the stored capture settings
type UpdateSettingsRequest struct {
	GuestSKUs    []string `json:"guest_skus" binding:"required,min=1,dive,notblank"`
	WeddingTagID string   `json:"wedding_tag_id" binding:"omitempty,max=64"`
}

// ToSettings converts the request to domain settings
func (r UpdateSettingsRequest) ToSettings() capture.Settings {
	return capture.Settings{
		GuestSKUs:    r.GuestSKUs,
		WeddingTagID: r.WeddingTagID,
	}
}

// SettingsResponse reports the settings a computation would use right now
type SettingsResponse struct {
	GuestSKUs    []string `json:"guest_skus"`
	WeddingTagID string   `json:"wedding_tag_id"`
	// Source is "store" when read from the settings table, "defaults" otherwise
	Source string `json:"source"`
}

// NewSettingsResponse builds a SettingsResponse
func NewSettingsResponse(settings capture.Settings, source string) SettingsResponse {
	skus := settings.GuestSKUs
	if skus == nil {
		skus = []string{}
	}
	return SettingsResponse{
		GuestSKUs:    skus,
		WeddingTagID: settings.WeddingTagID,
		Source:       source,
	}
}

// CacheInvalidationResponse confirms a cache invalidation
type CacheInvalidationResponse struct {
	Key string `json:"key,omitempty"`
	All bool   `json:"all"`
}
