package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCustomerProfile_Channels(t *testing.T) {
	p := CustomerProfile{
		Email:  "Guest@Example.com",
		Emails: []string{"guest@example.com", " ", "other@example.com"},
		Phone:  "(555) 010-0000",
		Phones: []string{"555-010-0000", "", "555 010 0001"},
	}

	emails, phones := p.Channels()
	assert.Equal(t, []string{"Guest@Example.com", "other@example.com"}, emails)
	assert.Equal(t, []string{"(555) 010-0000", "555 010 0001"}, phones)

	emails, phones = CustomerProfile{}.Channels()
	assert.Empty(t, emails)
	assert.Empty(t, phones)
}

func TestCustomerProfile_Attribution(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     string
		wantOK   bool
	}{
		{"nil metadata", nil, "", false},
		{"missing key", map[string]any{"other": "x"}, "", false},
		{"non string", map[string]any{DefaultAttributionKey: 7}, "", false},
		{"blank", map[string]any{DefaultAttributionKey: "  "}, "", false},
		{"trimmed", map[string]any{DefaultAttributionKey: " Sam "}, "Sam", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CustomerProfile{Metadata: tt.metadata}.Attribution(DefaultAttributionKey)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestOrder_SortTimeAndStaff(t *testing.T) {
	paid := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	submitted := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, paid, Order{PaidAt: paid, SubmittedAt: submitted}.SortTime())
	assert.Equal(t, submitted, Order{SubmittedAt: submitted}.SortTime())

	assert.Equal(t, BucketUnknown, Order{}.StaffName())
	assert.Equal(t, BucketUnknown, Order{Staff: &StaffRef{Name: " "}}.StaffName())
	assert.Equal(t, "Al", Order{Staff: &StaffRef{Name: " Al "}}.StaffName())
}

func TestSettings_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Settings{}).Validate(), ErrNoGuestSKUs)
	assert.ErrorIs(t, (&Settings{GuestSKUs: []string{" "}}).Validate(), ErrNoGuestSKUs)
	assert.NoError(t, (&Settings{GuestSKUs: []string{"SKU"}}).Validate())
}

func TestRate(t *testing.T) {
	tests := []struct {
		num, den int
		want     float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{1, 8, 12.5},
		{1, 800, 0.13},
		{3, 800, 0.38},
		{12, 102, 11.76},
		{4, 4, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Rate(tt.num, tt.den), "%d/%d", tt.num, tt.den)
	}
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, 0.0, PercentChange(42, 0))
	assert.Equal(t, 50.0, PercentChange(30, 20))
	assert.Equal(t, -25.0, PercentChange(15, 20))
	assert.Equal(t, 33.33, PercentChange(40, 30))
}

func TestCacheKey(t *testing.T) {
	morning := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-01-01_2024-01-31", CacheKey(morning, end))
	assert.Equal(t, CacheKey(morning, end), CacheKey(evening, end.Add(23*time.Hour)))
	assert.NotEqual(t, CacheKey(morning, end), CacheKey(morning, end.AddDate(0, 0, 1)))

	pacific := time.FixedZone("PST", -8*3600)
	assert.Equal(t, "2024-01-02_2024-01-31", CacheKey(time.Date(2024, 1, 1, 20, 0, 0, 0, pacific), end))
}

func TestCacheEntry_IsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewCacheEntry(&MetricsResult{}, now, DefaultCacheTTL)

	assert.False(t, e.IsExpired(now))
	assert.False(t, e.IsExpired(now.Add(DefaultCacheTTL-time.Nanosecond)))
	assert.True(t, e.IsExpired(now.Add(DefaultCacheTTL)))
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(2024, time.February)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), end)

	start, end = MonthRange(2023, time.December)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), end)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, BucketKindUnknown, KindOf(BucketUnknown))
	assert.Equal(t, BucketKindFallback, KindOf(BucketCompanyNoOrders))
	assert.Equal(t, BucketKindFallback, KindOf(BucketWeddingNoOrders))
	assert.Equal(t, BucketKindManual, KindOf(ManualEntryBucket("Zed")))
	assert.Equal(t, BucketKindStaff, KindOf("Al"))
}
