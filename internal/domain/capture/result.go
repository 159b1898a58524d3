package capture

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// StaffMetrics are the counts and rates of one attribution bucket.
type StaffMetrics struct {
	Name                string     `json:"name"`
	Kind                BucketKind `json:"kind"`
	GuestCount          int        `json:"guest_count"`
	OrderCount          int        `json:"order_count"`
	ProfilesCreated     int        `json:"profiles_created"`
	WithEmail           int        `json:"with_email"`
	WithPhone           int        `json:"with_phone"`
	WithData            int        `json:"with_data"`
	WithDataNoWedding   int        `json:"with_data_no_wedding"`
	Subscribed          int        `json:"subscribed"`
	SubscribedNoWedding int        `json:"subscribed_no_wedding"`
	WeddingLeads        int        `json:"wedding_leads"`
	ManualEntries       int        `json:"manual_entries"`
	CaptureRate         float64    `json:"capture_rate"`
	SubscriptionRate    float64    `json:"subscription_rate"`
}

// AggregateMetrics are pooled counts across several buckets. Rates are
// always derived from the pooled counts.
type AggregateMetrics struct {
	Buckets          int     `json:"buckets"`
	GuestCount       int     `json:"guest_count"`
	OrderCount       int     `json:"order_count"`
	ProfilesCreated  int     `json:"profiles_created"`
	WithEmail        int     `json:"with_email"`
	WithPhone        int     `json:"with_phone"`
	WithData         int     `json:"with_data"`
	Subscribed       int     `json:"subscribed"`
	WeddingLeads     int     `json:"wedding_leads"`
	ManualEntries    int     `json:"manual_entries"`
	CaptureRate      float64 `json:"capture_rate"`
	SubscriptionRate float64 `json:"subscription_rate"`
}

func (a *AggregateMetrics) finalize() {
	a.CaptureRate = Rate(a.WithData, a.GuestCount)
	a.SubscriptionRate = Rate(a.Subscribed, a.GuestCount)
}

// MetricsResult is the outcome of one computation over a date range.
type MetricsResult struct {
	PeriodLabel   string         `json:"period_label"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	GeneratedAt   time.Time      `json:"generated_at"`
	TotalOrders   int            `json:"total_orders"`
	TotalProfiles int            `json:"total_profiles"`
	Staff         []StaffMetrics `json:"staff"`
	// StaffTotals pools the buckets that served at least one guest
	StaffTotals AggregateMetrics `json:"staff_totals"`
	// Company pools every bucket, including the no-order fallbacks
	Company AggregateMetrics `json:"company"`
	// CompanyLessWeddings pools every bucket with wedding-tagged profiles
	// removed from the profile counts; guests and orders are unchanged
	CompanyLessWeddings AggregateMetrics `json:"company_less_weddings"`
}

// MonthComparison compares one calendar month with the same month a year
// earlier.
type MonthComparison struct {
	Month              time.Month     `json:"month"`
	Label              string         `json:"label"`
	Current            *MetricsResult `json:"current"`
	Prior              *MetricsResult `json:"prior"`
	CurrentCaptureRate float64        `json:"current_capture_rate"`
	PriorCaptureRate   float64        `json:"prior_capture_rate"`
	ChangePercent      float64        `json:"change_percent"`
}

// YearOverYearReport holds one comparison per elapsed month of Year.
type YearOverYearReport struct {
	Year        int               `json:"year"`
	Months      []MonthComparison `json:"months"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// NewMonthComparison fills the headline rates from the company rows.
func NewMonthComparison(month time.Month, label string, current, prior *MetricsResult) MonthComparison {
	mc := MonthComparison{
		Month:   month,
		Label:   label,
		Current: current,
		Prior:   prior,
	}
	if current != nil {
		mc.CurrentCaptureRate = current.Company.CaptureRate
	}
	if prior != nil {
		mc.PriorCaptureRate = prior.Company.CaptureRate
	}
	mc.ChangePercent = PercentChange(mc.CurrentCaptureRate, mc.PriorCaptureRate)
	return mc
}

// Rate returns numerator / denominator * 100 rounded half away from zero to
// two decimal places, or 0 when the denominator is 0.
func Rate(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	r := decimal.NewFromInt(int64(numerator)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(denominator))).
		Round(2)
	return r.InexactFloat64()
}

// PercentChange returns the relative change from prior to current in
// percent, rounded to two decimal places, or 0 when prior is 0.
func PercentChange(current, prior float64) float64 {
	if prior == 0 {
		return 0
	}
	p := decimal.NewFromFloat(prior)
	r := decimal.NewFromFloat(current).Sub(p).Div(p).Mul(hundred).Round(2)
	return r.InexactFloat64()
}

// DefaultLabel formats a date range as "YYYY-MM-DD to YYYY-MM-DD".
func DefaultLabel(start, end time.Time) string {
	return fmt.Sprintf("%s to %s", start.UTC().Format(time.DateOnly), end.UTC().Format(time.DateOnly))
}

// MonthRange returns the first and last instant of a calendar month in UTC.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0).Add(-time.Second)
}
