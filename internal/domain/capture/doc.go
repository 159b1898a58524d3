// Package capture contains the guest data-capture bounded context.
//
// It reconciles point-of-sale orders and customer profiles into per-staff
// and company-wide capture metrics:
//   - Order / CustomerProfile: immutable inputs fetched from the commerce platform
//   - Engine: the reconciliation and aggregation pipeline
//   - MetricsResult: the derived, cacheable output
//   - MetricsCache, SettingsRepository: ports implemented in the infrastructure layer
//
// Profiles are owned by exactly one attribution bucket. Manual attribution
// recorded in profile metadata beats order history, and among orders the
// first chronological order wins.
package capture
