package integration

import (
	"context"
	"time"

	"github.com/capture/backend/internal/domain/capture"
)

// CommerceSource is the port to the commerce platform.
//
// Implementations return the complete result set, paginating internally,
// and surface failures wrapped around the ErrPlatform* sentinels.
type CommerceSource interface {
	// FetchOrders returns orders whose paid date falls within [start, end],
	// both bounds inclusive by calendar day.
	FetchOrders(ctx context.Context, start, end time.Time) ([]capture.Order, error)

	// FetchProfiles returns customer profiles created within [start, end],
	// including every profile created on the end day.
	FetchProfiles(ctx context.Context, start, end time.Time) ([]capture.CustomerProfile, error)
}

// UnconfiguredSource stands in for the platform when no credentials are set.
// Every call fails with ErrPlatformNotConfigured.
type UnconfiguredSource struct{}

func (UnconfiguredSource) FetchOrders(context.Context, time.Time, time.Time) ([]capture.Order, error) {
	return nil, ErrPlatformNotConfigured
}

func (UnconfiguredSource) FetchProfiles(context.Context, time.Time, time.Time) ([]capture.CustomerProfile, error) {
	return nil, ErrPlatformNotConfigured
}

var _ CommerceSource = UnconfiguredSource{}
