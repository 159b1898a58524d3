package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/capture/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"nil", nil, ""},
		{"bad request", fmt.Errorf("%w: status 400", ErrPlatformBadRequest), KindValidation},
		{"auth", fmt.Errorf("%w: status 401", ErrPlatformAuthFailed), KindUnauthorized},
		{"not configured", ErrPlatformNotConfigured, KindUnauthorized},
		{"forbidden", ErrPlatformForbidden, KindForbidden},
		{"not found", ErrPlatformNotFound, KindNotFound},
		{"rate limited", fmt.Errorf("after 5 attempts: %w", ErrPlatformRateLimited), KindRateLimited},
		{"upstream", ErrPlatformUpstream, KindUpstream},
		{"invalid response", ErrPlatformInvalidResponse, KindUpstream},
		{"unreachable", ErrPlatformUnreachable, KindUnreachable},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindUnreachable},
		{"domain validation", shared.ErrInvalidRange, KindValidation},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestErrorKind_Retryable(t *testing.T) {
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindUpstream.Retryable())
	assert.True(t, KindUnreachable.Retryable())
	assert.False(t, KindValidation.Retryable())
	assert.False(t, KindUnauthorized.Retryable())
	assert.False(t, KindUnknown.Retryable())
}

func TestUnconfiguredSource(t *testing.T) {
	var src CommerceSource = UnconfiguredSource{}

	_, err := src.FetchOrders(context.Background(), time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrPlatformNotConfigured)

	_, err = src.FetchProfiles(context.Background(), time.Now(), time.Now())
	assert.Equal(t, KindUnauthorized, KindOf(err))
}
