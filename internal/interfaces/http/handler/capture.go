package handler

import (
	"context"
	"time"

	appcapture "github.com/capture/backend/internal/application/capture"
	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/interfaces/http/dto"
	"github.com/capture/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// MetricsService is the application surface the capture endpoints need
type MetricsService interface {
	GetMetrics(ctx context.Context, start, end time.Time) (*capture.MetricsResult, error)
	GetYearOverYear(ctx context.Context) (*capture.YearOverYearReport, error)
	InvalidateRange(ctx context.Context, start, end time.Time) error
	InvalidateAll(ctx context.Context) error
	EffectiveSettings(ctx context.Context) (capture.Settings, appcapture.SettingsSource)
	UpdateSettings(ctx context.Context, settings capture.Settings) error
}

var _ MetricsService = (*appcapture.MetricsService)(nil)

// CaptureHandler serves capture metrics, cache administration and settings
type CaptureHandler struct {
	BaseHandler
	service MetricsService
}

// NewCaptureHandler creates a new CaptureHandler
func NewCaptureHandler(service MetricsService) *CaptureHandler {
	return &CaptureHandler{service: service}
}

// GetMetrics handles GET /capture/metrics?start=YYYY-MM-DD&end=YYYY-MM-DD or ?month=YYYY-MM
func (h *CaptureHandler) GetMetrics(c *gin.Context) {
	start, end, ok := h.bindRange(c)
	if !ok {
		return
	}

	result, err := h.service.GetMetrics(c.Request.Context(), start, end)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetYearOverYear handles GET /capture/year-over-year
func (h *CaptureHandler) GetYearOverYear(c *gin.Context) {
	report, err := h.service.GetYearOverYear(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// InvalidateRange handles DELETE /capture/cache?start=&end=
func (h *CaptureHandler) InvalidateRange(c *gin.Context) {
	start, end, ok := h.bindRange(c)
	if !ok {
		return
	}

	if err := h.service.InvalidateRange(c.Request.Context(), start, end); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.CacheInvalidationResponse{Key: capture.CacheKey(start, end)})
}

// InvalidateAll handles DELETE /capture/cache/all
func (h *CaptureHandler) InvalidateAll(c *gin.Context) {
	if err := h.service.InvalidateAll(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.CacheInvalidationResponse{All: true})
}

// GetSettings handles GET /capture/settings
func (h *CaptureHandler) GetSettings(c *gin.Context) {
	settings, source := h.service.EffectiveSettings(c.Request.Context())
	h.Success(c, dto.NewSettingsResponse(settings, string(source)))
}

// UpdateSettings handles PUT /capture/settings
func (h *CaptureHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.service.UpdateSettings(c.Request.Context(), req.ToSettings()); err != nil {
		h.HandleError(c, err)
		return
	}

	settings, source := h.service.EffectiveSettings(c.Request.Context())
	h.Success(c, dto.NewSettingsResponse(settings, string(source)))
}

func (h *CaptureHandler) bindRange(c *gin.Context) (time.Time, time.Time, bool) {
	var q dto.RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return time.Time{}, time.Time{}, false
	}
	start, end, err := q.Range()
	if err != nil {
		h.BadRequest(c, err.Error())
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
