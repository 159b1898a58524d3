package handler

import (
	"errors"
	"net/http"
	"strconv"

	appcapture "github.com/capture/backend/internal/application/capture"
	"github.com/capture/backend/internal/domain/integration"
	"github.com/capture/backend/internal/domain/shared"
	"github.com/capture/backend/internal/interfaces/http/dto"
	"github.com/capture/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// RetryAfterSeconds is advertised when the commerce platform keeps rate limiting
const RetryAfterSeconds = 60

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts computation, domain and unknown errors to responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	requestID := middleware.GetRequestID(c)

	var compErr *appcapture.ComputationError
	if errors.As(err, &compErr) {
		code := dto.ErrorCodeForKind(compErr.Kind)
		if compErr.Kind == integration.KindValidation {
			// the range itself was rejected before any platform call
			var domainErr *shared.DomainError
			if errors.As(compErr, &domainErr) {
				code = dto.NormalizeErrorCode(domainErr.Code)
			}
		}
		if compErr.Kind == integration.KindRateLimited {
			c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		}

		resp := dto.NewErrorResponseWithRequestID(code, compErr.Message, requestID)
		resp.Error.Retryable = compErr.Retryable()
		resp.Error.ElapsedMs = compErr.Elapsed.Milliseconds()
		c.JSON(dto.GetHTTPStatus(code), resp)
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}
