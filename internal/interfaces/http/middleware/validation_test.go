package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/capture/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidation_SettingsRequest(t *testing.T) {
	SetupValidator()

	router := gin.New()
	router.Use(RequestID())
	router.PUT("/settings", func(c *gin.Context) {
		var req dto.UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req))
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
		wantCode   string
	}{
		{"valid", `{"guest_skus":["GUEST-COUNT"],"wedding_tag_id":"12"}`, http.StatusOK, "", ""},
		{"missing skus", `{"wedding_tag_id":"12"}`, http.StatusBadRequest, "guest_skus", dto.ErrCodeValidation},
		{"empty skus", `{"guest_skus":[]}`, http.StatusBadRequest, "guest_skus", dto.ErrCodeValidation},
		{"blank sku", `{"guest_skus":["  "]}`, http.StatusBadRequest, "guest_skus[0]", dto.ErrCodeValidation},
		{"malformed json", `{"guest_skus":`, http.StatusBadRequest, "", dto.ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				return
			}

			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			if tt.wantField != "" {
				require.NotEmpty(t, resp.Error.Details)
				assert.Equal(t, tt.wantField, resp.Error.Details[0].Field)
			}
		})
	}
}

func TestValidation_RangeQuery(t *testing.T) {
	SetupValidator()

	router := gin.New()
	router.GET("/metrics", func(c *gin.Context) {
		var q dto.RangeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	tests := []struct {
		query      string
		wantStatus int
	}{
		{"start=2024-01-01&end=2024-01-31", http.StatusOK},
		{"month=2024-01", http.StatusOK},
		{"start=2024-01-01", http.StatusBadRequest},
		{"start=2024/01/01&end=2024-01-31", http.StatusBadRequest},
		{"month=January", http.StatusBadRequest},
		{"", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics?"+tt.query, nil))
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}
