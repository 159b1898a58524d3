package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHealthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	r.GET("/health", h.Live)
	r.GET("/health/ready", h.Ready)
	return r
}

func TestHealthHandler_Live(t *testing.T) {
	h := NewHealthHandler("capture-metrics", "1.2.3")

	w := perform(setupHealthRouter(h), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	_, data := decode(t, w)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "1.2.3", data["version"])
}

func TestHealthHandler_Ready(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all checks pass", func(t *testing.T) {
		h := NewHealthHandler("capture-metrics", "dev").
			AddCheck("database", healthy).
			AddCheck("cache", healthy).
			AddCheck("ignored", nil)

		w := perform(setupHealthRouter(h), http.MethodGet, "/health/ready", "")
		require.Equal(t, http.StatusOK, w.Code)

		_, data := decode(t, w)
		checks := data["checks"].(map[string]any)
		assert.Len(t, checks, 2)
		assert.Equal(t, "ok", checks["database"])
	})

	t.Run("failing check degrades", func(t *testing.T) {
		h := NewHealthHandler("capture-metrics", "dev").
			AddCheck("database", healthy).
			AddCheck("cache", failing)

		w := perform(setupHealthRouter(h), http.MethodGet, "/health/ready", "")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		resp, data := decode(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, "degraded", data["status"])
		assert.Equal(t, "connection refused", data["checks"].(map[string]any)["cache"])
	})
}
