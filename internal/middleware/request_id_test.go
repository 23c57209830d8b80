package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"intellearn_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	t.Run("incoming id is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "abc-123", seen)
	})

	t.Run("missing or oversized id is replaced", func(t *testing.T) {
		for _, in := range []string{"", strings.Repeat("x", 200)} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if in != "" {
				req.Header.Set(RequestIDHeader, in)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			got := w.Header().Get(RequestIDHeader)
			assert.Len(t, got, 36)
			assert.Equal(t, got, seen)
		}
	})
}
