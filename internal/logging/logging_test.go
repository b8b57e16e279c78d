package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	entry := FromContext(context.Background())
	assert.NotNil(t, entry)
}

func TestFromContext_RoundTrip(t *testing.T) {
	entry := logrus.WithField("correlation_id", "abc")
	ctx := ToContext(context.Background(), entry)

	got := FromContext(ctx)
	assert.Equal(t, "abc", got.Data["correlation_id"])
}

func TestMiddleware_KeepsCorrelationHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen, _ = FromContext(c.Request.Context()).Data["correlation_id"].(string)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationHeader, "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", w.Header().Get(CorrelationHeader))
}

func TestMiddleware_GeneratesCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, w.Header().Get(CorrelationHeader))
}
