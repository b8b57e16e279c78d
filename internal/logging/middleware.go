package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"
)

const CorrelationHeader = "X-Correlation-ID"

// Middleware attaches a correlation id and a request logger to every request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = shortuuid.New()
		}
		c.Header(CorrelationHeader, correlationID)

		entry := logrus.WithFields(logrus.Fields{
			"correlation_id": correlationID,
			"method":         c.Request.Method,
			"path":           c.FullPath(),
		})
		c.Request = c.Request.WithContext(ToContext(c.Request.Context(), entry))

		start := time.Now()
		c.Next()

		entry.WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	}
}
