package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tutorlane/tutorlane-api/internal/service"
)

// routeLabel prefers the route template over the raw URL so metric
// cardinality stays bounded.
func routeLabel(c *gin.Context) string {
	if tmpl := c.FullPath(); tmpl != "" {
		return tmpl
	}
	return c.Request.URL.Path
}

// Metrics returns middleware that records per-request latency and status.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		metricsSvc.ObserveHTTPRequest(
			c.Request.Method,
			routeLabel(c),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
