package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/aggsync/internal/observability"
)

const metricsRoute = "/metrics"

// Metrics records admin API traffic. Scrapes of /metrics are not counted, and calls
// under /api/aggregates/:name are also counted per definition.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == metricsRoute {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)
		m.ObserveAPI(c.Request.Method, route, status, time.Since(start))

		if name := c.Param("name"); name != "" {
			// A 404 may be an unknown definition; keep attacker-chosen names out of labels.
			if code == http.StatusNotFound {
				name = "unknown"
			}
			m.IncAggregateRequest(name, status)
		}
	}
}
