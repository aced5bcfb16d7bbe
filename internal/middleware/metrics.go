package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"reliapi-demo/internal/metrics"
)

// RequestMetrics returns an Echo middleware that records Prometheus metrics
// for each request served by the mock.
func RequestMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			start := time.Now()

			err := next(c)
			m.RequestsInFlight.Dec()

			labels := []string{
				metrics.NormalizeMethod(c.Request().Method),
				strconv.Itoa(responseStatus(c, err)),
				metrics.NormalizePath(routePath(c)),
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// responseStatus returns the status that will reach the client. Errors
// returned by a handler are written later by Echo's central error handler.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// routePath prefers the matched route template over the raw URL path.
func routePath(c echo.Context) string {
	if p := c.Path(); p != "" && !strings.Contains(p, "*") {
		return p
	}
	return c.Request().URL.Path
}
