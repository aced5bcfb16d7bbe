package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"reliapi-demo/internal/model"
)

// RateLimiter returns a per-IP token-bucket limiter that answers refused
// requests with a RATE_LIMIT_RELIAPI error envelope.
func RateLimiter(requestsPerSecond float64) echo.MiddlewareFunc {
	retryAfter := 1 / requestsPerSecond

	deny := func(c echo.Context, _ string, _ error) error {
		env := model.NewErrorEnvelope(http.StatusTooManyRequests, "rate_limit", model.CodeRateLimitReliAPI,
			"Rate limit exceeded", true)
		env.Error.RetryAfterS = &retryAfter
		return c.JSON(http.StatusTooManyRequests, env)
	}

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store:       echomw.NewRateLimiterMemoryStore(rate.Limit(requestsPerSecond)),
		DenyHandler: deny,
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, model.NewErrorEnvelope(http.StatusForbidden, "client_error",
				model.CodeBadRequest, "Cannot identify client for rate limiting", false))
		},
	})
}
