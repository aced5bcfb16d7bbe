package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"reliapi-demo/internal/model"
)

// RequireAPIKey returns an Echo middleware that rejects requests without a
// non-empty value in the given header. Any value is accepted.
func RequireAPIKey(header string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.TrimSpace(c.Request().Header.Get(header)) == "" {
				return c.JSON(http.StatusUnauthorized, model.NewErrorEnvelope(
					http.StatusUnauthorized, "client_error", model.CodeUnauthorized,
					"Missing "+header+" header", false,
				))
			}
			return next(c)
		}
	}
}
