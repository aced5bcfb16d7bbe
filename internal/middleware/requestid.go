package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// requestIDPrefix marks ids minted by the mock.
const requestIDPrefix = "req_mock_"

// RequestID returns an Echo middleware that assigns every request an
// X-Request-Id, keeping one supplied by the caller.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: newRequestID,
	})
}

func newRequestID() string {
	return requestIDPrefix + uuid.NewString()
}
