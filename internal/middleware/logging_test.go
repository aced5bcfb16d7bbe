package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"success logs info", http.StatusOK, "level=INFO"},
		{"client error logs warn", http.StatusBadRequest, "level=WARN"},
		{"server error logs error", http.StatusBadGateway, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			e := echo.New()
			e.Use(RequestLogger(logger))
			e.POST("/proxy/llm", func(c echo.Context) error {
				return c.String(tt.status, "body")
			})

			req := httptest.NewRequest(http.MethodPost, "/proxy/llm", strings.NewReader("{}"))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("log = %q, want %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, "path=/proxy/llm") {
				t.Errorf("log = %q, want path attribute", out)
			}
		})
	}
}

func TestRequestLogger_ReturnedHTTPError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(logger))
	e.POST("/proxy/http", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too large")
	})

	req := httptest.NewRequest(http.MethodPost, "/proxy/http", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=413") {
		t.Errorf("log = %q, want a warn line with status=413", out)
	}
}
