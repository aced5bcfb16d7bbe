package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reliapi-demo/internal/config"
	"reliapi-demo/internal/metrics"
	"reliapi-demo/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/mock/status", health.Status)

	g := e.Group("/proxy", middleware.RequireAPIKey(cfg.ReliAPI.APIKeyHeader))
	g.POST("/http", proxy.HandleHTTP)
	g.POST("/llm", proxy.HandleLLM)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
