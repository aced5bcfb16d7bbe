package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"reliapi-demo/internal/config"
	"reliapi-demo/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints of the mock.
type HealthHandler struct {
	cfg     *config.Config
	service *service.MockService
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, svc *service.MockService, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, service: svc, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusResponse is the body of GET /mock/status.
type StatusResponse struct {
	Status          string        `json:"status"`
	Version         string        `json:"version"`
	APIKeyHeader    string        `json:"api_key_header"`
	BudgetMaxTokens int           `json:"budget_max_tokens"`
	Stats           service.Stats `json:"stats"`
}

// Status reports the mock's settings and what it has remembered.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:          "ok",
		Version:         string(h.version),
		APIKeyHeader:    h.cfg.ReliAPI.APIKeyHeader,
		BudgetMaxTokens: h.cfg.Mock.BudgetMaxTokens,
		Stats:           h.service.Stats(),
	})
}
