package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"reliapi-demo/internal/model"
	"reliapi-demo/internal/service"
)

// ProxyHandler serves the stand-in /proxy/http and /proxy/llm endpoints.
type ProxyHandler struct {
	service *service.MockService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.MockService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// HandleHTTP answers POST /proxy/http.
func (h *ProxyHandler) HandleHTTP(c echo.Context) error {
	var req model.HTTPProxyRequest
	if err := decodeBody(c, &req); err != nil {
		return h.mapError(c, err)
	}

	env, err := h.service.ProxyHTTP(&req, requestID(c))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, env)
}

// HandleLLM answers POST /proxy/llm.
func (h *ProxyHandler) HandleLLM(c echo.Context) error {
	var req model.LLMProxyRequest
	if err := decodeBody(c, &req); err != nil {
		return h.mapError(c, err)
	}

	env, err := h.service.ProxyLLM(&req, requestID(c))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, env)
}

// errMalformedBody wraps JSON decoding failures of the request body.
var errMalformedBody = errors.New("malformed request body")

func decodeBody(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	return nil
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Warn("proxy request refused",
		"err", err,
		"path", c.Request().URL.Path,
	)

	var (
		status int
		env    *model.ErrorEnvelope
		be     *service.BudgetError
		he     *echo.HTTPError
	)
	switch {
	case errors.As(err, &be):
		status = http.StatusBadRequest
		env = model.NewErrorEnvelope(status, "budget_error", model.CodeBudgetExceeded, be.Error(), false)
		env.Error.Details = map[string]any{
			"max_tokens":        be.MaxTokens,
			"budget_max_tokens": be.Limit,
		}
	case errors.Is(err, service.ErrIdempotencyConflict):
		status = http.StatusConflict
		env = model.NewErrorEnvelope(status, "client_error", model.CodeIdempotencyConflict, err.Error(), false)
	case errors.As(err, &he):
		// e.g. the body limit middleware aborting a read.
		status = he.Code
		env = model.NewErrorEnvelope(status, "client_error", model.CodeBadRequest, fmt.Sprint(he.Message), false)
	case errors.Is(err, errMalformedBody), errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
		env = model.NewErrorEnvelope(status, "client_error", model.CodeBadRequest, err.Error(), false)
	default:
		status = http.StatusInternalServerError
		env = model.NewErrorEnvelope(status, "internal_error", model.CodeInternal, "internal error", true)
	}

	env.Meta = &model.Meta{RequestID: requestID(c)}
	return c.JSON(status, env)
}
