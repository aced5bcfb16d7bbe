// Package client provides the HTTP client for the ReliAPI proxy endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"reliapi-demo/internal/config"
	"reliapi-demo/internal/metrics"
	"reliapi-demo/internal/model"
)

// Endpoint labels, also used as metric label values.
const (
	EndpointHTTP = "http"
	EndpointLLM  = "llm"
)

var endpointPaths = map[string]string{
	EndpointHTTP: "/proxy/http",
	EndpointLLM:  "/proxy/llm",
}

const userAgent = "reliapi-demo/1.0"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 10 << 20

// ReliAPIClient posts proxy requests to ReliAPI and decodes the envelopes.
// It performs no retries and no caching of its own.
type ReliAPIClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	apiKeyHeader string
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewReliAPIClient creates a ReliAPIClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable metrics recording.
func NewReliAPIClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ReliAPIClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Client.IdleConnections,
		MaxIdleConnsPerHost: cfg.Client.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &ReliAPIClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Client.TimeoutSeconds) * time.Second,
		},
		baseURL:      cfg.ReliAPI.BaseURL,
		apiKey:       cfg.ReliAPI.APIKey,
		apiKeyHeader: cfg.ReliAPI.APIKeyHeader,
		logger:       logger.With("component", "reliapi_client"),
		metrics:      m,
	}
}

// ProxyHTTP calls POST /proxy/http.
func (c *ReliAPIClient) ProxyHTTP(ctx context.Context, req *model.HTTPProxyRequest) (*model.Envelope, error) {
	return c.post(ctx, EndpointHTTP, req)
}

// ProxyLLM calls POST /proxy/llm.
func (c *ReliAPIClient) ProxyLLM(ctx context.Context, req *model.LLMProxyRequest) (*model.Envelope, error) {
	return c.post(ctx, EndpointLLM, req)
}

// post sends payload as JSON and classifies the outcome. The returned error
// is a *TransportError, *StatusError or *DecodeError, or a plain error when
// the request could not be built.
func (c *ReliAPIClient) post(ctx context.Context, endpoint string, payload any) (*model.Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpointPaths[endpoint], bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set(c.apiKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("reliapi request",
		"endpoint", endpoint,
		"url", req.URL.String(),
		"bytes", len(body),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, metrics.OutcomeTransport, start)
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.observe(endpoint, metrics.OutcomeTransport, start)
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(endpoint, metrics.OutcomeStatus, start)
		return nil, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			Detail:     parseErrorDetail(raw),
		}
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		c.observe(endpoint, metrics.OutcomeDecode, start)
		return nil, &DecodeError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(raw), Err: err}
	}

	c.observe(endpoint, metrics.OutcomeOK, start)
	c.recordMeta(endpoint, &env.Meta)

	c.logger.Debug("reliapi response",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"request_id", env.Meta.RequestID,
		"cache_hit", env.Meta.CacheHit,
		"idempotent_hit", env.Meta.IdempotentHit,
		"duration_ms", env.Meta.DurationMs,
	)
	return env, nil
}

func decodeEnvelope(raw []byte) (*model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Meta.RequestID == "" {
		return nil, errors.New("envelope has no meta.request_id")
	}
	return &env, nil
}

// parseErrorDetail returns the error detail of a ReliAPI error envelope, or
// nil when the body has another shape.
func parseErrorDetail(raw []byte) *model.ErrorDetail {
	var env model.ErrorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if env.Error.Code == "" && env.Error.Message == "" {
		return nil
	}
	return &env.Error
}

func (c *ReliAPIClient) observe(endpoint, outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ClientDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	c.metrics.ClientRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (c *ReliAPIClient) recordMeta(endpoint string, meta *model.Meta) {
	if c.metrics == nil {
		return
	}
	if meta.CacheHit {
		c.metrics.ClientCacheHits.WithLabelValues(endpoint).Inc()
	}
	if meta.IdempotentHit {
		c.metrics.ClientIdempotentHit.WithLabelValues(endpoint).Inc()
	}
	if meta.CostUSD != nil && *meta.CostUSD > 0 {
		c.metrics.ClientCostUSD.WithLabelValues(endpoint).Add(*meta.CostUSD)
	}
}
