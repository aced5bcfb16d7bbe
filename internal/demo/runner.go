// Package demo runs the ReliAPI demonstrations and narrates the responses.
package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"reliapi-demo/internal/client"
	"reliapi-demo/internal/config"
	"reliapi-demo/internal/metrics"
	"reliapi-demo/internal/model"
)

// Demonstration names accepted by RunAll.
const (
	NameHTTP  = "http"
	NameLLM   = "llm"
	NameCache = "cache"
	NameError = "error"
)

// Order is the sequence in which RunAll executes the demonstrations.
var Order = []string{NameHTTP, NameLLM, NameCache, NameError}

// Proxy is the subset of the ReliAPI client the runner needs.
type Proxy interface {
	ProxyHTTP(ctx context.Context, req *model.HTTPProxyRequest) (*model.Envelope, error)
	ProxyLLM(ctx context.Context, req *model.LLMProxyRequest) (*model.Envelope, error)
}

// Runner executes the demonstrations one after another against a shared client.
type Runner struct {
	proxy   Proxy
	cfg     config.DemoConfig
	out     io.Writer
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRunner creates a Runner writing its narration to out.
// The metrics parameter is optional; without it RunAll prints no summary.
func NewRunner(p Proxy, cfg *config.Config, out io.Writer, logger *slog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		proxy:   p,
		cfg:     cfg.Demo,
		out:     out,
		logger:  logger.With("component", "demo_runner"),
		metrics: m,
		now:     time.Now,
	}
}

// RunAll executes the named demonstrations in Order, or all of them when
// only is empty. Failed calls are reported and never stop the sequence; the
// error result is reserved for unknown names.
func (r *Runner) RunAll(ctx context.Context, only []string) error {
	selected, err := selectDemos(only)
	if err != nil {
		return err
	}

	r.printf("ReliAPI Go Example\n")

	for _, name := range Order {
		if !selected[name] {
			continue
		}
		if ctx.Err() != nil {
			r.logger.Warn("demonstrations interrupted", "next", name, "err", ctx.Err())
			break
		}
		r.printf("\n")
		switch name {
		case NameHTTP:
			r.HTTPProxy(ctx)
		case NameLLM:
			r.LLMProxy(ctx)
		case NameCache:
			r.CacheHit(ctx)
		case NameError:
			r.ErrorPath(ctx)
		}
	}

	r.printf("\n=== Examples Completed ===\n")
	r.printSummary()
	return nil
}

func selectDemos(only []string) (map[string]bool, error) {
	selected := make(map[string]bool, len(Order))
	if len(only) == 0 {
		for _, name := range Order {
			selected[name] = true
		}
		return selected, nil
	}
	known := make(map[string]bool, len(Order))
	for _, name := range Order {
		known[name] = true
	}
	for _, name := range only {
		if !known[name] {
			return nil, fmt.Errorf("unknown demonstration %q (want one of %v)", name, Order)
		}
		selected[name] = true
	}
	return selected, nil
}

// HTTPProxy forwards one upstream call through /proxy/http with an
// idempotency key and a cache TTL.
func (r *Runner) HTTPProxy(ctx context.Context) {
	r.printf("=== HTTP Proxy Example ===\n")

	req := &model.HTTPProxyRequest{
		Target:         r.cfg.HTTPTarget,
		Method:         "GET",
		Path:           r.cfg.HTTPPath,
		IdempotencyKey: model.String(r.idempotencyKey("http")),
		Cache:          model.Int(r.cfg.HTTPCacheSeconds),
	}

	env, err := r.proxy.ProxyHTTP(ctx, req)
	if err != nil {
		r.report(client.EndpointHTTP, err)
		return
	}
	r.printf("Success: Cache hit: %v, Request ID: %s\n", env.Meta.CacheHit, env.Meta.RequestID)
}

// LLMProxy asks one question through /proxy/llm and prints the reply.
func (r *Runner) LLMProxy(ctx context.Context) {
	r.printf("=== LLM Proxy Example ===\n")

	req := &model.LLMProxyRequest{
		Target:         r.cfg.LLMTarget,
		Messages:       []model.ChatMessage{{Role: "user", Content: "What is idempotency in API design? Explain in one sentence."}},
		Model:          r.cfg.LLMModel,
		MaxTokens:      model.Int(r.cfg.MaxTokens),
		IdempotencyKey: model.String(r.idempotencyKey("llm")),
		Cache:          model.Int(r.cfg.CacheSeconds),
	}

	env, err := r.proxy.ProxyLLM(ctx, req)
	if err != nil {
		r.report(client.EndpointLLM, err)
		return
	}

	if text, ok := model.ReplyText(env.Data); ok {
		r.printf("Response: %s\n", text)
	}
	if env.Meta.CostUSD != nil {
		r.printf("Cost: $%.6f\n", *env.Meta.CostUSD)
	}
	r.printf("Cache hit: %v\n", env.Meta.CacheHit)
	r.printf("Request ID: %s\n", env.Meta.RequestID)
}

// CacheHit sends the same cacheable request twice. Whether the second one is
// a hit is decided by the service; each response is printed on its own.
func (r *Runner) CacheHit(ctx context.Context) {
	r.printf("=== Caching Example ===\n")

	req := &model.LLMProxyRequest{
		Target:   r.cfg.LLMTarget,
		Messages: []model.ChatMessage{{Role: "user", Content: "What is circuit breaker pattern?"}},
		Model:    r.cfg.LLMModel,
		Cache:    model.Int(r.cfg.CacheSeconds),
	}

	r.printf("First request (will call the provider):\n")
	r.cachedCall(ctx, req)

	r.printf("\nSecond request (same question, should be cached):\n")
	if env := r.cachedCall(ctx, req); env != nil && env.Meta.CacheHit {
		r.printf("Second request was served from cache.\n")
	}
}

func (r *Runner) cachedCall(ctx context.Context, req *model.LLMProxyRequest) *model.Envelope {
	env, err := r.proxy.ProxyLLM(ctx, req)
	if err != nil {
		r.report(client.EndpointLLM, err)
		return nil
	}
	r.printf("Cache hit: %v, Cost: %s\n", env.Meta.CacheHit, formatCost(env.Meta.CostUSD))
	return env
}

// ErrorPath sends a request with an oversized max_tokens, which the service
// is expected to refuse under its budget cap. No retry follows.
func (r *Runner) ErrorPath(ctx context.Context) {
	r.printf("=== Error Handling Example ===\n")

	req := &model.LLMProxyRequest{
		Target:    r.cfg.LLMTarget,
		Messages:  []model.ChatMessage{{Role: "user", Content: "Test"}},
		Model:     r.cfg.LLMModel,
		MaxTokens: model.Int(r.cfg.OversizedMaxTokens),
	}

	if _, err := r.proxy.ProxyLLM(ctx, req); err != nil {
		r.report(client.EndpointLLM, err)
		return
	}
	r.printf("Success!\n")
}

// report prints a failed call by category and logs it.
func (r *Runner) report(endpoint string, err error) {
	var (
		te *client.TransportError
		se *client.StatusError
		de *client.DecodeError
	)
	switch {
	case errors.As(err, &se):
		r.printf("Error: %d - %s\n", se.StatusCode, se.Body)
		if se.Detail != nil && se.Detail.Code != "" {
			r.printf("  Code: %s, Message: %s, Retryable: %v\n", se.Detail.Code, se.Detail.Message, se.Detail.Retryable)
		}
	case errors.As(err, &de):
		r.printf("Malformed response (status %d): %v\n", de.StatusCode, de.Err)
	case errors.As(err, &te):
		r.printf("Request error: %v\n", te.Err)
	default:
		r.printf("Request error: %v\n", err)
	}
	r.logger.Warn("reliapi call failed", "endpoint", endpoint, "err", err)
}

func (r *Runner) printSummary() {
	if r.metrics == nil {
		return
	}
	s, err := r.metrics.ClientSummary()
	if err != nil {
		r.logger.Error("gather metrics", "err", err)
		return
	}
	r.printf("Calls: %d (failed: %d), cache hits: %d, idempotent hits: %d, reported cost: $%.6f\n",
		s.Calls, s.Failures, s.CacheHits, s.IdempotentHits, s.CostUSD)
}

// idempotencyKey returns "<prefix>-<kind>-<unix seconds>".
func (r *Runner) idempotencyKey(kind string) string {
	return fmt.Sprintf("%s-%s-%d", r.cfg.KeyPrefix, kind, r.now().Unix())
}

func (r *Runner) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(r.out, format, args...); err != nil {
		r.logger.Debug("write output", "err", err)
	}
}

func formatCost(cost *float64) string {
	if cost == nil {
		return "n/a"
	}
	return fmt.Sprintf("$%.6f", *cost)
}
