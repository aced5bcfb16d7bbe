// Package service implements the canned behaviour of the local ReliAPI stand-in.
//
// The stand-in answers with fixed shapes only: a byte-identical cacheable
// request is reported as a cache hit, a repeated idempotency key as an
// idempotent hit, and an LLM request above the token budget is refused.
// Nothing expires, nothing is retried and no upstream is contacted.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"reliapi-demo/internal/config"
	"reliapi-demo/internal/model"
)

// Costs reported by the stand-in.
const (
	llmCostUSD    = 0.002
	cachedCostUSD = 0.0
)

// ErrInvalidRequest is returned when a required request field is missing.
var ErrInvalidRequest = errors.New("invalid request")

// ErrIdempotencyConflict is returned when an idempotency key is reused with a different body.
var ErrIdempotencyConflict = errors.New("idempotency key reused with a different request body")

// BudgetError is returned when an LLM request asks for more tokens than the budget allows.
type BudgetError struct {
	MaxTokens int
	Limit     int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("max_tokens %d exceeds budget cap of %d", e.MaxTokens, e.Limit)
}

// Stats describes what the stand-in has remembered so far.
type Stats struct {
	CachedResponses int `json:"cached_responses"`
	IdempotencyKeys int `json:"idempotency_keys"`
}

type storedResponse struct {
	body string
	data json.RawMessage
}

// MockService produces envelopes for the stand-in's proxy endpoints.
type MockService struct {
	budgetMaxTokens int
	logger          *slog.Logger

	mu    sync.Mutex
	cache map[string]json.RawMessage
	keys  map[string]storedResponse
}

// NewMockService creates a MockService.
func NewMockService(cfg *config.Config, logger *slog.Logger) *MockService {
	return &MockService{
		budgetMaxTokens: cfg.Mock.BudgetMaxTokens,
		logger:          logger.With("component", "mock_service"),
		cache:           make(map[string]json.RawMessage),
		keys:            make(map[string]storedResponse),
	}
}

// ProxyHTTP answers a /proxy/http request.
func (s *MockService) ProxyHTTP(req *model.HTTPProxyRequest, requestID string) (*model.Envelope, error) {
	start := time.Now()
	if req.Target == "" || req.Method == "" || req.Path == "" {
		return nil, fmt.Errorf("%w: target, method and path are required", ErrInvalidRequest)
	}

	data, err := json.Marshal(map[string]any{
		"status_code": 200,
		"headers":     map[string]string{"Content-Type": "application/json"},
		"body": map[string]any{
			"target": req.Target,
			"method": strings.ToUpper(req.Method),
			"path":   req.Path,
			"query":  req.Query,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}

	env, err := s.respond("http", req, req.IdempotencyKey, req.Cache, data, nil)
	if err != nil {
		return nil, err
	}
	env.Meta.RequestID = requestID
	env.Meta.Target = req.Target
	env.Meta.DurationMs = time.Since(start).Milliseconds()
	return env, nil
}

// ProxyLLM answers a /proxy/llm request with a one-choice chat completion.
func (s *MockService) ProxyLLM(req *model.LLMProxyRequest, requestID string) (*model.Envelope, error) {
	start := time.Now()
	if req.Target == "" || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: target and messages are required", ErrInvalidRequest)
	}
	if req.MaxTokens != nil && *req.MaxTokens > s.budgetMaxTokens {
		return nil, &BudgetError{MaxTokens: *req.MaxTokens, Limit: s.budgetMaxTokens}
	}

	prompt := req.Messages[len(req.Messages)-1].Content
	data, err := json.Marshal(map[string]any{
		"id":     "chatcmpl-" + requestID,
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       model.ChatMessage{Role: "assistant", Content: "Mock reply to: " + prompt},
			"finish_reason": "stop",
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}

	env, err := s.respond("llm", req, req.IdempotencyKey, req.Cache, data, model.Float(llmCostUSD))
	if err != nil {
		return nil, err
	}
	env.Meta.RequestID = requestID
	env.Meta.Target = req.Target
	env.Meta.Provider = req.Target
	env.Meta.Model = req.Model
	env.Meta.DurationMs = time.Since(start).Milliseconds()
	return env, nil
}

// respond looks the request up by idempotency key, then by cache key, and
// records fresh data under both. cost is nil for endpoints that report none.
func (s *MockService) respond(endpoint string, req any, idemKey *string, ttl *int, data json.RawMessage, cost *float64) (*model.Envelope, error) {
	canonical, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	body := endpoint + " " + string(canonical)
	cacheable := ttl != nil && *ttl > 0

	s.mu.Lock()
	defer s.mu.Unlock()

	var meta model.Meta

	if idemKey != nil && *idemKey != "" {
		k := endpoint + " " + *idemKey
		if prev, ok := s.keys[k]; ok {
			if prev.body != body {
				return nil, ErrIdempotencyConflict
			}
			meta.IdempotentHit = true
			if cost != nil {
				meta.CostUSD = model.Float(cachedCostUSD)
			}
			s.logger.Debug("idempotent replay", "endpoint", endpoint, "key", *idemKey)
			return &model.Envelope{Success: model.Bool(true), Data: prev.data, Meta: meta}, nil
		}
	}

	if cacheable {
		if cached, ok := s.cache[body]; ok {
			meta.CacheHit = true
			if cost != nil {
				meta.CostUSD = model.Float(cachedCostUSD)
			}
			data = cached
		} else {
			s.cache[body] = data
		}
	}
	if !meta.CacheHit {
		meta.CostUSD = cost
	}

	if idemKey != nil && *idemKey != "" {
		s.keys[endpoint+" "+*idemKey] = storedResponse{body: body, data: data}
	}

	return &model.Envelope{Success: model.Bool(true), Data: data, Meta: meta}, nil
}

// Stats returns the number of remembered cache entries and idempotency keys.
func (s *MockService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{CachedResponses: len(s.cache), IdempotencyKeys: len(s.keys)}
}
