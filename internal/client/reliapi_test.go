package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reliapi-demo/internal/config"
	"reliapi-demo/internal/metrics"
	"reliapi-demo/internal/model"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		ReliAPI: config.ReliAPIConfig{
			BaseURL:      baseURL,
			APIKey:       "test-key",
			APIKeyHeader: "X-RapidAPI-Key",
		},
		Client: config.ClientConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
}

func newTestClient(baseURL string, m *metrics.Metrics) *ReliAPIClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReliAPIClient(testConfig(baseURL), logger, m)
}

func TestReliAPIClient_ProxyLLM_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/proxy/llm" {
			t.Errorf("path = %q, want /proxy/llm", r.URL.Path)
		}
		if got := r.Header.Get("X-RapidAPI-Key"); got != "test-key" {
			t.Errorf("X-RapidAPI-Key = %q, want %q", got, "test-key")
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("model = %v, want gpt-4o-mini", body["model"])
		}
		if _, ok := body["temperature"]; ok {
			t.Error("temperature should be omitted when unset")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"choices":[{"message":{"content":"X"}}]},"meta":{"request_id":"req-7","cache_hit":false,"idempotent_hit":false,"cost_usd":0.002,"duration_ms":120}}`))
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(srv.URL, m)

	env, err := c.ProxyLLM(context.Background(), &model.LLMProxyRequest{
		Target:    "openai",
		Messages:  []model.ChatMessage{{Role: "user", Content: "hi"}},
		Model:     "gpt-4o-mini",
		MaxTokens: model.Int(100),
	})
	if err != nil {
		t.Fatalf("ProxyLLM() error = %v", err)
	}
	if env.Meta.RequestID != "req-7" {
		t.Errorf("RequestID = %q, want %q", env.Meta.RequestID, "req-7")
	}
	if env.Meta.DurationMs != 120 {
		t.Errorf("DurationMs = %d, want 120", env.Meta.DurationMs)
	}
	if env.Meta.CostUSD == nil || *env.Meta.CostUSD != 0.002 {
		t.Errorf("CostUSD = %v, want 0.002", env.Meta.CostUSD)
	}
	if text, ok := model.ReplyText(env.Data); !ok || text != "X" {
		t.Errorf("ReplyText() = %q, %v; want %q, true", text, ok, "X")
	}

	s, err := m.ClientSummary()
	if err != nil {
		t.Fatalf("ClientSummary() error = %v", err)
	}
	if s.Calls != 1 || s.Failures != 0 {
		t.Errorf("summary = %+v, want 1 call, 0 failures", s)
	}
}

func TestReliAPIClient_ProxyHTTP_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/proxy/http" {
			t.Errorf("path = %q, want /proxy/http", r.URL.Path)
		}
		var req model.HTTPProxyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.IdempotencyKey == nil || *req.IdempotencyKey != "key-1" {
			t.Errorf("idempotency_key = %v, want key-1", req.IdempotencyKey)
		}
		_, _ = w.Write([]byte(`{"data":{"id":1},"meta":{"request_id":"req-1","cache_hit":true,"idempotent_hit":true,"duration_ms":3}}`))
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(srv.URL, m)

	env, err := c.ProxyHTTP(context.Background(), &model.HTTPProxyRequest{
		Target:         "jsonplaceholder",
		Method:         "GET",
		Path:           "/posts/1",
		IdempotencyKey: model.String("key-1"),
		Cache:          model.Int(300),
	})
	if err != nil {
		t.Fatalf("ProxyHTTP() error = %v", err)
	}
	if !env.Meta.CacheHit || !env.Meta.IdempotentHit {
		t.Errorf("meta = %+v, want cache and idempotent hits", env.Meta)
	}
	if env.Meta.CostUSD != nil {
		t.Errorf("CostUSD = %v, want nil", *env.Meta.CostUSD)
	}

	s, _ := m.ClientSummary()
	if s.CacheHits != 1 || s.IdempotentHits != 1 {
		t.Errorf("summary = %+v, want 1 cache hit and 1 idempotent hit", s)
	}
}

func TestReliAPIClient_StatusError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantDetail bool
	}{
		{
			name:       "reliapi error envelope",
			status:     http.StatusBadRequest,
			body:       `{"success":false,"error":{"type":"budget_error","code":"BUDGET_EXCEEDED","message":"over cap","retryable":false}}`,
			wantCode:   model.CodeBudgetExceeded,
			wantDetail: true,
		},
		{
			name:   "plain text body",
			status: http.StatusBadGateway,
			body:   "bad gateway",
		},
		{
			name:   "json without error detail",
			status: http.StatusUnauthorized,
			body:   `{"detail":"nope"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			m := metrics.New()
			_, err := newTestClient(srv.URL, m).ProxyLLM(context.Background(), &model.LLMProxyRequest{Target: "openai"})

			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v (%T), want *StatusError", err, err)
			}
			if se.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", se.StatusCode, tt.status)
			}
			if se.Body != tt.body {
				t.Errorf("Body = %q, want %q", se.Body, tt.body)
			}
			if (se.Detail != nil) != tt.wantDetail {
				t.Fatalf("Detail = %+v, want present = %v", se.Detail, tt.wantDetail)
			}
			if tt.wantDetail && se.Detail.Code != tt.wantCode {
				t.Errorf("Detail.Code = %q, want %q", se.Detail.Code, tt.wantCode)
			}

			s, _ := m.ClientSummary()
			if s.Failures != 1 {
				t.Errorf("Failures = %d, want 1", s.Failures)
			}
		})
	}
}

func TestReliAPIClient_DecodeError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>ok</html>"},
		{"truncated json", `{"data":{"x":1},"meta":{"request_id":`},
		{"wrong meta type", `{"data":{},"meta":"oops"}`},
		{"missing request id", `{"data":{},"meta":{"cache_hit":true}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, nil).ProxyHTTP(context.Background(), &model.HTTPProxyRequest{Target: "t", Method: "GET", Path: "/"})

			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v (%T), want *DecodeError", err, err)
			}
			if de.StatusCode != http.StatusOK {
				t.Errorf("StatusCode = %d, want 200", de.StatusCode)
			}
			if de.Body != tt.body {
				t.Errorf("Body = %q, want %q", de.Body, tt.body)
			}
		})
	}
}

func TestReliAPIClient_TransportError(t *testing.T) {
	// Port 1 is reserved and refuses connections.
	c := newTestClient("http://127.0.0.1:1", nil)

	_, err := c.ProxyLLM(context.Background(), &model.LLMProxyRequest{Target: "openai"})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v (%T), want *TransportError", err, err)
	}
	if te.Endpoint != EndpointLLM {
		t.Errorf("Endpoint = %q, want %q", te.Endpoint, EndpointLLM)
	}
	if !strings.Contains(err.Error(), "transport") {
		t.Errorf("Error() = %q, want mention of transport", err)
	}
}

func TestReliAPIClient_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := newTestClient(srv.URL, nil).ProxyLLM(ctx, &model.LLMProxyRequest{Target: "openai"})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v (%T), want *TransportError", err, err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(err, context.Canceled) = false; err = %v", err)
	}
}

func TestReliAPIClient_CustomKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("X-API-Key = %q, want %q", got, "test-key")
		}
		_, _ = w.Write([]byte(`{"data":null,"meta":{"request_id":"r","duration_ms":0}}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ReliAPI.APIKeyHeader = "X-API-Key"
	c := NewReliAPIClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	if _, err := c.ProxyLLM(context.Background(), &model.LLMProxyRequest{Target: "openai"}); err != nil {
		t.Fatalf("ProxyLLM() error = %v", err)
	}
}
