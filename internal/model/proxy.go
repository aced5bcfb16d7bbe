// Package model defines the wire types exchanged with the ReliAPI service.
package model

import "encoding/json"

// HTTPProxyRequest is the body of POST /proxy/http.
type HTTPProxyRequest struct {
	Target         string            `json:"target"`
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	Headers        map[string]string `json:"headers,omitempty"`
	Query          map[string]string `json:"query,omitempty"`
	Body           *string           `json:"body,omitempty"`
	IdempotencyKey *string           `json:"idempotency_key,omitempty"`
	Cache          *int              `json:"cache,omitempty"` // TTL in seconds
}

// ChatMessage is a single role/content pair of an LLM conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMProxyRequest is the body of POST /proxy/llm.
type LLMProxyRequest struct {
	Target         string        `json:"target"`
	Messages       []ChatMessage `json:"messages"`
	Model          string        `json:"model"`
	MaxTokens      *int          `json:"max_tokens,omitempty"`
	Temperature    *float64      `json:"temperature,omitempty"`
	TopP           *float64      `json:"top_p,omitempty"`
	Stop           []string      `json:"stop,omitempty"`
	Stream         *bool         `json:"stream,omitempty"`
	IdempotencyKey *string       `json:"idempotency_key,omitempty"`
	Cache          *int          `json:"cache,omitempty"` // TTL in seconds
}

// Meta is the metadata block of every ReliAPI response.
type Meta struct {
	RequestID       string   `json:"request_id"`
	CacheHit        bool     `json:"cache_hit"`
	IdempotentHit   bool     `json:"idempotent_hit"`
	CostUSD         *float64 `json:"cost_usd,omitempty"`
	DurationMs      int64    `json:"duration_ms"`
	Target          string   `json:"target,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	Model           string   `json:"model,omitempty"`
	Retries         int      `json:"retries,omitempty"`
	TraceID         string   `json:"trace_id,omitempty"`
	CostEstimateUSD *float64 `json:"cost_estimate_usd,omitempty"`
}

// Envelope is a successful ReliAPI response. Data is provider-shaped and
// kept undecoded.
type Envelope struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data"`
	Meta    Meta            `json:"meta"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Type        string         `json:"type"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Retryable   bool           `json:"retryable"`
	Target      string         `json:"target,omitempty"`
	StatusCode  int            `json:"status_code,omitempty"`
	Source      string         `json:"source,omitempty"` // "reliapi" or "upstream"
	RetryAfterS *float64       `json:"retry_after_s,omitempty"`
	Hint        string         `json:"hint,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// ErrorEnvelope is the body ReliAPI returns alongside a non-2xx status.
type ErrorEnvelope struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Error codes used by ReliAPI error envelopes.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeBudgetExceeded      = "BUDGET_EXCEEDED"
	CodeRateLimitReliAPI    = "RATE_LIMIT_RELIAPI"
	CodeInternal            = "INTERNAL_ERROR"
)

// NewErrorEnvelope builds an error body originating from ReliAPI itself.
func NewErrorEnvelope(status int, typ, code, message string, retryable bool) *ErrorEnvelope {
	return &ErrorEnvelope{
		Success: false,
		Error: ErrorDetail{
			Type:       typ,
			Code:       code,
			Message:    message,
			Retryable:  retryable,
			StatusCode: status,
			Source:     "reliapi",
		},
	}
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
