// Package llm talks to an OpenAI-compatible chat completions endpoint.
//
// Client performs exactly one HTTP call per Complete; retry policy lives in
// the orchestrator package. Non-2xx answers surface as *HTTPError so callers
// can tell retryable statuses from fatal ones.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FunctionDef describes a callable tool.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Tool wraps a function definition.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// ToolChoice forces a specific function call.
type ToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// ForceFunction returns a ToolChoice that forces name.
func ForceFunction(name string) *ToolChoice {
	tc := &ToolChoice{Type: "function"}
	tc.Function.Name = name
	return tc
}

// ResponseFormat selects structured output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request is a chat completion request. Zero-valued optional knobs are
// omitted from the wire payload.
type Request struct {
	Model               string          `json:"model"`
	Messages            []Message       `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	PresencePenalty     *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty    *float64        `json:"frequency_penalty,omitempty"`
	Tools               []Tool          `json:"tools,omitempty"`
	ToolChoice          *ToolChoice     `json:"tool_choice,omitempty"`
	ResponseFormat      *ResponseFormat `json:"response_format,omitempty"`
	PromptCacheKey      string          `json:"prompt_cache_key,omitempty"`
	PromptCacheRetain   string          `json:"prompt_cache_retention,omitempty"`
}

// Response is the part of a completion the service consumes.
type Response struct {
	Status        int
	Content       string
	ToolArguments string
	Usage         *domain.TokenUsage
}

// Completer is the seam used by generators and the orchestrator.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// HTTPError is a non-2xx answer from the provider.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("llm: http %d", e.Status)
	}
	return fmt.Sprintf("llm: http %d: %s", e.Status, e.Body)
}

// Redacted returns a copy without the provider's response body, fit for
// persisting or returning to callers.
func (e *HTTPError) Redacted() *HTTPError { return &HTTPError{Status: e.Status} }

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRetryableStatus reports whether status warrants another attempt.
func IsRetryableStatus(status int) bool { return retryableStatus[status] }

// IsRetryable reports whether err is a transient failure: a retryable HTTP
// status or a transport-level error. Context cancellation is not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return IsRetryableStatus(he.Status)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te)
}

// TransportError wraps a failure to complete the HTTP exchange.
type TransportError struct{ Err error }

func (e *TransportError) Error() string { return "llm: transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Client is the HTTP Completer.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns a client for baseURL (for example
// "https://api.openai.com"). The path /v1/chat/completions is appended.
func NewClient(baseURL, apiKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: hc}
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		TotalTokens         int `json:"total_tokens"`
		PromptTokensDetails *struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

// Complete performs a single chat completion call.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode/100 != 2 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: truncate(string(raw), 500)}
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	out := &Response{Status: resp.StatusCode, Usage: usageOf(&wr)}
	if len(wr.Choices) > 0 {
		msg := wr.Choices[0].Message
		if msg.Content != nil {
			out.Content = *msg.Content
		}
		if len(msg.ToolCalls) > 0 {
			out.ToolArguments = msg.ToolCalls[0].Function.Arguments
		}
	}
	return out, nil
}

func usageOf(wr *wireResponse) *domain.TokenUsage {
	if wr.Usage == nil {
		return nil
	}
	u := &domain.TokenUsage{
		PromptTokens:     wr.Usage.PromptTokens,
		CompletionTokens: wr.Usage.CompletionTokens,
		TotalTokens:      wr.Usage.TotalTokens,
	}
	if wr.Usage.PromptTokensDetails != nil {
		u.CachedTokens = wr.Usage.PromptTokensDetails.CachedTokens
	}
	return u
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
