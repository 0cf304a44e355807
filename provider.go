package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// availabilityTimeout is the per-request timeout for provider health checks.
const availabilityTimeout = 5 * time.Second

// Provider error values. Callers that fall back on failure match these
// with errors.Is.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidResponse     = errors.New("invalid provider response")
)

// GenerateRequest is one text-to-structure call.
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// ModelInfo describes the model behind a provider.
type ModelInfo struct {
	Name     string
	Provider string
}

// LLMProvider is the external text-to-structure capability. Only the
// input/output contract matters to the pipeline; transport, timeouts and
// retries are the implementation's concern.
type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	IsAvailable(ctx context.Context) bool
	ModelInfo() ModelInfo
}

// OllamaProvider talks to an Ollama server over its HTTP API.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *RunLogger
}

// NewOllamaProvider creates a provider for the given server and model.
// timeout bounds each generate call.
func NewOllamaProvider(baseURL, model string, timeout time.Duration, logger *RunLogger) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ollamaRequest is the /api/generate request body.
type ollamaRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// ollamaResponse is the subset of the /api/generate response we read.
type ollamaResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	EvalCount  int    `json:"eval_count"`
}

// Generate issues a non-streaming completion request.
func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body := ollamaRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
	}
	options := make(map[string]interface{})
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		body.Options = options
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: ollama returned %d", ErrProviderUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20)) // 4MB limit
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Response == "" {
		return "", fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}

	if p.logger != nil {
		p.logger.Log(EventProviderCall, map[string]interface{}{
			"model":       p.model,
			"eval_count":  out.EvalCount,
			"done_reason": out.DoneReason,
		})
	}

	return out.Response, nil
}

// IsAvailable checks the server's tag listing endpoint.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ModelInfo reports the configured model.
func (p *OllamaProvider) ModelInfo() ModelInfo {
	return ModelInfo{Name: p.model, Provider: "ollama"}
}

// buildProvider constructs the configured provider, or nil when the LLM
// section is disabled (the interpreter then runs classifier-only).
func buildProvider(cfg *LLMConfig, logger *RunLogger) (LLMProvider, error) {
	if cfg == nil || cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}
	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, time.Duration(cfg.Timeout)*time.Second, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
