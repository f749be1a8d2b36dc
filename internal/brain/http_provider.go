package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abelbrown/newsdedup/internal/logging"
)

var _ Provider = (*HTTPProvider)(nil)

// ProviderConfig defines how to communicate with an LLM API
type ProviderConfig struct {
	Name         string
	Endpoint     string
	APIKey       string
	Model        string
	AuthHeader   string            // "x-api-key" or "Authorization"
	AuthPrefix   string            // "" or "Bearer "
	ExtraHeaders map[string]string // Additional headers (e.g., anthropic-version)
	KeyOptional  bool              // Local backends (ollama) need no key

	// Request building
	BuildBody func(cfg *ProviderConfig, req Request) map[string]any

	// Response parsing
	ParseResponse func(body []byte) (Parsed, error)
}

// Parsed is what a ParseResponse func extracts from a raw API body.
type Parsed struct {
	Content   string
	Model     string
	Truncated bool
}

// HTTPProvider is a generic HTTP-based LLM provider
type HTTPProvider struct {
	config *ProviderConfig
	client *http.Client
}

// NewHTTPProvider creates a provider from config. The client timeout is a
// backstop; callers bound each call with their own context deadline.
func NewHTTPProvider(cfg *ProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		config: cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Model returns the configured model name.
func (p *HTTPProvider) Model() string {
	return p.config.Model
}

func (p *HTTPProvider) Available() bool {
	if p.config.KeyOptional {
		return p.config.Endpoint != ""
	}
	return p.config.APIKey != ""
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if !p.Available() {
		return Response{}, fmt.Errorf("%s provider not configured", p.config.Name)
	}

	logging.Debug("HTTP provider request", "provider", p.config.Name, "model", p.config.Model)

	body := p.config.BuildBody(p.config, req)
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}

	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logging.Error("API error", "provider", p.config.Name, "status", resp.StatusCode, "body", string(respBody))
		return Response{}, &StatusError{Provider: p.config.Name, Status: resp.StatusCode, Body: string(respBody)}
	}

	parsed, err := p.config.ParseResponse(respBody)
	if err != nil {
		return Response{}, fmt.Errorf("parse response: %w", err)
	}

	if parsed.Truncated {
		logging.Warn("LLM response truncated due to max tokens",
			"provider", p.config.Name,
			"model", parsed.Model,
			"content_len", len(parsed.Content))
	}

	logging.Debug("API response", "provider", p.config.Name, "model", parsed.Model, "content_len", len(parsed.Content))

	return Response{
		Content:     parsed.Content,
		Model:       parsed.Model,
		RawResponse: string(respBody),
		Truncated:   parsed.Truncated,
	}, nil
}

func (p *HTTPProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")

	if p.config.AuthHeader != "" && p.config.APIKey != "" {
		req.Header.Set(p.config.AuthHeader, p.config.AuthPrefix+p.config.APIKey)
	}

	for k, v := range p.config.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

// StatusError is a non-200 reply from an LLM API.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Status, e.Body)
}

// Temporary reports whether retrying may help (rate limiting or server errors).
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}
