package brain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Default models per backend. Small, fast models are enough for yes/no judgments.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultClaudeModel = "claude-haiku-4-5"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOllamaModel = "llama3.1"
	DefaultOllamaHost  = "http://localhost:11434"
)

// Provider configurations

func OpenAIConfig(apiKey, model string) *ProviderConfig {
	return &ProviderConfig{
		Name:          "openai",
		Endpoint:      "https://api.openai.com/v1/chat/completions",
		APIKey:        apiKey,
		Model:         orDefault(model, DefaultOpenAIModel),
		AuthHeader:    "Authorization",
		AuthPrefix:    "Bearer ",
		BuildBody:     buildOpenAIBody,
		ParseResponse: parseOpenAIResponse,
	}
}

func ClaudeConfig(apiKey, model string) *ProviderConfig {
	return &ProviderConfig{
		Name:       "claude",
		Endpoint:   "https://api.anthropic.com/v1/messages",
		APIKey:     apiKey,
		Model:      orDefault(model, DefaultClaudeModel),
		AuthHeader: "x-api-key",
		ExtraHeaders: map[string]string{
			"anthropic-version": "2023-06-01",
		},
		BuildBody:     buildClaudeBody,
		ParseResponse: parseClaudeResponse,
	}
}

func GeminiConfig(apiKey, model string) *ProviderConfig {
	model = orDefault(model, DefaultGeminiModel)
	return &ProviderConfig{
		Name:     "gemini",
		Endpoint: "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		APIKey:   apiKey,
		Model:    model,
		// Header rather than ?key= so the key stays out of URLs and logs
		AuthHeader:    "x-goog-api-key",
		BuildBody:     buildGeminiBody,
		ParseResponse: parseGeminiResponse,
	}
}

func OllamaConfig(host, model string) *ProviderConfig {
	return &ProviderConfig{
		Name:          "ollama",
		Endpoint:      strings.TrimRight(orDefault(host, DefaultOllamaHost), "/") + "/api/generate",
		Model:         orDefault(model, DefaultOllamaModel),
		KeyOptional:   true,
		BuildBody:     buildOllamaBody,
		ParseResponse: parseOllamaResponse,
	}
}

// ProviderNames lists the backends NewProvider accepts.
func ProviderNames() []string {
	return []string{"openai", "claude", "gemini", "ollama"}
}

// NewProvider builds the named backend. endpoint overrides the API URL and is
// mostly useful for OpenAI-compatible gateways and tests.
func NewProvider(name, apiKey, model, endpoint string) (*HTTPProvider, error) {
	var cfg *ProviderConfig
	switch strings.ToLower(name) {
	case "openai", "":
		cfg = OpenAIConfig(apiKey, model)
	case "claude", "anthropic":
		cfg = ClaudeConfig(apiKey, model)
	case "gemini":
		cfg = GeminiConfig(apiKey, model)
	case "ollama":
		return NewHTTPProvider(OllamaConfig(endpoint, model)), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", name)
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	return NewHTTPProvider(cfg), nil
}

// Body builders

func buildClaudeBody(cfg *ProviderConfig, req Request) map[string]any {
	body := map[string]any{
		"model":      cfg.Model,
		"max_tokens": maxTokensOr(req.MaxTokens, 1024),
		"messages":   []map[string]string{{"role": "user", "content": req.UserPrompt}},
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}
	return body
}

func buildOpenAIBody(cfg *ProviderConfig, req Request) map[string]any {
	messages := []map[string]string{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserPrompt})

	return map[string]any{
		"model":                 cfg.Model,
		"max_completion_tokens": maxTokensOr(req.MaxTokens, 1024),
		"messages":              messages,
	}
}

func buildGeminiBody(cfg *ProviderConfig, req Request) map[string]any {
	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": req.UserPrompt}}},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokensOr(req.MaxTokens, 1024),
		},
	}

	if req.SystemPrompt != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": req.SystemPrompt}},
		}
	}

	return body
}

func buildOllamaBody(cfg *ProviderConfig, req Request) map[string]any {
	prompt := req.UserPrompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.UserPrompt
	}
	return map[string]any{
		"model":  cfg.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"num_predict": maxTokensOr(req.MaxTokens, 1024),
		},
	}
}

// Response parsers

func parseClaudeResponse(body []byte) (Parsed, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Parsed{}, err
	}
	var texts []string
	for _, c := range resp.Content {
		if c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	return Parsed{
		Content:   strings.Join(texts, "\n\n"),
		Model:     resp.Model,
		Truncated: resp.StopReason == "max_tokens",
	}, nil
}

func parseOpenAIResponse(body []byte) (Parsed, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Model string `json:"model"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Parsed{}, err
	}
	if resp.Error != nil {
		return Parsed{}, fmt.Errorf("API returned error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return Parsed{}, fmt.Errorf("no choices in response")
	}
	return Parsed{
		Content:   resp.Choices[0].Message.Content,
		Model:     resp.Model,
		Truncated: resp.Choices[0].FinishReason == "length",
	}, nil
}

func parseGeminiResponse(body []byte) (Parsed, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		ModelVersion string `json:"modelVersion"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Parsed{}, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Parsed{}, fmt.Errorf("no candidates in response")
	}
	cand := resp.Candidates[0]
	var texts []string
	for _, part := range cand.Content.Parts {
		texts = append(texts, part.Text)
	}
	return Parsed{
		Content:   strings.Join(texts, ""),
		Model:     resp.ModelVersion,
		Truncated: cand.FinishReason == "MAX_TOKENS",
	}, nil
}

func parseOllamaResponse(body []byte) (Parsed, error) {
	var resp struct {
		Response   string `json:"response"`
		Model      string `json:"model"`
		DoneReason string `json:"done_reason"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Parsed{}, err
	}
	return Parsed{
		Content:   resp.Response,
		Model:     resp.Model,
		Truncated: resp.DoneReason == "length",
	}, nil
}

// Helpers

func orDefault(v, defaultVal string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return defaultVal
}

func maxTokensOr(v, defaultVal int) int {
	if v > 0 {
		return v
	}
	return defaultVal
}
