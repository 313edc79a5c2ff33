package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nightwatchhq/nightwatch-agent/internal/config"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

const (
	anthropicAPIVersion   = "2023-06-01"
	anthropicMessagesURL  = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel = "claude-3-5-sonnet-20240620"
	anthropicMaxTokens    = 1024
)

func init() {
	RegisterProvider("anthropic", func(cfg config.AIConfig) (Provider, error) {
		return newAnthropicProvider(cfg)
	})
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// anthropicProvider calls the Anthropic messages API over plain HTTP.
// The API offers no embeddings endpoint, so Embed degrades to a zero
// vector and similarity search treats all candidates as equidistant.
type anthropicProvider struct {
	httpClient *http.Client
	apiKey     string
	model      string
	dims       int
	baseURL    string
	logger     *slog.Logger
}

func newAnthropicProvider(cfg config.AIConfig) (*anthropicProvider, error) {
	if cfg.AnthropicKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set")
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	dims := cfg.EmbeddingDims
	if dims <= 0 {
		dims = 768
	}
	return &anthropicProvider{
		httpClient: &http.Client{},
		apiKey:     cfg.AnthropicKey,
		model:      model,
		dims:       dims,
		baseURL:    anthropicMessagesURL,
		logger:     slog.Default(),
	}, nil
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.logger.Warn("anthropic backend does not support embeddings; returning zero vector")
	return make([]float32, p.dims), nil
}

func (p *anthropicProvider) ProposeRemediation(ctx context.Context, incident models.Incident, similar []models.Incident) (models.Decision, error) {
	reqBody := anthropicRequest{
		Model:       p.model,
		MaxTokens:   anthropicMaxTokens,
		Temperature: 0.2,
		System:      systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildPrompt(incident, similar)},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		kind := KindUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindUnavailable, Err: err}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = fmt.Sprintf("%s: %s", parsed.Error.Type, parsed.Error.Message)
		}
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindUnavailable, Err: errors.New(msg)}
	}

	text := ""
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: errors.New("no text content in response")}
	}

	decision, err := parseDecision(text)
	if err != nil {
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	return decision, nil
}
