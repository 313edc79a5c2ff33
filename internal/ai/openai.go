package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nightwatchhq/nightwatch-agent/internal/config"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

const defaultOpenAIModel = "gpt-4o-mini"

func init() {
	RegisterProvider("openai", func(cfg config.AIConfig) (Provider, error) {
		return newOpenAIProvider(cfg)
	})
}

// openAIProvider backs embeddings and decisions with the OpenAI API.
type openAIProvider struct {
	client *openai.Client
	model  string
	dims   int
}

func newOpenAIProvider(cfg config.AIConfig) (*openAIProvider, error) {
	if cfg.OpenAIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	dims := cfg.EmbeddingDims
	if dims <= 0 {
		dims = 768
	}
	return &openAIProvider{
		client: openai.NewClient(cfg.OpenAIKey),
		model:  model,
		dims:   dims,
	}, nil
}

func (p *openAIProvider) Name() string { return "openai" }

// Embed requests a truncated text-embedding-3-small vector so every
// backend shares the same dimensionality.
func (p *openAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.SmallEmbedding3,
		Dimensions: p.dims,
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: errors.New("embedding response has no data")}
	}
	return resp.Data[0].Embedding, nil
}

func (p *openAIProvider) ProposeRemediation(ctx context.Context, incident models.Incident, similar []models.Incident) (models.Decision, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(incident, similar)},
		},
	})
	if err != nil {
		return models.Decision{}, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: errors.New("completion has no choices")}
	}

	decision, err := parseDecision(resp.Choices[0].Message.Content)
	if err != nil {
		return models.Decision{}, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	return decision, nil
}

func (p *openAIProvider) wrapError(err error) error {
	kind := KindUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &ProviderError{Provider: p.Name(), Kind: kind, Err: fmt.Errorf("openai call: %w", err)}
}
