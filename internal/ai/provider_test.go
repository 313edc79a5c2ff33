package ai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/config"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(config.AIConfig{Provider: "oracle"})
	if err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
	if !strings.Contains(err.Error(), "anthropic") || !strings.Contains(err.Error(), "openai") {
		t.Fatalf("expected registered backends listed, got %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(config.AIConfig{Provider: "openai"}); err == nil {
		t.Fatalf("expected error without OPENAI_API_KEY")
	}
	if _, err := New(config.AIConfig{Provider: "anthropic"}); err == nil {
		t.Fatalf("expected error without ANTHROPIC_API_KEY")
	}
}

func TestAnthropicEmbedZeroVector(t *testing.T) {
	provider, err := newAnthropicProvider(config.AIConfig{AnthropicKey: "key", EmbeddingDims: 16})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	vec, err := provider.Embed(context.Background(), "CPU at 96%")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 16 {
		t.Fatalf("expected 16 dims, got %d", len(vec))
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", vec)
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestAnthropicProposeRemediation(t *testing.T) {
	provider, err := newAnthropicProvider(config.AIConfig{AnthropicKey: "key"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	provider.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("x-api-key") != "key" {
			t.Fatalf("missing api key header")
		}
		if req.Header.Get("anthropic-version") == "" {
			t.Fatalf("missing version header")
		}
		body := []byte(`{"content":[{"type":"text","text":"` + "```json\\n{\\\"action\\\":\\\"kill_query\\\",\\\"confidence\\\":88,\\\"should_auto_execute\\\":true,\\\"risk_level\\\":\\\"low\\\"}\\n```" + `"}]}`)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})}

	incident := models.Incident{
		TargetName: "orders-db",
		IssueType:  "high_cpu",
		Severity:   models.SeverityCritical,
		Symptoms:   "CPU at 96.21%",
		Timestamp:  time.Now(),
	}
	decision, err := provider.ProposeRemediation(context.Background(), incident, nil)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if decision.Action != models.ActionKillQuery || decision.Confidence != 88 {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestAnthropicMalformedResponse(t *testing.T) {
	provider, err := newAnthropicProvider(config.AIConfig{AnthropicKey: "key"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	provider.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		body := []byte(`{"content":[{"type":"text","text":"no structured payload here"}]}`)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})}

	_, err = provider.ProposeRemediation(context.Background(), models.Incident{}, nil)
	provErr, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Kind != KindMalformed {
		t.Fatalf("expected malformed kind, got %s", provErr.Kind)
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	incident := models.Incident{
		TargetName: "orders-db",
		IssueType:  "memory_pressure",
		Severity:   models.SeverityHigh,
		Symptoms:   "Memory at 91.00%",
		Timestamp:  time.Now(),
	}
	similar := []models.Incident{{
		TargetName: "billing-db",
		IssueType:  "memory_pressure",
		Severity:   models.SeverityHigh,
		Symptoms:   "Memory at 88.40%",
		FixApplied: "scale_connections",
		Status:     models.IncidentResolved,
	}}

	prompt := buildPrompt(incident, similar)
	for _, want := range []string{"orders-db", "memory_pressure", "billing-db", "scale_connections", "RESPONSE FORMAT"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
