// Package ai abstracts the generative-AI backends used for symptom
// embeddings and remediation proposals. Backends register themselves by
// name; the active one is selected once at startup from configuration.
package ai

import (
	"context"
	"fmt"
	"sort"

	"github.com/nightwatchhq/nightwatch-agent/internal/config"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

// Provider produces symptom embeddings and remediation decisions.
type Provider interface {
	// Name identifies the backend (e.g. "openai").
	Name() string
	// Embed returns a fixed-length vector for the supplied text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// ProposeRemediation returns a structured decision for the incident
	// given similar previously-resolved incidents as context.
	ProposeRemediation(ctx context.Context, incident models.Incident, similar []models.Incident) (models.Decision, error)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindMalformed   ErrorKind = "malformed_response"
)

// ProviderError is surfaced for any backend failure. It never crashes the
// process; the decision engine routes the incident to manual review.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai provider %s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Factory builds a provider from configuration.
type Factory func(cfg config.AIConfig) (Provider, error)

var registry = map[string]Factory{}

// RegisterProvider makes a backend selectable by name. Called from the
// backend files' init functions.
func RegisterProvider(name string, factory Factory) {
	registry[name] = factory
}

// New returns the provider named in cfg.Provider, or an error listing the
// registered backends.
func New(cfg config.AIConfig) (Provider, error) {
	factory, ok := registry[cfg.Provider]
	if !ok {
		names := make([]string, 0, len(registry))
		for name := range registry {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unsupported AI provider %q (registered: %v)", cfg.Provider, names)
	}
	return factory(cfg)
}
