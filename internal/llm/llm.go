// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm renders the pipeline's prompts and sends them to a text
// completion model. Two models are provided: the Claude Messages API and
// any OpenAI-compatible endpoint through langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// PromptKind selects a prompt template.
type PromptKind string

const (
	KindDecompose    PromptKind = "decompose"
	KindBreakdown    PromptKind = "breakdown"
	KindQuotes       PromptKind = "quotes"
	KindPlan         PromptKind = "plan"
	KindSection      PromptKind = "section"
	KindTableColumns PromptKind = "table_columns"
	KindTableValues  PromptKind = "table_values"
)

// ErrMalformed is returned when a model's output cannot be parsed after a
// retry.
var ErrMalformed = errors.New("model output is malformed")

// Completion is one model reply.
type Completion struct {
	Text  string
	Usage types.Usage
	Model string
}

// TextCompletion answers a prompt of the given kind rendered with data.
type TextCompletion interface {
	Ask(ctx context.Context, kind PromptKind, data any) (Completion, error)
}

// Model sends one rendered prompt to a provider. When jsonMode is set the
// provider is asked to reply with a JSON object.
type Model interface {
	Complete(ctx context.Context, system, prompt string, jsonMode bool) (Completion, error)
}

// NewModel returns the Model selected by cfg.Provider.
func NewModel(cfg types.AIConfig) (Model, error) {
	switch cfg.Provider {
	case types.ProviderOpenAI:
		return NewLangChainModel(cfg)
	case types.ProviderAnthropic, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return &ClaudeModel{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Client:    &http.Client{Timeout: 5 * time.Minute},
		}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// backoffBase is the initial retry delay. Tests override it.
var backoffBase = time.Second

// Client renders prompts and calls a Model with retries.
type Client struct {
	model      Model
	maxRetries int
}

// NewClient wraps model. maxRetries is the number of additional attempts
// after a failed call.
func NewClient(model Model, maxRetries int) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{model: model, maxRetries: maxRetries}
}

// Ask renders the prompt for kind and calls the model.
func (c *Client) Ask(ctx context.Context, kind PromptKind, data any) (Completion, error) {
	p, err := render(kind, data)
	if err != nil {
		return Completion{}, fmt.Errorf("rendering %s prompt: %w", kind, err)
	}
	return callWithRetry(ctx, c.model, p, c.maxRetries)
}

// callWithRetry calls the model up to maxRetries+1 times with exponential
// backoff between attempts.
func callWithRetry(ctx context.Context, m Model, p prompt, maxRetries int) (Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := m.Complete(ctx, p.system, p.user, p.json)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return Completion{}, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// AskJSON asks for a JSON reply and decodes it into out. A reply that does
// not parse is asked for once more; a second bad reply returns
// ErrMalformed. The returned usage covers every call made.
func AskJSON(ctx context.Context, tc TextCompletion, kind PromptKind, data, out any) (types.Usage, error) {
	var usage types.Usage
	var parseErr error
	for attempt := 0; attempt < 2; attempt++ {
		c, err := tc.Ask(ctx, kind, data)
		usage = usage.Add(c.Usage)
		if err != nil {
			return usage, err
		}
		if parseErr = SafeJSON(c.Text, out); parseErr == nil {
			return usage, nil
		}
	}
	return usage, fmt.Errorf("%s: %w: %v", kind, ErrMalformed, parseErr)
}
