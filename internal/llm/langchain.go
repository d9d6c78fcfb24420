// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// LangChainModel calls an OpenAI-compatible chat endpoint through
// langchaingo.
type LangChainModel struct {
	client    llms.Model
	model     string
	maxTokens int
}

// NewLangChainModel builds a model for cfg. An empty API key sends "none",
// which local OpenAI-compatible servers accept.
func NewLangChainModel(cfg types.AIConfig) (*LangChainModel, error) {
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &LangChainModel{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

// Complete sends one prompt as a system and a human message.
func (m *LangChainModel) Complete(ctx context.Context, system, prompt string, jsonMode bool) (Completion, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	opts := []llms.CallOption{llms.WithTemperature(0.0)}
	if m.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(m.maxTokens))
	}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := m.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		return Completion{}, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("model returned no choices")
	}

	choice := resp.Choices[0]
	return Completion{
		Text:  choice.Content,
		Model: m.model,
		Usage: types.Usage{
			Calls:        1,
			InputTokens:  infoInt(choice.GenerationInfo, "PromptTokens"),
			OutputTokens: infoInt(choice.GenerationInfo, "CompletionTokens"),
		},
	}, nil
}

func infoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// NewEmbedder returns a query embedder for an OpenAI-compatible embedding
// endpoint. It feeds the Qdrant passage backend.
func NewEmbedder(host, model, apiKey string) (embeddings.Embedder, error) {
	token := apiKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	}
	if host != "" {
		opts = append(opts, openai.WithBaseURL(host))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return e, nil
}
