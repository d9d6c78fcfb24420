// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Known key files: semantic-scholar-api-key, anthropic-api-key, openai-api-key,
// reranker-api-key, embedding-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Key file names.
const (
	SemanticScholarKey = "semantic-scholar-api-key"
	AnthropicKey       = "anthropic-api-key"
	OpenAIKey          = "openai-api-key"
	RerankerKey        = "reranker-api-key"
	EmbeddingKey       = "embedding-api-key"
)

// Secrets maps key file names to their values.
type Secrets map[string]string

// Load reads all files in dir and returns their trimmed contents by name.
// A missing directory or missing files are not errors; Load returns an empty set.
// Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (Secrets, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(Secrets)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Names returns the loaded key names, sorted.
func (s Secrets) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Apply fills empty credentials in cfg. Values already set by the config
// file, flags, or environment win. The model key follows the provider.
func (s Secrets) Apply(cfg *types.PipelineConfig) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = s[key]
		}
	}
	fill(&cfg.Retrieval.SemanticScholarAPIKey, SemanticScholarKey)
	fill(&cfg.Rerank.APIKey, RerankerKey)
	fill(&cfg.Retrieval.EmbeddingAPIKey, EmbeddingKey)
	switch cfg.Generation.Provider {
	case types.ProviderOpenAI:
		fill(&cfg.Generation.APIKey, OpenAIKey)
	default:
		fill(&cfg.Generation.APIKey, AnthropicKey)
	}
}
