// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/scholarqa/internal/httputil"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// CrossEncoder calls a cross-encoder service over HTTP. The service takes
// {"model", "query", "texts"} and answers {"scores": [...]} in input order.
type CrossEncoder struct {
	Client   *http.Client
	Endpoint string
	Model    string
	APIKey   string
}

// NewCrossEncoder builds a CrossEncoder from the rerank settings.
func NewCrossEncoder(cfg types.RerankConfig) *CrossEncoder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CrossEncoder{
		Client:   &http.Client{Timeout: timeout},
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}
}

type rerankRequest struct {
	Model string   `json:"model,omitempty"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank returns one score per text.
func (e *CrossEncoder) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("rerank called with no texts")
	}
	if e.Endpoint == "" {
		return nil, fmt.Errorf("rerank endpoint not configured")
	}

	body, err := json.Marshal(rerankRequest{Model: e.Model, Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, e.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reranker returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rr rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("parsing rerank response: %w", err)
	}
	if len(rr.Scores) != len(texts) {
		return nil, fmt.Errorf("reranker returned %d scores for %d texts", len(rr.Scores), len(texts))
	}
	return rr.Scores, nil
}
