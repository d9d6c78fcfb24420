// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package s2 is a small client for the Semantic Scholar Graph API: snippet
// search, paper search, and batched paper lookup. Calls share one rate
// limiter and retry 429/503 responses through httputil.
package s2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/scholarqa/internal/httputil"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// DefaultBaseURL is the public Graph API root.
const DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

// PaperFields are the fields requested for paper search and batch lookup.
const PaperFields = "corpusId,title,abstract,authors,year,venue,citationCount,url,externalIds"

// Client calls the Graph API.
type Client struct {
	HTTP      *http.Client
	BaseURL   string
	APIKey    string
	UserAgent string

	// Limiter throttles every request. Nil disables throttling.
	Limiter *rate.Limiter
}

// NewClient builds a Client from the retrieval settings. Without an API key
// the public limit of one request per second applies.
func NewClient(cfg types.HTTPConfig, apiKey string, requestsPerSecond float64) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		BaseURL:   DefaultBaseURL,
		APIKey:    apiKey,
		UserAgent: cfg.UserAgent,
		Limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Get issues a GET to path with params and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, params), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(ctx, req, out)
}

// Post issues a POST of body as JSON to path and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, params url.Values, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, params), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, out)
}

func (c *Client) endpoint(path string, params url.Values) string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, 0)
	if err != nil {
		return fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Semantic Scholar API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}
	return nil
}

// ByteOffsets converts code-point offsets, as the API reports them, into
// byte offsets into text. Offsets past the end clamp to len(text).
func ByteOffsets(text string) func(int) int {
	idx := make([]int, 0, len(text)+1)
	for i := range text {
		idx = append(idx, i)
	}
	idx = append(idx, len(text))
	return func(runeOffset int) int {
		switch {
		case runeOffset <= 0:
			return 0
		case runeOffset >= len(idx):
			return len(text)
		default:
			return idx[runeOffset]
		}
	}
}
