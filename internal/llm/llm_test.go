// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/pdiddy/scholarqa/internal/httputil"
	"github.com/pdiddy/scholarqa/pkg/types"
)

func TestMain(m *testing.M) {
	backoffBase = time.Millisecond
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// scriptedCompletion returns its replies in order.
type scriptedCompletion struct {
	replies []string
	calls   int
	err     error
}

func (s *scriptedCompletion) Ask(_ context.Context, _ PromptKind, _ any) (Completion, error) {
	if s.err != nil {
		return Completion{}, s.err
	}
	r := s.replies[min(s.calls, len(s.replies)-1)]
	s.calls++
	return Completion{Text: r, Usage: types.Usage{Calls: 1, InputTokens: 10, OutputTokens: 5}}, nil
}

// failNTimesModel fails the first N calls, then succeeds.
type failNTimesModel struct {
	failures  int
	callCount int
	last      struct {
		system, prompt string
		json           bool
	}
}

func (f *failNTimesModel) Complete(_ context.Context, system, prompt string, jsonMode bool) (Completion, error) {
	f.callCount++
	f.last.system, f.last.prompt, f.last.json = system, prompt, jsonMode
	if f.callCount <= f.failures {
		return Completion{}, fmt.Errorf("transient error (call %d)", f.callCount)
	}
	return Completion{Text: `{"ok": true}`}, nil
}

// --- Client ---

func TestCallWithRetry(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		wantErr    bool
	}{
		{"succeeds first try", 0, 3, false},
		{"succeeds after 2 failures", 2, 3, false},
		{"fails after exhausting retries", 4, 3, true},
		{"succeeds on last retry", 3, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &failNTimesModel{failures: tt.failures}
			_, err := NewClient(m, tt.maxRetries).Ask(context.Background(), KindDecompose, DecomposeData{Query: "q"})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientRendersPrompt(t *testing.T) {
	m := &failNTimesModel{}
	c := NewClient(m, 0)

	_, err := c.Ask(context.Background(), KindBreakdown, BreakdownData{Query: "how does rag work?", Max: 5})
	require.NoError(t, err)
	assert.Contains(t, m.last.prompt, "at most 5 distinct sub-topics")
	assert.Contains(t, m.last.prompt, "how does rag work?")
	assert.True(t, m.last.json)
	assert.Equal(t, systemPrompt, m.last.system)

	_, err = c.Ask(context.Background(), KindSection, SectionData{Title: "Intro", Format: "synthesis"})
	require.NoError(t, err)
	assert.False(t, m.last.json)
}

func TestClientUnknownKind(t *testing.T) {
	_, err := NewClient(&failNTimesModel{}, 0).Ask(context.Background(), PromptKind("poem"), nil)
	assert.Error(t, err)
}

func TestRenderAllKinds(t *testing.T) {
	tests := []struct {
		kind PromptKind
		data any
		want string
	}{
		{KindDecompose, DecomposeData{Query: "Q1"}, "Q1"},
		{KindBreakdown, BreakdownData{Query: "Q2", Max: 3}, "at most 3"},
		{KindQuotes, QuotesData{Query: "Q3", Title: "T", Passages: []string{"first", "second"}}, "Passage 1:\nsecond"},
		{KindPlan, PlanData{Query: "Q4", Quotes: []PlanQuote{{Index: 7, Key: "[1 | A | 2020 | Citations: 0]", Text: "x"}}}, "[7] [1 | A | 2020 | Citations: 0] x"},
		{KindSection, SectionData{Query: "Q5", Outline: []string{"A", "B"}, Title: "B", Format: "list",
			Sources: []SectionSource{{Key: "[9 | Z | 2021 | Citations: 1]", Quotes: []string{"quote"}}}}, "  - quote"},
		{KindTableColumns, TableColumnsData{Section: "S", Max: 6, Papers: []TablePaper{{DocID: "1", Title: "P"}}}, "- 1: P"},
		{KindTableValues, TableValuesData{Column: "Dataset", Definition: "data used", Papers: []TablePaper{{DocID: "2", Title: "R"}}}, `column "Dataset"`},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p, err := render(tt.kind, tt.data)
			require.NoError(t, err)
			assert.Contains(t, p.user, tt.want)
		})
	}
}

// --- AskJSON ---

func TestAskJSON(t *testing.T) {
	tests := []struct {
		name      string
		replies   []string
		wantErr   error
		wantCalls int
	}{
		{"first reply parses", []string{`{"sub_topics": ["a", "b"]}`}, nil, 1},
		{"retry after malformed", []string{`not json`, "```json\n{\"sub_topics\": [\"a\"]}\n```"}, nil, 2},
		{"malformed twice", []string{`nope`, `still nope`}, ErrMalformed, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := &scriptedCompletion{replies: tt.replies}
			var out Breakdown
			usage, err := AskJSON(context.Background(), tc, KindBreakdown, BreakdownData{}, &out)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, out.SubTopics)
			}
			assert.Equal(t, tt.wantCalls, tc.calls)
			assert.Equal(t, tt.wantCalls, usage.Calls)
			assert.Equal(t, 10*tt.wantCalls, usage.InputTokens)
		})
	}
}

func TestAskJSONTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	var out Breakdown
	_, err := AskJSON(context.Background(), &scriptedCompletion{err: boom}, KindBreakdown, nil, &out)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformed)
}

// --- Claude ---

func TestClaudeModelComplete(t *testing.T) {
	var got claudeRequest
	var headers http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"quotes\": [\"a\"]}"}],
			"usage": {"input_tokens": 120, "output_tokens": 30}
		}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	m := &ClaudeModel{APIKey: "sk-test", Model: "claude-test", Client: ts.Client()}
	c, err := m.Complete(context.Background(), "sys", "user prompt", true)
	require.NoError(t, err)

	assert.Equal(t, `{"quotes": ["a"]}`, c.Text)
	assert.Equal(t, types.Usage{Calls: 1, InputTokens: 120, OutputTokens: 30}, c.Usage)
	assert.Equal(t, "claude-test", c.Model)

	assert.Equal(t, "sk-test", headers.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", headers.Get("anthropic-version"))
	assert.Equal(t, 4096, got.MaxTokens)
	assert.True(t, strings.HasPrefix(got.System, "sys"))
	assert.Contains(t, got.System, "JSON only")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user prompt", got.Messages[0].Content)
}

func TestClaudeModelErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusBadRequest, `{"error": "bad"}`, "Claude API returned 400"},
		{"no text", http.StatusOK, `{"content": [{"type": "tool_use"}]}`, "no text content"},
		{"bad json", http.StatusOK, `{`, "decoding Claude response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer ts.Close()

			old := claudeAPIURL
			claudeAPIURL = ts.URL
			defer func() { claudeAPIURL = old }()

			_, err := (&ClaudeModel{Client: ts.Client()}).Complete(context.Background(), "", "p", false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// --- langchaingo ---

type fakeLLM struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChainModelComplete(t *testing.T) {
	fake := &fakeLLM{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        `{"columns": []}`,
		GenerationInfo: map[string]any{"PromptTokens": 42, "CompletionTokens": 7},
	}}}}
	m := &LangChainModel{client: fake, model: "gpt-test", maxTokens: 256}

	c, err := m.Complete(context.Background(), "sys", "user", true)
	require.NoError(t, err)

	assert.Equal(t, `{"columns": []}`, c.Text)
	assert.Equal(t, types.Usage{Calls: 1, InputTokens: 42, OutputTokens: 7}, c.Usage)
	assert.True(t, fake.opts.JSONMode)
	assert.Equal(t, 256, fake.opts.MaxTokens)
	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
}

func TestLangChainModelErrors(t *testing.T) {
	m := &LangChainModel{client: &fakeLLM{resp: &llms.ContentResponse{}}}
	_, err := m.Complete(context.Background(), "", "", false)
	assert.Error(t, err)

	m = &LangChainModel{client: &fakeLLM{err: errors.New("rate limited")}}
	_, err = m.Complete(context.Background(), "", "", false)
	assert.Error(t, err)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(types.AIConfig{Provider: types.ProviderAnthropic, APIKey: "k", Model: "claude"})
	require.NoError(t, err)
	assert.IsType(t, &ClaudeModel{}, m)

	_, err = NewModel(types.AIConfig{Provider: types.ProviderAnthropic})
	assert.Error(t, err)

	m, err = NewModel(types.AIConfig{Provider: types.ProviderOpenAI, Model: "gpt", BaseURL: "http://localhost:1/v1"})
	require.NoError(t, err)
	assert.IsType(t, &LangChainModel{}, m)

	_, err = NewModel(types.AIConfig{Provider: "cohere"})
	assert.Error(t, err)
}
