// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scholarqa/internal/httputil"
	"github.com/pdiddy/scholarqa/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// lengthReranker scores a text by its length and records each call.
type lengthReranker struct {
	queries []string
	batches [][]string
	err     error
}

func (r *lengthReranker) Rerank(_ context.Context, query string, texts []string) ([]float64, error) {
	r.queries = append(r.queries, query)
	r.batches = append(r.batches, texts)
	if r.err != nil {
		return nil, r.err
	}
	scores := make([]float64, len(texts))
	for i, t := range texts {
		scores[i] = float64(len(t))
	}
	return scores, nil
}

func candidates(texts ...string) []types.Candidate {
	cands := make([]types.Candidate, len(texts))
	for i, t := range texts {
		cands[i] = types.Candidate{DocID: fmt.Sprint(i), Text: t, Kind: types.KindPassage}
	}
	return cands
}

func TestGatewayDepth(t *testing.T) {
	tests := []struct {
		name      string
		depth     int
		wantTexts []string
		wantCalls int
	}{
		{"zero skips reranker", 0, []string{"bb", "a", "dddd", "ccc"}, 0},
		{"negative keeps all", -1, []string{"dddd", "ccc", "bb", "a"}, 1},
		{"positive keeps top n", 2, []string{"dddd", "ccc"}, 1},
		{"depth beyond input keeps all", 10, []string{"dddd", "ccc", "bb", "a"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &lengthReranker{}
			g := NewGateway(r, tt.depth, 0, nil)

			got, err := g.Rerank(context.Background(), "original question", candidates("bb", "a", "dddd", "ccc"))
			require.NoError(t, err)

			texts := make([]string, len(got))
			for i, c := range got {
				texts[i] = c.Text
			}
			assert.Equal(t, tt.wantTexts, texts)
			assert.Len(t, r.batches, tt.wantCalls)
		})
	}
}

func TestGatewayUsesOriginalQuery(t *testing.T) {
	r := &lengthReranker{}
	g := NewGateway(r, -1, 0, nil)
	_, err := g.Rerank(context.Background(), "what is rag?", candidates("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"what is rag?"}, r.queries)
}

func TestGatewayBatches(t *testing.T) {
	r := &lengthReranker{}
	g := NewGateway(r, -1, 2, nil)

	got, err := g.Rerank(context.Background(), "q", candidates("a", "bb", "ccc", "dddd", "eeeee"))
	require.NoError(t, err)
	assert.Len(t, got, 5)
	require.Len(t, r.batches, 3)
	assert.Equal(t, []string{"eeeee"}, r.batches[2])
}

func TestGatewayStableTies(t *testing.T) {
	g := NewGateway(&lengthReranker{}, -1, 0, nil)
	in := candidates("aa", "bb", "cc")
	got, err := g.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	for i := range got {
		assert.Equal(t, in[i].DocID, got[i].DocID)
	}
}

func TestGatewayAbstractIncludesTitle(t *testing.T) {
	r := &lengthReranker{}
	g := NewGateway(r, -1, 0, nil)
	in := []types.Candidate{{DocID: "1", Title: "Title", Text: "abstract", Kind: types.KindAbstract}}
	_, err := g.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, "Title\nabstract", r.batches[0][0])
}

func TestGatewayEmpty(t *testing.T) {
	g := NewGateway(&lengthReranker{}, -1, 0, nil)
	_, err := g.Rerank(context.Background(), "q", nil)
	assert.ErrorIs(t, err, types.ErrRerankEmpty)

	g = NewGateway(&lengthReranker{}, 0, 0, nil)
	_, err = g.Rerank(context.Background(), "q", nil)
	assert.ErrorIs(t, err, types.ErrRerankEmpty)
}

func TestGatewayRerankerError(t *testing.T) {
	boom := errors.New("model crashed")
	g := NewGateway(&lengthReranker{err: boom}, -1, 0, nil)
	_, err := g.Rerank(context.Background(), "q", candidates("a"))
	assert.ErrorIs(t, err, boom)
}

func TestGatewayDoesNotMutateInput(t *testing.T) {
	g := NewGateway(&lengthReranker{}, -1, 0, nil)
	in := candidates("a", "bb")
	_, err := g.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Zero(t, in[0].Score)
	assert.Equal(t, "a", in[0].Text)
}

// --- CrossEncoder ---

func TestCrossEncoderRerank(t *testing.T) {
	var got rerankRequest
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"scores": [0.2, 0.9]}`)
	}))
	defer ts.Close()

	e := &CrossEncoder{Client: ts.Client(), Endpoint: ts.URL, Model: "ms-marco", APIKey: "k"}
	scores, err := e.Rerank(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.2, 0.9}, scores)
	assert.Equal(t, "q", got.Query)
	assert.Equal(t, []string{"a", "b"}, got.Texts)
	assert.Equal(t, "ms-marco", got.Model)
	assert.Equal(t, "Bearer k", auth)
}

func TestCrossEncoderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http error", http.StatusInternalServerError, "boom", "HTTP 500"},
		{"score count mismatch", http.StatusOK, `{"scores": [1]}`, "1 scores for 2 texts"},
		{"malformed body", http.StatusOK, `[`, "parsing rerank response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer ts.Close()

			e := &CrossEncoder{Client: ts.Client(), Endpoint: ts.URL}
			_, err := e.Rerank(context.Background(), "q", []string{"a", "b"})
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "err = %v", err)
		})
	}
}

func TestCrossEncoderEmptyInput(t *testing.T) {
	e := &CrossEncoder{Endpoint: "http://unused"}
	_, err := e.Rerank(context.Background(), "q", nil)
	assert.Error(t, err)
}
