// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search runs the retrieval fan-out for one question: one keyword
// task plus one passage task per sub-topic, each against a Backend, with
// per-task failure isolation. Results are merged and deduplicated before
// reranking.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Backend searches one retrieval source. Implementations must return an
// empty slice, not an error, when nothing matches.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, mode types.SearchMode, limit int) ([]types.Candidate, error)
}

// Router dispatches each mode to its own backend, so keyword paper search
// and passage search can live in different services.
type Router struct {
	Keyword  Backend
	Semantic Backend
}

// Name returns the backend identifier.
func (r *Router) Name() string {
	var parts []string
	if r.Keyword != nil {
		parts = append(parts, "keyword="+r.Keyword.Name())
	}
	if r.Semantic != nil {
		parts = append(parts, "semantic="+r.Semantic.Name())
	}
	return "router(" + strings.Join(parts, ",") + ")"
}

// Search forwards to the backend registered for mode.
func (r *Router) Search(ctx context.Context, query string, mode types.SearchMode, limit int) ([]types.Candidate, error) {
	var b Backend
	switch mode {
	case types.ModeKeyword:
		b = r.Keyword
	case types.ModeSemantic:
		b = r.Semantic
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
	if b == nil {
		return nil, fmt.Errorf("no backend configured for %s search", mode)
	}
	return b.Search(ctx, query, mode, limit)
}

// FormatTable writes candidates as a human-readable table to w.
func FormatTable(cands []types.Candidate, w io.Writer) {
	if len(cands) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-12s  %-8s  %-6s  %s\n", "Rank", "Doc", "Kind", "Score", "Text")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for i, c := range cands {
		fmt.Fprintf(w, "%-4d  %-12s  %-8s  %-6.2f  %s\n",
			i+1, truncate(c.DocID, 12), c.Kind, c.Score, truncate(oneLine(c.Text), 60))
	}
	fmt.Fprintf(w, "\n%d results\n", len(cands))
}

// FormatJSON writes candidates as indented JSON to w.
func FormatJSON(cands []types.Candidate, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cands)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
