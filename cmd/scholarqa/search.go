// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scholarqa/internal/rerank"
	"github.com/pdiddy/scholarqa/internal/search"
	"github.com/pdiddy/scholarqa/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run one search task against the configured backends",
	Long: `Search runs a single keyword or semantic search task, deduplicates the
candidates, and optionally reranks them against the query. It is the
retrieval half of answer, useful for checking what the pipeline sees.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("mode", "semantic", "search mode: semantic or keyword")
	searchCmd.Flags().Int("max-results", 20, "maximum number of results to return")
	searchCmd.Flags().Bool("rerank", false, "rerank results with the configured cross-encoder")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	modeName, _ := cmd.Flags().GetString("mode")
	mode := types.SearchMode(modeName)
	if mode != types.ModeSemantic && mode != types.ModeKeyword {
		return fmt.Errorf("unknown mode %q (want semantic or keyword)", modeName)
	}
	limit, _ := cmd.Flags().GetInt("max-results")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, _, cl, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer cl.Close()

	timeout := cfg.Retrieval.TaskTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cands, err := backend.Search(ctx, query, mode, limit)
	if err != nil {
		return fmt.Errorf("%s search: %w", mode, err)
	}
	cands, _ = search.Deduplicate(cands)

	if doRerank, _ := cmd.Flags().GetBool("rerank"); doRerank && len(cands) > 0 {
		r := newReranker(cfg)
		if r == nil {
			return fmt.Errorf("--rerank needs rerank.endpoint in the config")
		}
		gw := rerank.NewGateway(r, -1, cfg.Rerank.BatchSize, logger)
		if cands, err = gw.Rerank(ctx, query, cands); err != nil {
			return err
		}
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return search.FormatJSON(cands, os.Stdout)
	}
	search.FormatTable(cands, os.Stdout)
	return nil
}
