// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/scholarqa/internal/export"
	"github.com/pdiddy/scholarqa/internal/pipeline"
	"github.com/pdiddy/scholarqa/internal/store"
	"github.com/pdiddy/scholarqa/pkg/types"
)

var answerCmd = &cobra.Command{
	Use:   "answer [question]",
	Short: "Answer a research question with a cited, sectioned report",
	Long: `Answer runs the full pipeline: query decomposition, parallel passage
search, reranking, quote extraction and alignment, section planning,
concurrent section writing, and comparison tables for list sections.

Progress goes to stderr; the answer goes to stdout or --out. Failed
requests are saved too, so history shows what went wrong.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnswer,
}

func init() {
	answerCmd.Flags().String("format", "markdown", "output format: markdown, json, or yaml")
	answerCmd.Flags().StringP("out", "o", "", "write the answer to this file instead of stdout")
	answerCmd.Flags().Bool("save", true, "save the result to the local store")
	answerCmd.Flags().String("bibtex", "", "write a BibTeX file of the cited papers")
	answerCmd.Flags().String("csl", "", "write a CSL-YAML file of the cited papers")
	answerCmd.Flags().Bool("no-tables", false, "skip comparison tables")
	answerCmd.Flags().Int("rerank-depth", 0, "candidates kept after reranking: 0 skips the reranker, -1 keeps all (default from config)")
	answerCmd.Flags().String("model", "", "model identifier (default from config)")
	answerCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while answering (e.g. :9090)")
	answerCmd.Flags().BoolP("quiet", "q", false, "suppress progress output")

	rootCmd.AddCommand(answerCmd)
}

func runAnswer(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("provide a research question")
	}

	formatName, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Generation.Model = model
	}

	opts := pipeline.Options{Progress: os.Stderr}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		opts.Progress = nil
	}
	opts.NoTables, _ = cmd.Flags().GetBool("no-tables")
	if cmd.Flags().Changed("rerank-depth") {
		depth, _ := cmd.Flags().GetInt("rerank-depth")
		opts.RerankDepth = &depth
	}

	st, err := store.Open(cfg.Store, cfg.Metadata.CacheTTL)
	if err != nil {
		return err
	}
	defer st.Close()

	p, cl, err := newPipeline(cfg, st)
	if err != nil {
		return err
	}
	defer cl.Close()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		srv := serveMetrics(addr)
		defer shutdown(srv)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, runErr := p.Answer(ctx, query, opts)
	if res == nil {
		return runErr
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		if err := st.SaveResult(context.Background(), res); err != nil {
			logger.Warn("saving result", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "saved: %s\n", res.TaskID)
		}
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, res.Error)
		return runErr
	}

	out, _ := cmd.Flags().GetString("out")
	if err := writeOutput(out, func(w io.Writer) error { return export.Write(res, format, w) }); err != nil {
		return err
	}
	return writeBibliography(cmd, res.CitedPapers())
}

// writeOutput writes to path, or to stdout when path is empty.
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func writeBibliography(cmd *cobra.Command, papers []types.PaperMetadata) error {
	if path, _ := cmd.Flags().GetString("bibtex"); path != "" {
		if err := os.WriteFile(path, []byte(export.BibTeX(papers)), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if path, _ := cmd.Flags().GetString("csl"); path != "" {
		return writeOutput(path, func(w io.Writer) error { return export.WriteCSL(papers, w) })
	}
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", zap.Error(err))
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
