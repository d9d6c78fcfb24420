// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scholarqa/internal/export"
	"github.com/pdiddy/scholarqa/internal/store"
	"github.com/pdiddy/scholarqa/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved answers, newest first",
	RunE:  runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Print a saved answer",
	Long: `Show prints a saved answer in any output format. The task ID may be
abbreviated to any unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a saved answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	historyCmd.Flags().String("contains", "", "only answers whose question contains this text")
	historyCmd.Flags().String("status", "", "only answers with this status: done or failed")
	historyCmd.Flags().Int("limit", 20, "maximum number of answers")
	historyCmd.Flags().Bool("json", false, "output as JSON")

	showCmd.Flags().String("format", "markdown", "output format: markdown, json, or yaml")
	showCmd.Flags().StringP("out", "o", "", "write to this file instead of stdout")
	showCmd.Flags().String("bibtex", "", "write a BibTeX file of the cited papers")
	showCmd.Flags().String("csl", "", "write a CSL-YAML file of the cited papers")

	rootCmd.AddCommand(historyCmd, showCmd, deleteCmd)
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store, cfg.Metadata.CacheTTL)
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	var opts store.HistoryOptions
	opts.Contains, _ = cmd.Flags().GetString("contains")
	status, _ := cmd.Flags().GetString("status")
	opts.Status = types.TaskStatus(status)
	opts.Limit, _ = cmd.Flags().GetInt("limit")

	rows, err := st.ListResults(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	formatHistory(rows, os.Stdout)
	return nil
}

// formatHistory writes saved answers as a human-readable table to w.
func formatHistory(rows []store.TaskSummary, w io.Writer) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No saved answers.")
		return
	}
	fmt.Fprintf(w, "%-8s  %-16s  %-6s  %-4s  %-8s  %s\n", "ID", "Started", "Status", "Secs", "Cost", "Question")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range rows {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%-8s  %-16s  %-6s  %-4d  $%-7.4f  %s\n",
			id, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Status,
			int(r.Elapsed/time.Second), r.CostUSD, oneLine(r.Query, 50))
	}
	fmt.Fprintf(w, "\n%d answers\n", len(rows))
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func runShow(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.LoadResult(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	if err := writeOutput(out, func(w io.Writer) error { return export.Write(res, format, w) }); err != nil {
		return err
	}
	return writeBibliography(cmd, res.CitedPapers())
}

func runDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteResult(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted: %s\n", args[0])
	return nil
}
