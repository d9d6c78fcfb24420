// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sections

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/scholarqa/internal/llm"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// TableGenerator builds a papers-by-aspects comparison table for one
// section: one call suggests the columns, then one call per column fills
// its values.
type TableGenerator struct {
	llm     llm.TextCompletion
	maxCols int
	maxRows int
	logger  *zap.Logger
}

// NewTableGenerator returns a generator capped at maxCols columns and
// maxRows rows (default 6 each).
func NewTableGenerator(tc llm.TextCompletion, maxCols, maxRows int, logger *zap.Logger) *TableGenerator {
	if maxCols <= 0 {
		maxCols = 6
	}
	if maxRows <= 0 {
		maxRows = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableGenerator{llm: tc, maxCols: maxCols, maxRows: maxRows, logger: logger.Named("tables")}
}

// Generate builds the table for section title. papers must be ordered by
// document score; only the first maxRows become rows. A column whose
// values cannot be generated is dropped. The table fails when no column
// survives.
func (g *TableGenerator) Generate(ctx context.Context, query, title string, papers []llm.TablePaper) (*types.Table, types.Usage, error) {
	if len(papers) == 0 {
		return nil, types.Usage{}, fmt.Errorf("table %q has no papers", title)
	}
	if len(papers) > g.maxRows {
		papers = papers[:g.maxRows]
	}

	var suggested llm.TableColumns
	usage, err := llm.AskJSON(ctx, g.llm, llm.KindTableColumns, llm.TableColumnsData{
		Query:   query,
		Section: title,
		Papers:  papers,
		Max:     g.maxCols,
	}, &suggested)
	if err != nil {
		return nil, usage, fmt.Errorf("suggesting columns: %w", err)
	}
	columns := g.pickColumns(suggested.Columns)
	if len(columns) == 0 {
		return nil, usage, fmt.Errorf("table %q: model suggested no columns", title)
	}

	values := make([]map[string]string, len(columns))
	usages := make([]types.Usage, len(columns))

	var eg errgroup.Group
	for i, col := range columns {
		eg.Go(func() error {
			var reply llm.TableValues
			u, err := llm.AskJSON(ctx, g.llm, llm.KindTableValues, llm.TableValuesData{
				Query:      query,
				Column:     col.Name,
				Definition: col.Definition,
				Papers:     papers,
			}, &reply)
			usages[i] = u
			if err != nil {
				g.logger.Warn("table column dropped",
					zap.String("table", title),
					zap.String("column", col.Name),
					zap.Error(err))
				return nil
			}
			vals := make(map[string]string, len(reply.Cells))
			for _, c := range reply.Cells {
				if v := strings.TrimSpace(c.Value); v != "" {
					vals[strings.TrimSpace(c.DocID)] = v
				}
			}
			values[i] = vals
			return nil
		})
	}
	_ = eg.Wait()

	for _, u := range usages {
		usage = usage.Add(u)
	}
	if err := ctx.Err(); err != nil {
		return nil, usage, err
	}

	table := &types.Table{
		ID:    uuid.NewString(),
		Title: title,
		Cells: make(map[string]string),
	}
	for _, p := range papers {
		table.Rows = append(table.Rows, types.TableRow{ID: uuid.NewString(), DocID: p.DocID, Title: p.Title})
	}
	for i, col := range columns {
		if values[i] == nil {
			continue
		}
		tc := types.TableColumn{ID: uuid.NewString(), Name: col.Name, Description: col.Definition}
		table.Columns = append(table.Columns, tc)
		for _, row := range table.Rows {
			v, ok := values[i][row.DocID]
			if !ok {
				v = types.MissingCell
			}
			table.Cells[types.CellKey(row.ID, tc.ID)] = v
		}
	}
	if len(table.Columns) == 0 {
		return nil, usage, fmt.Errorf("table %q: every column failed", title)
	}
	return table, usage, nil
}

// pickColumns keeps the first maxCols named columns, skipping repeated
// names.
func (g *TableGenerator) pickColumns(cols []llm.ColumnSuggestion) []llm.ColumnSuggestion {
	seen := make(map[string]bool)
	var out []llm.ColumnSuggestion
	for _, c := range cols {
		name := strings.TrimSpace(c.Name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, llm.ColumnSuggestion{Name: name, Definition: strings.TrimSpace(c.Definition)})
		if len(out) == g.maxCols {
			break
		}
	}
	return out
}
