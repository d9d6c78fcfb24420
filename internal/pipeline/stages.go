// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/scholarqa/internal/aggregate"
	"github.com/pdiddy/scholarqa/internal/citation"
	"github.com/pdiddy/scholarqa/internal/llm"
	"github.com/pdiddy/scholarqa/internal/metadata"
	"github.com/pdiddy/scholarqa/internal/rerank"
	"github.com/pdiddy/scholarqa/internal/search"
	"github.com/pdiddy/scholarqa/internal/sections"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// evidenceSet is the output of the extracting state.
type evidenceSet struct {
	evidence []types.Evidence
	sources  []citation.Source
	primary  map[string]citation.Source
	linker   *citation.Linker
}

// preprocess rewrites the query and splits it into sub-topics. Both calls
// degrade instead of failing: a failed decomposition keeps the original
// text and a failed breakdown leaves no sub-topics.
func (r *run) preprocess(ctx context.Context) (types.Query, types.Usage) {
	q := types.Query{Original: r.res.Query.Original}

	var dec llm.Decomposition
	usage, err := llm.AskJSON(ctx, r.p.llm, llm.KindDecompose, llm.DecomposeData{Query: q.Original}, &dec)
	if err != nil {
		r.diagf(types.DiagDecompositionFailure, "", "%v", err)
	} else {
		q.Rewritten = strings.TrimSpace(dec.Rewritten)
		q.Keyword = strings.TrimSpace(dec.Keyword)
	}
	if q.Rewritten == "" {
		q.Rewritten = q.Original
	}

	var bd llm.Breakdown
	u, err := llm.AskJSON(ctx, r.p.llm, llm.KindBreakdown, llm.BreakdownData{Query: q.Rewritten, Max: types.MaxSubTopics}, &bd)
	usage = usage.Add(u)
	if err != nil {
		r.diagf(types.DiagSectionBreakdownFailure, "", "%v", err)
	} else {
		q.SubTopics = cleanTopics(bd.SubTopics)
	}

	fmt.Fprintf(r.progress, "preprocessing: rewritten %q, %d sub-topics\n", q.Rewritten, len(q.SubTopics))
	return q, usage
}

// cleanTopics trims, deduplicates, and caps sub-topics.
func cleanTopics(topics []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range topics {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == types.MaxSubTopics {
			break
		}
	}
	return out
}

// retrieve runs the search fan-out and deduplicates its candidates.
func (r *run) retrieve(ctx context.Context, q types.Query) ([]types.Candidate, error) {
	out, err := r.p.search.Run(ctx, q)

	stats := &r.res.Trace.Retrieval
	stats.Tasks = len(out.Outcomes)
	stats.FailedTasks = out.Failed()
	stats.RawCandidates = len(out.Candidates)
	for _, te := range out.Errors() {
		r.diagf(types.DiagSearchTaskFailure, te.Task.Query, "%s task %d: %v", te.Task.Mode, te.Task.Index, te.Err)
	}
	if err != nil {
		return nil, err
	}

	cands, removed := search.Deduplicate(out.Candidates)
	stats.Duplicates = removed
	fmt.Fprintf(r.progress, "retrieving: %d candidates from %d tasks (%d failed, %d duplicates)\n",
		len(out.Candidates), stats.Tasks, stats.FailedTasks, removed)
	return cands, nil
}

// rerank orders cands by the cross-encoder. A reranker failure keeps the
// retrieval order, cut to the configured depth.
func (r *run) rerank(ctx context.Context, q types.Query, cands []types.Candidate) ([]types.Candidate, error) {
	if len(cands) == 0 {
		return nil, types.ErrRerankEmpty
	}
	depth := r.p.cfg.Rerank.Depth
	if r.opts.RerankDepth != nil {
		depth = *r.opts.RerankDepth
	}
	gw := rerank.NewGateway(r.p.reranker, depth, r.p.cfg.Rerank.BatchSize, r.logger)
	if !gw.Enabled() {
		r.res.Trace.Retrieval.Reranked = len(cands)
		fmt.Fprintf(r.progress, "reranking: skipped, %d candidates\n", len(cands))
		return cands, nil
	}

	ranked, err := gw.Rerank(ctx, q.Original, cands)
	if err != nil {
		if errors.Is(err, types.ErrRerankEmpty) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.diagf(types.DiagRerankFailure, "", "%v", err)
		ranked = cands
		if depth > 0 && len(ranked) > depth {
			ranked = ranked[:depth]
		}
	}
	r.res.Trace.Retrieval.Reranked = len(ranked)
	fmt.Fprintf(r.progress, "reranking: kept %d of %d candidates\n", len(ranked), len(cands))
	return ranked, nil
}

// extract aggregates candidates into documents, asks for quotes from the
// top documents concurrently, aligns every quote, and resolves the
// citations inside them.
func (r *run) extract(ctx context.Context, q types.Query, cands []types.Candidate) (*evidenceSet, error) {
	table := aggregate.Build(cands)
	docs := table.Top(r.p.cfg.Generation.MaxQuoteDocs)
	r.res.Trace.Retrieval.Documents = table.Len()

	quotes := make([][]string, len(docs))
	errs := make([]error, len(docs))
	usages := make([]types.Usage, len(docs))

	workers := r.p.cfg.Generation.QuoteWorkers
	if workers <= 0 {
		workers = 8
	}
	eg := new(errgroup.Group)
	eg.SetLimit(workers)
	for i, doc := range docs {
		eg.Go(func() error {
			passages := make([]string, len(doc.Passages))
			for j, p := range doc.Passages {
				passages[j] = p.Text
			}
			var reply llm.Quotes
			usages[i], errs[i] = llm.AskJSON(ctx, r.p.llm, llm.KindQuotes, llm.QuotesData{
				Query:    q.Original,
				Title:    doc.Title,
				Passages: passages,
			}, &reply)
			if errs[i] == nil {
				quotes[i] = cleanQuotes(reply.Quotes)
			}
			return nil
		})
	}
	_ = eg.Wait()
	r.ledger.Record("extraction", usages...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var evidence []types.Evidence
	aligned := 0
	for i, doc := range docs {
		if errs[i] != nil {
			r.diagf(types.DiagQuoteExtractionFailure, doc.DocID, "%v", errs[i])
			continue
		}
		for _, text := range quotes[i] {
			a := r.p.aligner.Align(text, doc)
			if a.Resolved {
				aligned++
			} else {
				r.diagf(types.DiagAlignmentMiss, doc.DocID, "quote not found in passages: %q", text)
			}
			evidence = append(evidence, types.Evidence{
				Index:     len(evidence),
				Quote:     types.Quote{DocID: doc.DocID, Text: text},
				Alignment: a,
			})
		}
	}
	r.res.Trace.Retrieval.Quotes = len(evidence)
	r.res.Trace.Retrieval.Aligned = aligned
	if len(evidence) == 0 {
		return nil, fmt.Errorf("%w: %d papers examined", types.ErrQuoteExtractionEmpty, len(docs))
	}

	resolver := metadata.NewResolver(r.p.meta, r.p.cache, r.logger)
	x := citation.NewExtractor(table, resolver, r.logger)
	evidence, err := x.Extract(ctx, evidence)
	if err != nil {
		return nil, err
	}
	for _, d := range x.Diagnostics() {
		r.diag(d)
	}

	sources, primary := buildSources(docs, evidence, x)
	fmt.Fprintf(r.progress, "extracting: %d quotes from %d papers (%d aligned)\n", len(evidence), len(docs), aligned)
	return &evidenceSet{
		evidence: evidence,
		sources:  sources,
		primary:  primary,
		linker:   citation.NewLinker(sources, citation.NewRegistry()),
	}, nil
}

func cleanQuotes(quotes []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, q := range quotes {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}

// buildSources returns the citable documents: quoted documents first in
// score order, then documents reached only through citation markers.
func buildSources(docs []*types.AggregatedDocument, evidence []types.Evidence, x *citation.Extractor) ([]citation.Source, map[string]citation.Source) {
	byDoc := make(map[string][]types.Evidence)
	for _, e := range evidence {
		byDoc[e.Quote.DocID] = append(byDoc[e.Quote.DocID], e)
	}

	var sources []citation.Source
	primary := make(map[string]citation.Source)
	for _, doc := range docs {
		evs, ok := byDoc[doc.DocID]
		if !ok {
			continue
		}
		src := citation.Source{DocID: doc.DocID, Score: doc.Score}
		if p, ok := x.Paper(doc.DocID); ok {
			src.Paper = &p
		}
		for _, e := range evs {
			src.Snippets = append(src.Snippets, e.Quote.Text)
			src.Mentions = append(src.Mentions, e.Mentions...)
		}
		sources = append(sources, src)
		primary[doc.DocID] = src
	}

	seen := make(map[string]bool)
	for _, e := range evidence {
		for _, m := range e.Mentions {
			if _, ok := primary[m.DocID]; ok || seen[m.DocID] {
				continue
			}
			seen[m.DocID] = true
			sources = append(sources, citation.Source{DocID: m.DocID, Paper: m.Metadata, Inline: true})
		}
	}
	return sources, primary
}

// plan asks the model to cluster the evidence into sections. Dimensions
// with no name or no valid quote are dropped; a plan left with no section
// is fatal.
func (r *run) plan(ctx context.Context, q types.Query, ev *evidenceSet) ([]sections.Spec, error) {
	pq := make([]llm.PlanQuote, len(ev.evidence))
	for i, e := range ev.evidence {
		pq[i] = llm.PlanQuote{Index: e.Index, Key: citation.Key(ev.primary[e.Quote.DocID]), Text: e.Quote.Text}
	}

	var plan llm.Plan
	usage, err := llm.AskJSON(ctx, r.p.llm, llm.KindPlan, llm.PlanData{Query: q.Original, Quotes: pq}, &plan)
	r.ledger.Record("planning", usage)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", types.ErrPlanning, err)
	}

	var specs []sections.Spec
	for _, dim := range plan.Dimensions {
		name := strings.TrimSpace(dim.Name)
		idx := validIndexes(dim.Quotes, len(ev.evidence))
		if name == "" || len(idx) == 0 {
			r.logger.Debug("planned section dropped", zap.String("name", name), zap.Ints("quotes", dim.Quotes))
			continue
		}
		specs = append(specs, sections.Spec{
			Title:    name,
			Format:   types.ParseSectionFormat(strings.ToLower(strings.TrimSpace(dim.Format))),
			Evidence: idx,
		})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %d dimensions, none with valid quotes", types.ErrPlanning, len(plan.Dimensions))
	}
	fmt.Fprintf(r.progress, "planning: %d sections\n", len(specs))
	return specs, nil
}

func validIndexes(idx []int, n int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, i := range idx {
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out
}

// generate writes every section concurrently. The returned jobs is nil when
// tables are off.
func (r *run) generate(ctx context.Context, q types.Query, ev *evidenceSet, specs []sections.Spec) ([]sections.Draft, *sections.Jobs) {
	var jobs *sections.Jobs
	var tables *sections.TableGenerator
	if r.p.cfg.Generation.TablesEnabled && !r.opts.NoTables {
		jobs = sections.NewJobs(ctx, r.p.pool)
		tables = r.p.tables
	}

	fan := sections.NewFanOut(r.p.llm, tables, r.p.cfg.Generation.SectionWorkers, r.logger)
	drafts := fan.Generate(ctx, sections.Request{
		Query:    q.Original,
		Sections: specs,
		Evidence: ev.evidence,
		Sources:  ev.sources,
		Linker:   ev.linker,
	}, jobs)

	usage := make([]types.Usage, len(drafts))
	failed := 0
	for i, d := range drafts {
		usage[i] = d.Usage
		if d.Err != nil {
			failed++
			r.diagf(types.DiagSectionGenerationFailure, specs[i].Title, "%v", d.Err)
		}
	}
	r.ledger.Record("generation", usage...)

	pending := 0
	if jobs != nil {
		pending = jobs.Len()
	}
	fmt.Fprintf(r.progress, "generating: %d sections (%d failed), %d table jobs\n", len(drafts), failed, pending)
	return drafts, jobs
}

// awaitTables joins every table job under one deadline and attaches the
// tables that finished.
func (r *run) awaitTables(ctx context.Context, jobs *sections.Jobs, drafts []sections.Draft) {
	if jobs == nil || jobs.Len() == 0 {
		return
	}
	results := jobs.Join(ctx, r.p.cfg.Generation.TableTimeout)

	usage := make([]types.Usage, len(results))
	attached := 0
	for i, res := range results {
		usage[i] = res.Usage
		if res.Err != nil {
			r.diagf(types.DiagTableGenerationFailure, res.Title, "%v", res.Err)
			continue
		}
		drafts[res.Section].Section.Table = res.Table
		attached++
	}
	r.ledger.Record("tables", usage...)
	fmt.Fprintf(r.progress, "tables: %d of %d attached\n", attached, len(results))
}

// assemble rewrites references in every generated section with the shared
// registry and collects the sections in plan order.
func (r *run) assemble(drafts []sections.Draft, ev *evidenceSet) {
	for _, d := range drafts {
		if d.Err != nil {
			continue
		}
		sec := d.Section
		for _, diag := range ev.linker.Link(&sec) {
			r.diag(diag)
		}
		r.res.Sections = append(r.res.Sections, sec)
	}
}
