// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sections generates the text of every planned section
// concurrently and, for list sections that cite resolved papers, spawns a
// background comparison-table job that is joined after all text is done.
package sections

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/scholarqa/internal/citation"
	"github.com/pdiddy/scholarqa/internal/llm"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// Spec is one planned section. Evidence indexes Request.Evidence.
type Spec struct {
	Title    string
	Format   types.SectionFormat
	Evidence []int
}

// Request is the input of one fan-out.
type Request struct {
	Query    string
	Sections []Spec
	Evidence []types.Evidence

	// Sources are the citable documents. Linker indexes the same sources.
	Sources []citation.Source
	Linker  *citation.Linker
}

// Draft is one generated section before reference linking. Job is set
// when a table job was spawned for it.
type Draft struct {
	Index   int
	Section types.Section
	Usage   types.Usage
	Err     error
	Job     *Job
}

// FanOut writes section texts. A nil table generator disables tables.
type FanOut struct {
	llm     llm.TextCompletion
	tables  *TableGenerator
	workers int
	logger  *zap.Logger
}

// NewFanOut returns a FanOut running at most workers section calls at once
// (default 6).
func NewFanOut(tc llm.TextCompletion, tables *TableGenerator, workers int, logger *zap.Logger) *FanOut {
	if workers <= 0 {
		workers = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanOut{llm: tc, tables: tables, workers: workers, logger: logger.Named("sections")}
}

// Generate writes every section of req. Each section fills only its own
// slot of the returned drafts, which keep plan order. A section whose text
// cannot be generated carries Err and no text. When jobs is non-nil and
// tables are enabled, table jobs are submitted to it as soon as their
// section's text is parsed.
func (f *FanOut) Generate(ctx context.Context, req Request, jobs *Jobs) []Draft {
	outline := make([]string, len(req.Sections))
	for i, s := range req.Sections {
		outline[i] = s.Title
	}
	byID := indexSources(req.Sources)

	drafts := make([]Draft, len(req.Sections))
	eg := new(errgroup.Group)
	eg.SetLimit(f.workers)
	for i, spec := range req.Sections {
		eg.Go(func() error {
			drafts[i] = f.generate(ctx, req, i, spec, outline, byID, jobs)
			return nil
		})
	}
	_ = eg.Wait()
	return drafts
}

func (f *FanOut) generate(ctx context.Context, req Request, i int, spec Spec, outline []string, byID map[string]*citation.Source, jobs *Jobs) Draft {
	d := Draft{Index: i}
	data := llm.SectionData{
		Query:   req.Query,
		Outline: outline,
		Index:   i,
		Title:   spec.Title,
		Format:  formatLabel(spec.Format),
		Sources: sectionSources(spec, req.Evidence, byID),
	}

	var parsed llm.SectionText
	var parseErr error
	for attempt := 0; attempt < 2; attempt++ {
		c, err := f.llm.Ask(ctx, llm.KindSection, data)
		d.Usage = d.Usage.Add(c.Usage)
		if err != nil {
			d.Err = fmt.Errorf("generating section %q: %w", spec.Title, err)
			return d
		}
		if parsed, parseErr = llm.ParseSectionText(c.Text); parseErr == nil {
			break
		}
	}
	if parseErr != nil {
		d.Err = fmt.Errorf("section %q: %w", spec.Title, parseErr)
		return d
	}

	d.Section = types.Section{
		Title:  parsed.Title,
		Format: spec.Format,
		TLDR:   parsed.TLDR,
		Text:   parsed.Body,
	}

	if jobs == nil || f.tables == nil || req.Linker == nil || spec.Format != types.FormatList {
		return d
	}
	papers := tablePapers(req.Linker.Refs(d.Section.Text), byID)
	if len(papers) == 0 {
		return d
	}
	title := d.Section.Title
	d.Job = jobs.Submit(i, title, func(ctx context.Context) (*types.Table, types.Usage, error) {
		return f.tables.Generate(ctx, req.Query, title, papers)
	})
	f.logger.Debug("table job submitted", zap.String("section", title), zap.Int("papers", len(papers)))
	return d
}

// indexSources maps document IDs to sources. Primary sources win over
// inline ones.
func indexSources(sources []citation.Source) map[string]*citation.Source {
	byID := make(map[string]*citation.Source, len(sources))
	for i := range sources {
		s := &sources[i]
		if prev, ok := byID[s.DocID]; ok && (!prev.Inline || s.Inline) {
			continue
		}
		byID[s.DocID] = s
	}
	return byID
}

// sectionSources groups a section's evidence by document in order of
// first appearance.
func sectionSources(spec Spec, evidence []types.Evidence, byID map[string]*citation.Source) []llm.SectionSource {
	var out []llm.SectionSource
	pos := make(map[string]int)
	for _, idx := range spec.Evidence {
		if idx < 0 || idx >= len(evidence) {
			continue
		}
		e := evidence[idx]
		src, ok := byID[e.Quote.DocID]
		if !ok {
			continue
		}
		j, seen := pos[e.Quote.DocID]
		if !seen {
			j = len(out)
			pos[e.Quote.DocID] = j
			out = append(out, llm.SectionSource{Key: citation.Key(*src)})
		}
		out[j].Quotes = append(out[j].Quotes, e.Quote.Text)
		for _, m := range e.Mentions {
			if ms, ok := byID[m.DocID]; ok {
				out[j].Inline = appendUnique(out[j].Inline, citation.Key(*ms))
			}
		}
	}
	return out
}

// tablePapers returns the cited documents with resolved metadata, ordered
// by document score.
func tablePapers(ids []string, byID map[string]*citation.Source) []llm.TablePaper {
	var srcs []*citation.Source
	for _, id := range ids {
		if s, ok := byID[id]; ok && s.Paper != nil {
			srcs = append(srcs, s)
		}
	}
	sort.SliceStable(srcs, func(i, j int) bool { return srcs[i].Score > srcs[j].Score })

	papers := make([]llm.TablePaper, len(srcs))
	for i, s := range srcs {
		papers[i] = llm.TablePaper{DocID: s.DocID, Title: s.Paper.Title, Snippets: s.Snippets}
	}
	return papers
}

func formatLabel(f types.SectionFormat) string {
	if f == types.FormatList {
		return "list"
	}
	return "synthesis"
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
