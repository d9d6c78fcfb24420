// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives one question through the request state machine:
// preprocessing, retrieval, reranking, quote extraction, planning, section
// generation, table joining, and assembly. Recoverable problems become
// diagnostics on the result; only the fatal errors in pkg/types abort a
// request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pdiddy/scholarqa/internal/align"
	"github.com/pdiddy/scholarqa/internal/cost"
	"github.com/pdiddy/scholarqa/internal/llm"
	"github.com/pdiddy/scholarqa/internal/metadata"
	"github.com/pdiddy/scholarqa/internal/metrics"
	"github.com/pdiddy/scholarqa/internal/rerank"
	"github.com/pdiddy/scholarqa/internal/search"
	"github.com/pdiddy/scholarqa/internal/sections"
	"github.com/pdiddy/scholarqa/pkg/types"
)

var tracer = otel.Tracer("scholarqa/pipeline")

// Deps are the collaborators of a Pipeline. Reranker and Cache may be nil.
type Deps struct {
	LLM      llm.TextCompletion
	Backend  search.Backend
	Reranker rerank.Reranker
	Metadata metadata.Store
	Cache    metadata.Cache
	Logger   *zap.Logger
}

// Options tune a single Answer call.
type Options struct {
	// RerankDepth overrides the configured rerank depth when non-nil.
	RerankDepth *int

	// NoTables disables comparison tables for this request.
	NoTables bool

	// Progress receives one line per stage. Nil discards it.
	Progress io.Writer
}

// Pipeline answers questions. It is safe for concurrent use; every Answer
// call keeps its own state.
type Pipeline struct {
	cfg      types.PipelineConfig
	llm      llm.TextCompletion
	search   *search.Orchestrator
	reranker rerank.Reranker
	meta     metadata.Store
	cache    metadata.Cache
	aligner  *align.Aligner
	tables   *sections.TableGenerator
	pool     *ants.Pool
	logger   *zap.Logger
}

// New builds a Pipeline. The table job pool is sized by
// cfg.Generation.TableWorkers and must be released with Close.
func New(cfg types.PipelineConfig, deps Deps) (*Pipeline, error) {
	if deps.LLM == nil {
		return nil, errors.New("pipeline: no language model")
	}
	if deps.Backend == nil {
		return nil, errors.New("pipeline: no search backend")
	}
	if deps.Metadata == nil {
		return nil, errors.New("pipeline: no metadata store")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	workers := cfg.Generation.TableWorkers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating table pool: %w", err)
	}

	return &Pipeline{
		cfg: cfg,
		llm: deps.LLM,
		search: search.NewOrchestrator(deps.Backend,
			search.WithTaskLimit(cfg.Retrieval.TaskLimit),
			search.WithTaskTimeout(cfg.Retrieval.TaskTimeout),
			search.WithLogger(logger),
		),
		reranker: deps.Reranker,
		meta:     deps.Metadata,
		cache:    deps.Cache,
		aligner:  align.New(cfg.Alignment),
		tables:   sections.NewTableGenerator(deps.LLM, cfg.Generation.MaxTableColumns, cfg.Generation.MaxTableRows, logger),
		pool:     pool,
		logger:   logger.Named("pipeline"),
	}, nil
}

// Close releases the table job pool.
func (p *Pipeline) Close() {
	p.pool.Release()
}

// Answer runs query through every stage and returns the result. On a fatal
// error the returned result has status failed and a user-facing message,
// and the error is returned alongside it.
func (p *Pipeline) Answer(ctx context.Context, query string, opts Options) (*types.TaskResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is empty")
	}

	r := p.newRun(query, opts)
	ctx, span := tracer.Start(ctx, "pipeline.answer", trace.WithAttributes(
		attribute.String("task.id", r.res.TaskID),
	))
	defer span.End()

	if err := r.execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r.fail(err)
	}
	return r.finish(), nil
}

// run is the state of one Answer call.
type run struct {
	p        *Pipeline
	opts     Options
	res      *types.TaskResult
	ledger   *cost.Ledger
	logger   *zap.Logger
	progress io.Writer

	state      types.State
	stateStart time.Time
	span       trace.Span
}

func (p *Pipeline) newRun(query string, opts Options) *run {
	id := uuid.NewString()
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &run{
		p:    p,
		opts: opts,
		res: &types.TaskResult{
			TaskID:    id,
			Query:     types.Query{Original: query},
			StartedAt: time.Now().UTC(),
		},
		ledger:   cost.NewLedger(p.cfg.Generation.AIConfig),
		logger:   p.logger.With(zap.String("task", id)),
		progress: progress,
	}
}

// enter closes the current state and opens s. The returned context carries
// the span of s.
func (r *run) enter(ctx context.Context, s types.State) context.Context {
	r.leave()
	now := time.Now()
	r.state, r.stateStart = s, now
	r.res.Trace.States = append(r.res.Trace.States, types.StateEvent{State: s, At: now.UTC()})
	r.logger.Debug("state", zap.String("state", string(s)))

	if s == types.StateDone || s == types.StateFailed {
		return ctx
	}
	ctx, r.span = tracer.Start(ctx, "pipeline."+string(s))
	return ctx
}

func (r *run) leave() {
	if r.state == "" {
		return
	}
	metrics.ObserveStage(string(r.state), r.stateStart)
	if r.span != nil {
		r.span.End()
		r.span = nil
	}
}

// diag records a recoverable problem.
func (r *run) diag(d types.Diagnostic) {
	if d.Stage == "" {
		d.Stage = r.state
	}
	metrics.Diagnostics.WithLabelValues(string(d.Kind)).Inc()
	r.res.Trace.Diagnostics = append(r.res.Trace.Diagnostics, d)
	r.logger.Warn("recoverable problem",
		zap.String("stage", string(d.Stage)),
		zap.String("kind", string(d.Kind)),
		zap.String("subject", d.Subject),
		zap.String("message", d.Message))
}

func (r *run) diagf(kind types.DiagnosticKind, subject, format string, args ...any) {
	r.diag(types.Diagnostic{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

func (r *run) fail(err error) (*types.TaskResult, error) {
	if r.span != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	}
	failedIn := r.state
	r.enter(context.Background(), types.StateFailed)
	r.res.Status = types.StatusFailed
	r.res.Error = types.UserMessage(err)
	r.res.Sections = nil
	r.res.Cost = r.ledger.Summary()
	r.res.Elapsed = time.Since(r.res.StartedAt)
	metrics.Requests.WithLabelValues(string(types.StatusFailed)).Inc()

	r.logger.Error("request failed", zap.String("state", string(failedIn)), zap.Error(err))
	fmt.Fprintf(r.progress, "failed: %s\n", r.res.Error)
	return r.res, fmt.Errorf("%s: %w", failedIn, err)
}

func (r *run) finish() *types.TaskResult {
	r.enter(context.Background(), types.StateDone)
	r.res.Status = types.StatusDone
	r.res.Cost = r.ledger.Summary()
	r.res.Elapsed = time.Since(r.res.StartedAt)
	metrics.Requests.WithLabelValues(string(types.StatusDone)).Inc()

	r.logger.Info("request done",
		zap.Int("sections", len(r.res.Sections)),
		zap.Int("diagnostics", len(r.res.Trace.Diagnostics)),
		zap.Float64("cost_usd", r.res.Cost.TotalCostUSD),
		zap.Duration("elapsed", r.res.Elapsed))
	fmt.Fprintf(r.progress, "done: %d sections, %d diagnostics, $%.4f\n",
		len(r.res.Sections), len(r.res.Trace.Diagnostics), r.res.Cost.TotalCostUSD)
	return r.res
}

// execute walks the state machine. Each stage either advances or returns a
// fatal error.
func (r *run) execute(ctx context.Context) error {
	sctx := r.enter(ctx, types.StatePreprocessing)
	q, usage := r.preprocess(sctx)
	r.res.Query = q
	r.ledger.Record("preprocessing", usage)
	if err := ctx.Err(); err != nil {
		return err
	}

	sctx = r.enter(ctx, types.StateRetrieving)
	cands, err := r.retrieve(sctx, q)
	if err != nil {
		return err
	}

	sctx = r.enter(ctx, types.StateReranking)
	cands, err = r.rerank(sctx, q, cands)
	if err != nil {
		return err
	}
	r.ledger.Record("retrieval")

	sctx = r.enter(ctx, types.StateExtracting)
	ev, err := r.extract(sctx, q, cands)
	if err != nil {
		return err
	}

	sctx = r.enter(ctx, types.StatePlanning)
	specs, err := r.plan(sctx, q, ev)
	if err != nil {
		return err
	}

	sctx = r.enter(ctx, types.StateGeneratingSections)
	drafts, jobs := r.generate(sctx, q, ev, specs)
	if err := ctx.Err(); err != nil {
		return err
	}

	sctx = r.enter(ctx, types.StateAwaitingTables)
	r.awaitTables(sctx, jobs, drafts)

	r.enter(ctx, types.StateAssembling)
	r.assemble(drafts, ev)
	return nil
}
