// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cost accumulates model usage per pipeline stage and prices it.
package cost

import (
	"sync"

	"github.com/pdiddy/scholarqa/internal/metrics"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// Ledger records usage at pipeline checkpoints. Stages are kept in the
// order they were first recorded; recording a stage twice adds to it.
type Ledger struct {
	inputPerMTok  float64
	outputPerMTok float64

	mu     sync.Mutex
	stages []types.StageCost
}

// NewLedger prices usage with the per-million-token prices of cfg.
func NewLedger(cfg types.AIConfig) *Ledger {
	return &Ledger{inputPerMTok: cfg.InputPricePerMTok, outputPerMTok: cfg.OutputPricePerMTok}
}

// Price returns the USD cost of u.
func (l *Ledger) Price(u types.Usage) float64 {
	return float64(u.InputTokens)/1e6*l.inputPerMTok + float64(u.OutputTokens)/1e6*l.outputPerMTok
}

// Record adds usages to stage and returns the stage's running total.
func (l *Ledger) Record(stage string, usages ...types.Usage) types.StageCost {
	var sum types.Usage
	for _, u := range usages {
		sum = sum.Add(u)
	}
	metrics.Tokens.WithLabelValues(stage, "input").Add(float64(sum.InputTokens))
	metrics.Tokens.WithLabelValues(stage, "output").Add(float64(sum.OutputTokens))

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.stages {
		if l.stages[i].Stage == stage {
			l.stages[i].Usage = l.stages[i].Usage.Add(sum)
			l.stages[i].CostUSD = l.Price(l.stages[i].Usage)
			return l.stages[i]
		}
	}
	sc := types.StageCost{Stage: stage, Usage: sum, CostUSD: l.Price(sum)}
	l.stages = append(l.stages, sc)
	return sc
}

// Summary returns every stage and the totals.
func (l *Ledger) Summary() types.CostSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := types.CostSummary{Stages: append([]types.StageCost(nil), l.stages...)}
	for _, sc := range l.stages {
		s.Total = s.Total.Add(sc.Usage)
	}
	s.TotalCostUSD = l.Price(s.Total)
	return s
}
