// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// Fatal request errors. Each aborts Answer and maps to its own user-facing
// message through UserMessage.
var (
	ErrRetrievalEmpty       = errors.New("retrieval returned no candidates")
	ErrRerankEmpty          = errors.New("no candidates to rerank")
	ErrQuoteExtractionEmpty = errors.New("no paper yielded a quote")
	ErrPlanning             = errors.New("planning produced no usable sections")
)

// UserMessage returns the message shown to the user for a fatal error.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRetrievalEmpty):
		return "No papers were found for this question. Try rephrasing it or broadening the topic."
	case errors.Is(err, ErrRerankEmpty):
		return "The search returned nothing that could be ranked against the question."
	case errors.Is(err, ErrQuoteExtractionEmpty):
		return "None of the retrieved papers contained evidence relevant to the question."
	case errors.Is(err, ErrPlanning):
		return "The evidence could not be organized into an answer outline."
	default:
		return fmt.Sprintf("The request failed: %v", err)
	}
}

// TaskError records the failure of one search task.
type TaskError struct {
	Task SearchTask
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("search task %d (%s %q): %v", e.Task.Index, e.Task.Mode, e.Task.Query, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// DiagnosticKind classifies a recoverable problem.
type DiagnosticKind string

const (
	DiagSearchTaskFailure        DiagnosticKind = "search_task_failure"
	DiagRerankFailure            DiagnosticKind = "rerank_failure"
	DiagDecompositionFailure     DiagnosticKind = "decomposition_failure"
	DiagSectionBreakdownFailure  DiagnosticKind = "section_breakdown_failure"
	DiagQuoteExtractionFailure   DiagnosticKind = "quote_extraction_failure"
	DiagAlignmentMiss            DiagnosticKind = "alignment_miss"
	DiagCitationResolutionMiss   DiagnosticKind = "citation_resolution_miss"
	DiagSectionGenerationFailure DiagnosticKind = "section_generation_failure"
	DiagReferenceMiss            DiagnosticKind = "reference_miss"
	DiagTableGenerationFailure   DiagnosticKind = "table_generation_failure"
)

// Diagnostic is one recoverable problem absorbed by the pipeline.
type Diagnostic struct {
	Stage   State          `json:"stage" yaml:"stage"`
	Kind    DiagnosticKind `json:"kind" yaml:"kind"`
	Subject string         `json:"subject,omitempty" yaml:"subject,omitempty"`
	Message string         `json:"message" yaml:"message"`
}
