package main

import (
	"time"

	"github.com/google/uuid"
)

// ResolutionStatus describes the outcome of resolving one test case
type ResolutionStatus string

const (
	StatusSuccess ResolutionStatus = "success"
	StatusPartial ResolutionStatus = "partial"
	StatusFailed  ResolutionStatus = "failed"
)

// PageResult is the resolved model for one page plus its stabilization outcome
type PageResult struct {
	Page     *PageModel              `json:"page"`
	Probes   map[string]ElementProbe `json:"probes,omitempty"`
	Degraded bool                    `json:"degraded"`
}

// ResolutionResult is the complete outcome of one test case run through
// the pipeline
type ResolutionResult struct {
	ID string `json:"id"`
	// TestCase is the normalized input, untouched by later stages.
	TestCase *TestCase `json:"test_case"`
	// InterpretedSteps are the interpreter's copies of TestCase.Steps with
	// action/target/value assigned.
	InterpretedSteps []CanonicalStep  `json:"interpreted_steps,omitempty"`
	Pages            []PageResult     `json:"pages"`
	Status           ResolutionStatus `json:"status"`
	Model            string           `json:"model,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
	Error            string           `json:"error,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	Duration         time.Duration    `json:"duration"`
}

// NewResolutionResult creates an empty result with a fresh run ID
func NewResolutionResult(tc *TestCase) *ResolutionResult {
	return &ResolutionResult{
		ID:        uuid.NewString(),
		TestCase:  tc,
		Status:    StatusFailed,
		StartedAt: time.Now(),
	}
}

// AddWarning appends a warning message to the result
func (r *ResolutionResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// DegradedPages counts pages whose stabilization fell back to identity
func (r *ResolutionResult) DegradedPages() int {
	n := 0
	for _, p := range r.Pages {
		if p.Degraded {
			n++
		}
	}
	return n
}

// finishStatus settles the status from the page outcomes: all pages clean
// is success, some degraded is partial, an error is failed.
func (r *ResolutionResult) finishStatus() {
	r.Duration = time.Since(r.StartedAt)
	if r.Error != "" {
		r.Status = StatusFailed
		return
	}
	if r.DegradedPages() > 0 || len(r.Warnings) > 0 {
		r.Status = StatusPartial
		return
	}
	r.Status = StatusSuccess
}
