package main

import "fmt"

// Action vocabulary produced by the interpreter. Every interpreted step
// carries exactly one of these; ActionExecute is the catch-all.
const (
	ActionNavigate = "navigate"
	ActionFill     = "fill"
	ActionClick    = "click"
	ActionVerify   = "verify"
	ActionSelect   = "select"
	ActionDownload = "download"
	ActionExecute  = "execute"
)

// CanonicalStep is one normalized test-case step. Action, Target and Value
// are derived fields: the normalizer always clears them and only the
// interpreter assigns them, so structured fields arriving in raw input are
// never trusted.
type CanonicalStep struct {
	StepNumber     int    `json:"step_number"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	Description    string `json:"description"`
	ExpectedResult string `json:"expected_result,omitempty"`

	Action string `json:"action,omitempty"`
	Target string `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`
}

// TestCase is the canonical form of an input document. Instances are
// immutable after normalization; the interpreter returns new steps instead
// of mutating these.
type TestCase struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Steps          []CanonicalStep `json:"steps"`
	ExpectedResult string         `json:"expected_result,omitempty"`
	Preconditions  []string       `json:"preconditions,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Priority       string         `json:"priority,omitempty"`
}

// NewTestCase enforces the construction invariant: a test case exists only
// with a non-empty id and at least one surviving step.
func NewTestCase(id string, steps []CanonicalStep) (*TestCase, error) {
	if id == "" {
		return nil, &ValidationError{Code: "MISSING_FIELDS", Message: "missing required field: id", Field: "id"}
	}
	if len(steps) == 0 {
		return nil, &ValidationError{Code: "EMPTY_STEPS", Message: "test case must contain at least one step", Field: "steps"}
	}
	return &TestCase{ID: id, Steps: steps}, nil
}

// DisplayTitle returns the title, falling back to the id.
func (tc *TestCase) DisplayTitle() string {
	if tc.Title != "" {
		return tc.Title
	}
	return tc.ID
}

// ValidationError is a fatal structural problem in an input document.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
