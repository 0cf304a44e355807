package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DocumentSchema identifies which of the two accepted input shapes a
// document uses. Classification happens once, up front, instead of
// branching per field on whatever keys happen to be present.
type DocumentSchema int

const (
	// SchemaA steps carry explicit action/target/value fields.
	SchemaA DocumentSchema = iota
	// SchemaB steps carry only id/name/description/expectedResult.
	SchemaB
)

func (s DocumentSchema) String() string {
	if s == SchemaA {
		return "A"
	}
	return "B"
}

// rawTestCase is the superset of both input schemas at document level.
type rawTestCase struct {
	ID                string          `json:"id"`
	TestCaseID        string          `json:"testCaseId"`
	Title             string          `json:"title"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Steps             json.RawMessage `json:"steps"`
	ExpectedResult    string          `json:"expected_result"`
	ExpectedResultAlt string          `json:"expectedResult"`
	Preconditions     json.RawMessage `json:"preconditions"`
	PreconditionsText string          `json:"preconditions_text"`
	Tags              json.RawMessage `json:"tags"`
	TagsText          string          `json:"tags_text"`
	Priority          string          `json:"priority"`
}

// rawStep is the superset of both input schemas at step level. Action,
// target and value are read only to classify the schema; they never reach
// the canonical step.
type rawStep struct {
	StepNumber        *int            `json:"step_number"`
	ID                json.RawMessage `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	ExpectedResult    string          `json:"expectedResult"`
	ExpectedResultAlt string          `json:"expected_result"`

	Action string `json:"action"`
	Target string `json:"target"`
	Value  string `json:"value"`
}

// Normalizer converts raw input documents into canonical test cases.
type Normalizer struct {
	logger *RunLogger
}

// NewNormalizer creates a normalizer. logger may be nil.
func NewNormalizer(logger *RunLogger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize parses a raw JSON document (optionally nested under a
// "test_case" key) into a canonical TestCase. Individual malformed steps
// are skipped and logged; the document as a whole fails only on missing
// id, a non-sequence steps field, or zero surviving steps. Errors are
// always *ValidationError.
func (n *Normalizer) Normalize(raw []byte) (*TestCase, error) {
	doc, err := unwrapDocument(raw)
	if err != nil {
		return nil, err
	}

	var rtc rawTestCase
	if err := json.Unmarshal(doc, &rtc); err != nil {
		return nil, &ValidationError{Code: "INVALID_JSON", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}

	// id ← id | testCaseId
	id := rtc.ID
	if id == "" {
		id = rtc.TestCaseID
	}
	if id == "" {
		return nil, &ValidationError{Code: "MISSING_FIELDS", Message: "missing required field: id", Field: "id"}
	}

	if len(rtc.Steps) == 0 {
		return nil, &ValidationError{Code: "MISSING_FIELDS", Message: "missing required field: steps", Field: "steps"}
	}

	var rawSteps []json.RawMessage
	if err := json.Unmarshal(rtc.Steps, &rawSteps); err != nil {
		return nil, &ValidationError{Code: "INVALID_STEPS", Message: "field 'steps' must be a sequence", Field: "steps"}
	}

	schema := classifySchema(rawSteps)

	var steps []CanonicalStep
	for i, rs := range rawSteps {
		step, err := normalizeStep(rs, i)
		if err != nil {
			n.eventf(EventStepSkipped, map[string]interface{}{
				"step":   i + 1,
				"reason": err.Error(),
			})
			continue
		}
		steps = append(steps, step)
	}

	tc, err := NewTestCase(id, steps)
	if err != nil {
		return nil, err
	}

	// title ← title | name | id
	tc.Title = firstNonEmpty(rtc.Title, rtc.Name, id)
	// description ← description | name | ""
	tc.Description = firstNonEmpty(rtc.Description, rtc.Name)
	// expected_result ← expected_result | expectedResult | ""
	tc.ExpectedResult = firstNonEmpty(rtc.ExpectedResult, rtc.ExpectedResultAlt)
	tc.Preconditions = sequenceOrSplit(rtc.Preconditions, rtc.PreconditionsText, "\n")
	tc.Tags = sequenceOrSplit(rtc.Tags, rtc.TagsText, ",")
	tc.Priority = rtc.Priority

	n.eventf(EventCaseNormalized, map[string]interface{}{
		"id":     tc.ID,
		"schema": schema.String(),
		"steps":  len(tc.Steps),
	})

	return tc, nil
}

// unwrapDocument returns the inner object when the document nests the test
// case under a "test_case" key, otherwise the document itself.
func unwrapDocument(raw []byte) (json.RawMessage, error) {
	var envelope struct {
		TestCase json.RawMessage `json:"test_case"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ValidationError{Code: "INVALID_JSON", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if len(envelope.TestCase) > 0 && !bytes.Equal(envelope.TestCase, []byte("null")) {
		return envelope.TestCase, nil
	}
	return raw, nil
}

// classifySchema tags the document as SchemaA when any step carries an
// explicit action field, SchemaB otherwise.
func classifySchema(rawSteps []json.RawMessage) DocumentSchema {
	for _, rs := range rawSteps {
		var s rawStep
		if err := json.Unmarshal(rs, &s); err != nil {
			continue
		}
		if s.Action != "" {
			return SchemaA
		}
	}
	return SchemaB
}

// normalizeStep converts one raw step. index is the 0-based position in
// document order, used for step numbering when the step itself gives none.
// Whatever action/target/value the raw step carried is intentionally
// dropped: only the interpreter may assign those.
func normalizeStep(raw json.RawMessage, index int) (CanonicalStep, error) {
	var rs rawStep
	if err := json.Unmarshal(raw, &rs); err != nil {
		return CanonicalStep{}, fmt.Errorf("malformed step object: %w", err)
	}

	description := firstNonEmpty(rs.Description, rs.Name)
	if description == "" {
		return CanonicalStep{}, fmt.Errorf("step has no description")
	}

	return CanonicalStep{
		StepNumber:     stepNumber(&rs, index),
		ID:             stepID(rs.ID),
		Name:           rs.Name,
		Description:    description,
		ExpectedResult: firstNonEmpty(rs.ExpectedResult, rs.ExpectedResultAlt),
	}, nil
}

// stepNumber picks the explicit step_number, else the id parsed as an
// integer, else the 1-based position in document order.
func stepNumber(rs *rawStep, index int) int {
	if rs.StepNumber != nil {
		return *rs.StepNumber
	}
	if id := stepID(rs.ID); id != "" {
		if num, err := strconv.Atoi(id); err == nil {
			return num
		}
	}
	return index + 1
}

// stepID accepts both string and numeric step ids.
func stepID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

// sequenceOrSplit returns the JSON string sequence when present, otherwise
// splits the text form on sep, otherwise nil.
func sequenceOrSplit(seq json.RawMessage, text, sep string) []string {
	if len(seq) > 0 {
		var items []string
		if err := json.Unmarshal(seq, &items); err == nil {
			return items
		}
	}
	if text == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(text, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (n *Normalizer) eventf(t EventType, data map[string]interface{}) {
	if n.logger != nil {
		n.logger.Log(t, data)
	}
}
