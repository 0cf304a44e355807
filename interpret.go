package main

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// structuredStep is the fixed response contract of the text-to-structure
// capability: action required, target/value nullable.
type structuredStep struct {
	Action string  `json:"action"`
	Target *string `json:"target"`
	Value  *string `json:"value"`
}

// Interpreter converts descriptive steps into structured action/target/
// value triples, via the model provider when one is configured and via the
// deterministic keyword classifier otherwise.
type Interpreter struct {
	provider    LLMProvider // nil = fallback classifier only
	logger      *RunLogger
	temperature float64
	maxTokens   int
}

// NewInterpreter creates an interpreter. provider and logger may be nil.
func NewInterpreter(provider LLMProvider, logger *RunLogger, temperature float64, maxTokens int) *Interpreter {
	return &Interpreter{
		provider:    provider,
		logger:      logger,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Interpret returns a new step with action/target/value populated. It
// never fails: provider errors, timeouts and unparsable responses all fall
// through to the keyword classifier, so the returned step's Action is
// never empty.
func (it *Interpreter) Interpret(ctx context.Context, step CanonicalStep, tc *TestCase) CanonicalStep {
	if it.provider != nil {
		if out, ok := it.interpretWithProvider(ctx, step, tc); ok {
			return out
		}
		it.logEvent(EventInterpretFallback, map[string]interface{}{
			"step": step.StepNumber,
		})
	}
	return it.fallbackInterpret(step)
}

func (it *Interpreter) interpretWithProvider(ctx context.Context, step CanonicalStep, tc *TestCase) (CanonicalStep, bool) {
	prompt := buildStepPrompt(step, tc)

	response, err := it.provider.Generate(ctx, GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: getPrompt("step-convert-system", nil),
		Temperature:  it.temperature,
		MaxTokens:    it.maxTokens,
	})
	if err != nil {
		it.warnf("step %d: provider call failed: %v", step.StepNumber, err)
		return CanonicalStep{}, false
	}

	parsed, ok := parseStructuredResponse(response)
	if !ok || parsed.Action == "" {
		it.warnf("step %d: unparsable provider response", step.StepNumber)
		return CanonicalStep{}, false
	}

	out := step
	out.Action = parsed.Action
	if parsed.Target != nil {
		out.Target = *parsed.Target
	}
	if parsed.Value != nil {
		out.Value = *parsed.Value
	}
	return out, true
}

// buildStepPrompt renders the step-conversion prompt with the test-case
// context so the model sees what the step belongs to.
func buildStepPrompt(step CanonicalStep, tc *TestCase) string {
	vars := map[string]string{
		"stepNumber":      strconv.Itoa(step.StepNumber),
		"stepName":        step.Name,
		"stepDescription": step.Description,
		"expectedResult":  step.ExpectedResult,
	}
	if tc != nil {
		vars["caseTitle"] = tc.DisplayTitle()
		vars["caseDescription"] = tc.Description
	}
	return getPrompt("step-convert", vars)
}

var (
	embeddedObjectPattern = regexp.MustCompile(`(?s)\{[^{}]*"action"[^{}]*\}`)
	fencedBlockPattern    = regexp.MustCompile("(?s)```(?:json)?\n?(\\{.*?\\})\n?```")
	actionFieldPattern    = regexp.MustCompile(`"action"\s*:\s*"([^"]+)"`)
	targetFieldPattern    = regexp.MustCompile(`"target"\s*:\s*"([^"]+)"`)
	valueFieldPattern     = regexp.MustCompile(`"value"\s*:\s*(?:"([^"]+)"|null)`)
)

// parseStructuredResponse recovers the {action,target,value} object from a
// provider response that may wrap it in prose. Strategies are tried in
// strict priority order, stopping at the first success: whole response as
// JSON, first brace-delimited object containing "action", first fenced
// code block, then independent per-field regex extraction.
func parseStructuredResponse(response string) (structuredStep, bool) {
	var s structuredStep

	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &s); err == nil && s.Action != "" {
		return s, true
	}

	if m := embeddedObjectPattern.FindString(response); m != "" {
		s = structuredStep{}
		if err := json.Unmarshal([]byte(m), &s); err == nil && s.Action != "" {
			return s, true
		}
	}

	if m := fencedBlockPattern.FindStringSubmatch(response); m != nil {
		s = structuredStep{}
		if err := json.Unmarshal([]byte(m[1]), &s); err == nil && s.Action != "" {
			return s, true
		}
	}

	s = structuredStep{}
	if m := actionFieldPattern.FindStringSubmatch(response); m != nil {
		s.Action = m[1]
		if t := targetFieldPattern.FindStringSubmatch(response); t != nil {
			s.Target = &t[1]
		}
		if v := valueFieldPattern.FindStringSubmatch(response); v != nil && v[1] != "" {
			s.Value = &v[1]
		}
		return s, true
	}

	return structuredStep{}, false
}

// actionKeywords maps each action to the description substrings that
// select it. Checked in classifierOrder; the sets carry both the Russian
// wording the source documents use and the English equivalents.
var actionKeywords = map[string][]string{
	ActionNavigate: {"зайти", "открыть", "перейти", "навигация", "navigate", "go to", "open"},
	ActionDownload: {"скачать", "загрузить", "download"},
	ActionFill:     {"ввести", "заполнить", "fill"},
	ActionClick:    {"нажать", "клик", "click"},
	ActionVerify:   {"проверить", "verify", "ожидать"},
	ActionSelect:   {"выбрать", "select"},
}

// classifierOrder fixes the match precedence of the keyword classifier.
var classifierOrder = []string{
	ActionNavigate,
	ActionDownload,
	ActionFill,
	ActionClick,
	ActionVerify,
	ActionSelect,
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// fallbackInterpret classifies a step by description keywords alone. Pure
// function of the description text: the same text always yields the same
// action. Unmatched descriptions default to execute.
func (it *Interpreter) fallbackInterpret(step CanonicalStep) CanonicalStep {
	out := step
	out.Action, out.Target, out.Value = classifyDescription(step.Description)
	return out
}

// classifyDescription maps description text to an action, plus target and
// value for navigations with an embedded URL.
func classifyDescription(description string) (action, target, value string) {
	lower := strings.ToLower(description)

	action = ActionExecute
	for _, candidate := range classifierOrder {
		if containsAny(lower, actionKeywords[candidate]) {
			action = candidate
			break
		}
	}

	if action == ActionNavigate {
		if u := extractURL(description); u != "" {
			target = "url"
			value = u
		}
	}
	return action, target, value
}

// extractURL pulls the first http(s) URL out of free text, trimming
// trailing sentence punctuation.
func extractURL(text string) string {
	u := urlPattern.FindString(text)
	return strings.TrimRight(u, `.,;:!?"')`)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (it *Interpreter) warnf(format string, args ...interface{}) {
	if it.logger != nil {
		it.logger.Warnf(format, args...)
	}
}

func (it *Interpreter) logEvent(t EventType, data map[string]interface{}) {
	if it.logger != nil {
		it.logger.Log(t, data)
	}
}
