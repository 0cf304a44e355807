package main

import (
	"fmt"
	"strings"
)

// ValidationReport is the outcome of checking a test case for completeness.
// Errors block resolution, warnings and suggestions do not.
type ValidationReport struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ValidateTestCase checks a normalized test case and reports what a reviewer
// would want fixed before handing it to automation.
func ValidateTestCase(tc *TestCase) *ValidationReport {
	report := &ValidationReport{IsValid: true}

	fail := func(format string, args ...interface{}) {
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
		report.IsValid = false
	}

	if strings.TrimSpace(tc.ID) == "" {
		fail("test case has an empty id")
	}
	if strings.TrimSpace(tc.Title) == "" {
		fail("test case %s has an empty title", tc.ID)
	}
	if len(tc.Steps) == 0 {
		fail("test case %s has no steps", tc.ID)
	}

	for _, step := range tc.Steps {
		if strings.TrimSpace(step.Description) == "" {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("step %d has no description", step.StepNumber))
		}
		if strings.TrimSpace(step.ExpectedResult) == "" {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("step %d has no expected result", step.StepNumber))
		}
	}

	if len(tc.Tags) == 0 {
		report.Suggestions = append(report.Suggestions, "add tags to help organize test cases")
	}
	if tc.Priority == "" {
		report.Suggestions = append(report.Suggestions, "set a priority for the test case")
	}

	return report
}

// Summary returns a one-line human summary of the report
func (r *ValidationReport) Summary() string {
	if r.IsValid && len(r.Warnings) == 0 {
		return "valid"
	}
	if r.IsValid {
		return fmt.Sprintf("valid with %d warning(s)", len(r.Warnings))
	}
	return fmt.Sprintf("invalid: %d error(s), %d warning(s)", len(r.Errors), len(r.Warnings))
}
