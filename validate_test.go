package main

import (
	"strings"
	"testing"
)

func TestValidateTestCase_Valid(t *testing.T) {
	tc := &TestCase{
		ID:       "TC-1",
		Title:    "Login",
		Priority: "high",
		Tags:     []string{"smoke"},
		Steps: []CanonicalStep{
			{StepNumber: 1, Description: "Open the login page", ExpectedResult: "Login form is visible"},
		},
	}
	report := ValidateTestCase(tc)

	if !report.IsValid {
		t.Fatalf("IsValid = false, errors = %v", report.Errors)
	}
	if len(report.Warnings) != 0 || len(report.Suggestions) != 0 {
		t.Errorf("warnings = %v, suggestions = %v", report.Warnings, report.Suggestions)
	}
	if report.Summary() != "valid" {
		t.Errorf("Summary() = %q", report.Summary())
	}
}

func TestValidateTestCase_Errors(t *testing.T) {
	tc := &TestCase{ID: "  ", Title: ""}
	report := ValidateTestCase(tc)

	if report.IsValid {
		t.Fatal("IsValid = true for an empty test case")
	}
	if len(report.Errors) != 3 {
		t.Errorf("errors = %v, want id, title and steps flagged", report.Errors)
	}
	if !strings.HasPrefix(report.Summary(), "invalid:") {
		t.Errorf("Summary() = %q", report.Summary())
	}
}

func TestValidateTestCase_StepWarnings(t *testing.T) {
	tc := &TestCase{
		ID:       "TC-1",
		Title:    "Login",
		Priority: "low",
		Tags:     []string{"auth"},
		Steps: []CanonicalStep{
			{StepNumber: 1, Description: "Open the page"},
			{StepNumber: 2, Description: "  ", ExpectedResult: "It works"},
		},
	}
	report := ValidateTestCase(tc)

	if !report.IsValid {
		t.Fatalf("IsValid = false, errors = %v", report.Errors)
	}
	if len(report.Warnings) != 2 {
		t.Errorf("warnings = %v, want missing expected result and missing description", report.Warnings)
	}
	if want := "valid with 2 warning(s)"; report.Summary() != want {
		t.Errorf("Summary() = %q, want %q", report.Summary(), want)
	}
}

func TestValidateTestCase_Suggestions(t *testing.T) {
	tc := &TestCase{
		ID:    "TC-1",
		Title: "Login",
		Steps: []CanonicalStep{
			{StepNumber: 1, Description: "x", ExpectedResult: "y"},
		},
	}
	report := ValidateTestCase(tc)

	if len(report.Suggestions) != 2 {
		t.Errorf("suggestions = %v, want tags and priority hints", report.Suggestions)
	}
}
