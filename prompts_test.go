package main

import (
	"strings"
	"testing"
)

func TestGetPrompt_Substitution(t *testing.T) {
	out := getPrompt("step-convert", map[string]string{
		"caseTitle":       "Login",
		"caseDescription": "User authentication",
		"stepNumber":      "2",
		"stepName":        "",
		"stepDescription": "Нажать кнопку Войти",
		"expectedResult":  "User is logged in",
	})

	if strings.Contains(out, "{{") {
		t.Errorf("unsubstituted placeholders remain:\n%s", out)
	}
	if !strings.Contains(out, "Нажать кнопку Войти") {
		t.Error("step description missing from rendered prompt")
	}
}

func TestGetPrompt_SystemMentionsActions(t *testing.T) {
	out := getPrompt("step-convert-system", nil)
	for _, action := range []string{ActionNavigate, ActionFill, ActionClick, ActionVerify, ActionSelect, ActionDownload, ActionExecute} {
		if !strings.Contains(out, action) {
			t.Errorf("system prompt does not mention action %q", action)
		}
	}
}

func TestGetPrompt_MissingPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("getPrompt did not panic for an unknown prompt")
		}
	}()
	getPrompt("does-not-exist", nil)
}
