package main

import (
	"context"
	"errors"
	"testing"
)

// fakeProvider returns canned responses for interpreter tests.
type fakeProvider struct {
	response string
	err      error
	calls    int
}

func (p *fakeProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	p.calls++
	return p.response, p.err
}

func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return p.err == nil }

func (p *fakeProvider) ModelInfo() ModelInfo {
	return ModelInfo{Name: "fake-model", Provider: "fake"}
}

func TestClassifyDescription(t *testing.T) {
	tests := []struct {
		description string
		wantAction  string
		wantTarget  string
		wantValue   string
	}{
		{"Открыть главную страницу", ActionNavigate, "", ""},
		{"Перейти по ссылке https://example.com/login.", ActionNavigate, "url", "https://example.com/login"},
		{"Navigate to https://example.com/cart", ActionNavigate, "url", "https://example.com/cart"},
		{"Скачать отчёт за месяц", ActionDownload, "", ""},
		{"Download the invoice", ActionDownload, "", ""},
		{"Ввести имя пользователя", ActionFill, "", ""},
		{"Fill in the password field", ActionFill, "", ""},
		{"Нажать кнопку Войти", ActionClick, "", ""},
		{"Click the submit button", ActionClick, "", ""},
		{"Проверить сообщение об ошибке", ActionVerify, "", ""},
		{"Verify the confirmation banner", ActionVerify, "", ""},
		{"Выбрать способ доставки", ActionSelect, "", ""},
		{"Select a payment method", ActionSelect, "", ""},
		{"Wait for the report to finish", ActionExecute, "", ""},
		{"", ActionExecute, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			action, target, value := classifyDescription(tt.description)
			if action != tt.wantAction {
				t.Errorf("action = %q, want %q", action, tt.wantAction)
			}
			if target != tt.wantTarget {
				t.Errorf("target = %q, want %q", target, tt.wantTarget)
			}
			if value != tt.wantValue {
				t.Errorf("value = %q, want %q", value, tt.wantValue)
			}
		})
	}
}

func TestClassifyDescription_Precedence(t *testing.T) {
	// "Открыть страницу и нажать кнопку" contains both a navigate and a
	// click keyword; navigate wins by classifier order.
	action, _, _ := classifyDescription("Открыть страницу и нажать кнопку")
	if action != ActionNavigate {
		t.Errorf("action = %q, want navigate (highest precedence)", action)
	}

	// download outranks click.
	action, _, _ = classifyDescription("Нажать и скачать файл")
	if action != ActionDownload {
		t.Errorf("action = %q, want download", action)
	}
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"go to https://example.com/login", "https://example.com/login"},
		{"open http://example.com.", "http://example.com"},
		{`see "https://example.com/a?b=1".`, "https://example.com/a?b=1"},
		{"no link here", ""},
	}
	for _, tt := range tests {
		if got := extractURL(tt.text); got != tt.want {
			t.Errorf("extractURL(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestParseStructuredResponse(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name     string
		response string
		want     structuredStep
		wantOK   bool
	}{
		{
			"whole response is json",
			`{"action": "click", "target": "#submit", "value": null}`,
			structuredStep{Action: "click", Target: str("#submit")},
			true,
		},
		{
			"object embedded in prose",
			`Here is the structured step: {"action": "fill", "target": "input[name=\"user\"]", "value": "admin"} as requested.`,
			structuredStep{Action: "fill", Target: str(`input[name="user"]`), Value: str("admin")},
			true,
		},
		{
			"fenced code block",
			"The step converts to:\n```json\n{\"action\": \"navigate\", \"target\": \"url\", \"value\": \"https://example.com\"}\n```\n",
			structuredStep{Action: "navigate", Target: str("url"), Value: str("https://example.com")},
			true,
		},
		{
			"field extraction from broken json",
			`I think "action": "verify" with "target": ".banner" and "value": null here`,
			structuredStep{Action: "verify", Target: str(".banner")},
			true,
		},
		{
			"no recoverable structure",
			"The user should click the button.",
			structuredStep{},
			false,
		},
		{
			"json without action",
			`{"target": "#x", "value": "y"}`,
			structuredStep{},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseStructuredResponse(tt.response)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if got.Action != tt.want.Action {
				t.Errorf("action = %q, want %q", got.Action, tt.want.Action)
			}
			if !equalStringPtr(got.Target, tt.want.Target) {
				t.Errorf("target = %v, want %v", deref(got.Target), deref(tt.want.Target))
			}
			if !equalStringPtr(got.Value, tt.want.Value) {
				t.Errorf("value = %v, want %v", deref(got.Value), deref(tt.want.Value))
			}
		})
	}
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestInterpret_ProviderResponse(t *testing.T) {
	provider := &fakeProvider{response: `{"action": "fill", "target": "#email", "value": "a@b.c"}`}
	it := NewInterpreter(provider, nil, 0.3, 500)

	step := CanonicalStep{StepNumber: 1, Description: "Enter the email address"}
	out := it.Interpret(context.Background(), step, nil)

	if out.Action != ActionFill || out.Target != "#email" || out.Value != "a@b.c" {
		t.Errorf("got action=%q target=%q value=%q", out.Action, out.Target, out.Value)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestInterpret_ProviderErrorFallsBack(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	it := NewInterpreter(provider, nil, 0.3, 500)

	step := CanonicalStep{StepNumber: 1, Description: "Нажать кнопку Войти"}
	out := it.Interpret(context.Background(), step, nil)

	if out.Action != ActionClick {
		t.Errorf("action = %q, want click from fallback classifier", out.Action)
	}
}

func TestInterpret_UnparsableResponseFallsBack(t *testing.T) {
	provider := &fakeProvider{response: "Sure! The user should open the page."}
	it := NewInterpreter(provider, nil, 0.3, 500)

	step := CanonicalStep{StepNumber: 1, Description: "Перейти на https://example.com/login"}
	out := it.Interpret(context.Background(), step, nil)

	if out.Action != ActionNavigate {
		t.Errorf("action = %q, want navigate from fallback classifier", out.Action)
	}
	if out.Value != "https://example.com/login" {
		t.Errorf("value = %q, want extracted URL", out.Value)
	}
}

func TestInterpret_NoProviderUsesClassifier(t *testing.T) {
	it := NewInterpreter(nil, nil, 0, 0)

	out := it.Interpret(context.Background(), CanonicalStep{Description: "Verify the result"}, nil)
	if out.Action != ActionVerify {
		t.Errorf("action = %q, want verify", out.Action)
	}
}

func TestInterpret_NeverEmptyAction(t *testing.T) {
	it := NewInterpreter(nil, nil, 0, 0)
	out := it.Interpret(context.Background(), CanonicalStep{Description: "do the thing"}, nil)
	if out.Action == "" {
		t.Error("interpreted step has empty action")
	}
	if out.Action != ActionExecute {
		t.Errorf("action = %q, want execute default", out.Action)
	}
}
