package main

import (
	"context"
	"errors"
	"testing"
)

// fakeElement is one element in a fake document, addressable by any of
// its selectors.
type fakeElement struct {
	tag       string
	attrs     map[string]string
	visible   bool
	selectors []string
}

// fakeProbe serves a static document for stabilizer tests. counts
// overrides the match count per selector; selectors absent from counts
// default to the number of elements listing them.
type fakeProbe struct {
	elements    []*fakeElement
	counts      map[string]int
	navigateErr error
	locateErr   error
	countErr    error
	navigated   []string
}

func (p *fakeProbe) Navigate(ctx context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	return p.navigateErr
}

func (p *fakeProbe) Locate(ctx context.Context, selector string) (Handle, bool, error) {
	if p.locateErr != nil {
		return nil, false, p.locateErr
	}
	for _, el := range p.elements {
		for _, sel := range el.selectors {
			if sel == selector {
				return el, true, nil
			}
		}
	}
	return nil, false, nil
}

func (p *fakeProbe) Count(ctx context.Context, selector string) (int, error) {
	if p.countErr != nil {
		return 0, p.countErr
	}
	if n, ok := p.counts[selector]; ok {
		return n, nil
	}
	n := 0
	for _, el := range p.elements {
		for _, sel := range el.selectors {
			if sel == selector {
				n++
			}
		}
	}
	return n, nil
}

func (p *fakeProbe) TagName(ctx context.Context, h Handle) (string, error) {
	return h.(*fakeElement).tag, nil
}

func (p *fakeProbe) Attributes(ctx context.Context, h Handle) (map[string]string, error) {
	return h.(*fakeElement).attrs, nil
}

func (p *fakeProbe) IsVisible(ctx context.Context, h Handle) (bool, error) {
	return h.(*fakeElement).visible, nil
}

func stabilizePageWith(t *testing.T, probe Probe, elements map[string]string) *StabilizationResult {
	t.Helper()
	page := NewPageModel("LoginPage", "https://example.com/login")
	for name, sel := range elements {
		page.SetElement(name, sel)
	}
	return NewStabilizer(nil).StabilizePage(context.Background(), probe, page)
}

func TestStabilizePage_DataTestIDWins(t *testing.T) {
	probe := &fakeProbe{
		elements: []*fakeElement{{
			tag: "input",
			attrs: map[string]string{
				"data-testid": "user-field",
				"id":          "user",
				"name":        "user",
			},
			visible:   true,
			selectors: []string{"input.user", `[data-testid="user-field"]`, "#user"},
		}},
	}
	res := stabilizePageWith(t, probe, map[string]string{"user": "input.user"})

	if res.Degraded {
		t.Fatal("result degraded unexpectedly")
	}
	if got := res.Improved["input.user"]; got != `[data-testid="user-field"]` {
		t.Errorf("improved = %q, want data-testid form", got)
	}
	info := res.Probes["input.user"]
	if info.TagName != "input" || !info.IsVisible || !info.IsInteractive {
		t.Errorf("probe info = %+v", info)
	}
}

func TestStabilizePage_CascadeFallsThroughOnAmbiguity(t *testing.T) {
	// Two elements share the data-testid, so that candidate counts 2 and
	// the unique id takes over.
	probe := &fakeProbe{
		elements: []*fakeElement{
			{
				tag:       "input",
				attrs:     map[string]string{"data-testid": "field", "id": "user"},
				selectors: []string{"input.user", `[data-testid="field"]`, "#user"},
			},
			{
				tag:       "input",
				attrs:     map[string]string{"data-testid": "field"},
				selectors: []string{`[data-testid="field"]`},
			},
		},
	}
	res := stabilizePageWith(t, probe, map[string]string{"user": "input.user"})

	if got := res.Improved["input.user"]; got != "#user" {
		t.Errorf("improved = %q, want #user after ambiguous data-testid", got)
	}
}

func TestStabilizePage_NameRequiresFormControl(t *testing.T) {
	// A div with a name attribute must not produce div[name=...]; the
	// cascade skips to the role candidate.
	probe := &fakeProbe{
		elements: []*fakeElement{{
			tag:       "div",
			attrs:     map[string]string{"name": "panel", "role": "button"},
			selectors: []string{"div.panel", `[role="button"]`},
		}},
	}
	res := stabilizePageWith(t, probe, map[string]string{"panel": "div.panel"})

	if got := res.Improved["div.panel"]; got != `[role="button"]` {
		t.Errorf("improved = %q, want role candidate", got)
	}
}

func TestStabilizePage_AttributeTail(t *testing.T) {
	probe := &fakeProbe{
		elements: []*fakeElement{{
			tag:       "input",
			attrs:     map[string]string{"placeholder": "Email"},
			selectors: []string{"form input", `input[placeholder="Email"]`},
		}},
	}
	res := stabilizePageWith(t, probe, map[string]string{"email": "form input"})

	if got := res.Improved["form input"]; got != `input[placeholder="Email"]` {
		t.Errorf("improved = %q, want placeholder candidate", got)
	}
}

func TestStabilizePage_NoCandidateKeepsOriginal(t *testing.T) {
	probe := &fakeProbe{
		elements: []*fakeElement{{
			tag:       "span",
			attrs:     map[string]string{"class": "hint"},
			selectors: []string{"span.hint"},
		}},
	}
	res := stabilizePageWith(t, probe, map[string]string{"hint": "span.hint"})

	if got := res.Improved["span.hint"]; got != "span.hint" {
		t.Errorf("improved = %q, want original kept", got)
	}
	if res.Degraded {
		t.Error("result degraded; an unimprovable selector is not a failure")
	}
}

func TestStabilizePage_MissingSelectorContinues(t *testing.T) {
	probe := &fakeProbe{
		elements: []*fakeElement{{
			tag:       "input",
			attrs:     map[string]string{"id": "user"},
			selectors: []string{"input.user", "#user"},
		}},
	}
	res := stabilizePageWith(t, probe, map[string]string{
		"user":  "input.user",
		"ghost": ".does-not-exist",
	})

	if res.Degraded {
		t.Fatal("a missing selector must not degrade the page")
	}
	if got := res.Improved[".does-not-exist"]; got != ".does-not-exist" {
		t.Errorf("missing selector maps to %q, want itself", got)
	}
	if got := res.Improved["input.user"]; got != "#user" {
		t.Errorf("present selector = %q, want #user", got)
	}
	if _, ok := res.Probes[".does-not-exist"]; ok {
		t.Error("probe data recorded for a selector that matched nothing")
	}
}

func TestStabilizePage_NavigateFailureDegrades(t *testing.T) {
	probe := &fakeProbe{navigateErr: errors.New("net::ERR_CONNECTION_REFUSED")}
	res := stabilizePageWith(t, probe, map[string]string{"user": "input.user"})

	if !res.Degraded {
		t.Fatal("navigation failure must degrade the page")
	}
	if got := res.Improved["input.user"]; got != "input.user" {
		t.Errorf("improved = %q, want identity", got)
	}
}

func TestStabilizePage_ProbeErrorDegradesWholePage(t *testing.T) {
	probe := &fakeProbe{
		elements: []*fakeElement{{
			tag:       "input",
			attrs:     map[string]string{"id": "user"},
			selectors: []string{"input.user", "#user"},
		}},
		locateErr: errors.New("target crashed"),
	}
	res := stabilizePageWith(t, probe, map[string]string{"user": "input.user"})

	if !res.Degraded {
		t.Fatal("probe error must degrade the page")
	}
	if got := res.Improved["input.user"]; got != "input.user" {
		t.Errorf("improved = %q, want identity after degrade", got)
	}
}

func TestStabilizePage_CountErrorDegradesWholePage(t *testing.T) {
	probe := &fakeProbe{
		elements: []*fakeElement{{
			tag:       "input",
			attrs:     map[string]string{"id": "user"},
			selectors: []string{"input.user", "#user"},
		}},
		countErr: errors.New("evaluate failed"),
	}
	res := stabilizePageWith(t, probe, map[string]string{"user": "input.user"})

	if !res.Degraded {
		t.Fatal("uniqueness-check error must degrade the page")
	}
}

func TestStabilizePage_EmptyURL(t *testing.T) {
	page := NewPageModel(UnknownPageIdentity, "")
	page.SetElement("user", "input.user")

	probe := &fakeProbe{}
	res := NewStabilizer(nil).StabilizePage(context.Background(), probe, page)

	if res.Degraded {
		t.Error("a page without a URL is skipped, not degraded")
	}
	if len(probe.navigated) != 0 {
		t.Errorf("navigated = %v, want no navigation", probe.navigated)
	}
	if got := res.Improved["input.user"]; got != "input.user" {
		t.Errorf("improved = %q, want identity", got)
	}
}

func TestIsInteractiveElement(t *testing.T) {
	tests := []struct {
		name  string
		tag   string
		attrs map[string]string
		want  bool
	}{
		{"button tag", "button", nil, true},
		{"anchor tag", "a", nil, true},
		{"div", "div", nil, false},
		{"div with role", "div", map[string]string{"role": "button"}, true},
		{"div with handler", "div", map[string]string{"onclick": "go()"}, true},
		{"span with class only", "span", map[string]string{"class": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isInteractiveElement(tt.tag, tt.attrs); got != tt.want {
				t.Errorf("isInteractiveElement(%q) = %v, want %v", tt.tag, got, tt.want)
			}
		})
	}
}
