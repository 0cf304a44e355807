package main

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

// UnknownPageIdentity is the placeholder page used when no navigation
// boundary can be inferred from the steps.
const UnknownPageIdentity = "UnknownPage"

// PageAction is one registered page interaction, keyed by method name in
// the page's action map.
type PageAction struct {
	Action      string `json:"action"`
	Target      string `json:"target,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// PageModel is the per-page automation model handed to the code-generation
// collaborator: an identity, an optional URL, and insertion-ordered
// element and action maps.
type PageModel struct {
	Identity string
	URL      string

	elementNames []string
	elements     map[string]string

	actionNames []string
	actions     map[string]PageAction
}

// NewPageModel creates an empty page model.
func NewPageModel(identity, url string) *PageModel {
	return &PageModel{
		Identity: identity,
		URL:      url,
		elements: make(map[string]string),
		actions:  make(map[string]PageAction),
	}
}

// SetElement registers a selector under name. A repeated name overwrites
// the earlier selector but keeps its first-registration position. Lossy on
// collision; this mirrors the accepted last-write-wins policy.
func (p *PageModel) SetElement(name, selector string) {
	if _, ok := p.elements[name]; !ok {
		p.elementNames = append(p.elementNames, name)
	}
	p.elements[name] = selector
}

// SetAction registers an action under method name, same collision policy
// as SetElement.
func (p *PageModel) SetAction(name string, action PageAction) {
	if _, ok := p.actions[name]; !ok {
		p.actionNames = append(p.actionNames, name)
	}
	p.actions[name] = action
}

// ElementNames returns element names in first-registration order.
func (p *PageModel) ElementNames() []string {
	return append([]string(nil), p.elementNames...)
}

// Element returns the selector registered under name.
func (p *PageModel) Element(name string) (string, bool) {
	sel, ok := p.elements[name]
	return sel, ok
}

// ActionNames returns action method names in first-registration order.
func (p *PageModel) ActionNames() []string {
	return append([]string(nil), p.actionNames...)
}

// Action returns the action registered under name.
func (p *PageModel) Action(name string) (PageAction, bool) {
	a, ok := p.actions[name]
	return a, ok
}

// Selectors returns the distinct selectors on the page in the order their
// elements were first registered.
func (p *PageModel) Selectors() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range p.elementNames {
		sel := p.elements[name]
		if !seen[sel] {
			seen[sel] = true
			out = append(out, sel)
		}
	}
	return out
}

// ApplySelectors rewrites the element map in place through an
// original→improved mapping. Names and ordering are untouched.
func (p *PageModel) ApplySelectors(improved map[string]string) {
	for _, name := range p.elementNames {
		if repl, ok := improved[p.elements[name]]; ok && repl != "" {
			p.elements[name] = repl
		}
	}
}

// MarshalJSON emits elements and actions as JSON objects with keys in
// first-registration order, which encoding/json's map marshaling would not
// preserve.
func (p *PageModel) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"identity":`)
	writeJSON(&buf, p.Identity)
	if p.URL != "" {
		buf.WriteString(`,"url":`)
		writeJSON(&buf, p.URL)
	}
	buf.WriteString(`,"elements":{`)
	for i, name := range p.elementNames {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(&buf, name)
		buf.WriteByte(':')
		writeJSON(&buf, p.elements[name])
	}
	buf.WriteString(`},"actions":{`)
	for i, name := range p.actionNames {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(&buf, name)
		buf.WriteByte(':')
		writeJSON(&buf, p.actions[name])
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		buf.WriteString("null")
		return
	}
	buf.Write(data)
}

// BuildPageModels partitions interpreted steps into per-page models by
// tracking navigation boundaries. Pure function over its input: no
// external calls, never fails. Steps before any navigate action land on
// the UnknownPage placeholder. Revisiting a page identity switches the
// current pointer back to the existing page instead of duplicating it.
func BuildPageModels(steps []CanonicalStep) []*PageModel {
	var order []*PageModel
	byIdentity := make(map[string]*PageModel)

	page := func(identity, url string) *PageModel {
		if existing, ok := byIdentity[identity]; ok {
			return existing
		}
		pm := NewPageModel(identity, url)
		byIdentity[identity] = pm
		order = append(order, pm)
		return pm
	}

	var current *PageModel

	for _, step := range steps {
		if step.Action == ActionNavigate && step.Value != "" {
			current = page(pageIdentityFromURL(step.Value), step.Value)
		}
		if current == nil {
			current = page(UnknownPageIdentity, "")
		}

		if step.Target != "" {
			current.SetElement(elementName(step.Target), step.Target)
		}
		if step.Action != "" {
			current.SetAction(actionMethodName(step.Action, step.Target), PageAction{
				Action:      step.Action,
				Target:      step.Target,
				Value:       step.Value,
				Description: step.Description,
			})
		}
	}

	if len(order) == 0 {
		order = append(order, NewPageModel(UnknownPageIdentity, ""))
	}

	return order
}

// pageIdentityFromURL derives a page identity from the trailing non-empty
// path segment, capitalized, with a fixed "Page" suffix. A URL without a
// path maps to HomePage.
func pageIdentityFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return UnknownPageIdentity
	}
	var last string
	for _, part := range strings.Split(parsed.Path, "/") {
		if part != "" {
			last = part
		}
	}
	if last == "" {
		return "HomePage"
	}
	return capitalize(last) + "Page"
}

var (
	nameAttrPattern = regexp.MustCompile(`name=['"]([^'"]+)['"]`)
	idAttrPattern   = regexp.MustCompile(`id=['"]([^'"]+)['"]`)
)

// elementName derives a stable element name from a selector: a name=
// attribute wins, then an id= attribute, then the selector's trailing
// dot-segment with quoting stripped, then the literal "element".
func elementName(selector string) string {
	if m := nameAttrPattern.FindStringSubmatch(selector); m != nil {
		return strings.ReplaceAll(m[1], "-", "_")
	}
	if m := idAttrPattern.FindStringSubmatch(selector); m != nil {
		return strings.ReplaceAll(m[1], "-", "_")
	}
	parts := strings.Split(selector, ".")
	last := parts[len(parts)-1]
	last = strings.NewReplacer("-", "_", "'", "", `"`, "").Replace(last)
	if last == "" {
		return "element"
	}
	return last
}

// actionMethodName maps an action plus optional target to a method name:
// fill/click on a named element become fill_<element>/click_<element>,
// everything else keeps the action name.
func actionMethodName(action, target string) string {
	if target != "" {
		switch action {
		case ActionFill:
			return "fill_" + elementName(target)
		case ActionClick:
			return "click_" + elementName(target)
		}
	}
	return action
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
