package main

import (
	"context"
	"fmt"
	"strings"
)

// Handle identifies an element located by a Probe within its current
// document. Opaque to the stabilizer; only the probe that produced it can
// interpret it.
type Handle interface{}

// Probe is the live-document capability the stabilizer runs against. A
// real implementation drives a browser; tests substitute a fake.
type Probe interface {
	Navigate(ctx context.Context, url string) error
	// Locate resolves a selector to a handle; found is false when the
	// selector matches nothing.
	Locate(ctx context.Context, selector string) (h Handle, found bool, err error)
	Count(ctx context.Context, selector string) (int, error)
	TagName(ctx context.Context, h Handle) (string, error)
	Attributes(ctx context.Context, h Handle) (map[string]string, error)
	IsVisible(ctx context.Context, h Handle) (bool, error)
}

// ProbeFactory acquires a fresh browsing context. The release func must be
// called unconditionally once the page is done, success or failure.
type ProbeFactory func(ctx context.Context) (Probe, func(), error)

// ElementProbe is what stabilization learned about one live element.
// Ephemeral: produced during stabilization, never persisted.
type ElementProbe struct {
	TagName       string            `json:"tag_name"`
	Attributes    map[string]string `json:"attributes"`
	IsVisible     bool              `json:"is_visible"`
	IsInteractive bool              `json:"is_interactive"`
}

// StabilizationResult maps every selector on a page to its improved form.
// The mapping is total: unresolved selectors map to themselves.
type StabilizationResult struct {
	Improved map[string]string       `json:"improved"`
	Probes   map[string]ElementProbe `json:"probes,omitempty"`
	Degraded bool                    `json:"degraded,omitempty"`
}

// identityResult maps every selector to itself with no probe data.
func identityResult(selectors []string, degraded bool) *StabilizationResult {
	res := &StabilizationResult{
		Improved: make(map[string]string, len(selectors)),
		Probes:   make(map[string]ElementProbe),
		Degraded: degraded,
	}
	for _, sel := range selectors {
		res.Improved[sel] = sel
	}
	return res
}

// formControlTags are the tags for which a name attribute makes a reliable
// selector.
var formControlTags = map[string]bool{
	"input":    true,
	"select":   true,
	"textarea": true,
	"button":   true,
}

// interactiveTags and interactiveRoles mark elements users act on.
var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true,
	"select": true, "textarea": true, "label": true,
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "textbox": true,
	"checkbox": true, "radio": true, "menuitem": true,
}

// attributeCascade is the tag-scoped tail of the stabilization cascade,
// tried in this exact order.
var attributeCascade = []string{"type", "placeholder", "aria-label"}

// Stabilizer replaces raw selectors with more durable ones verified
// against the live document.
type Stabilizer struct {
	logger *RunLogger
}

// NewStabilizer creates a stabilizer. logger may be nil.
func NewStabilizer(logger *RunLogger) *Stabilizer {
	return &Stabilizer{logger: logger}
}

// StabilizePage probes every selector on the page and returns the improved
// mapping. Costs one navigation for the page, then one probe plus at most
// six uniqueness checks per selector. Any navigation or probe failure
// degrades the entire page to the identity mapping; errors are logged,
// never returned.
func (s *Stabilizer) StabilizePage(ctx context.Context, probe Probe, page *PageModel) *StabilizationResult {
	selectors := page.Selectors()

	if page.URL == "" {
		return identityResult(selectors, false)
	}

	if err := probe.Navigate(ctx, page.URL); err != nil {
		s.warnf("page %s: navigation failed: %v", page.Identity, err)
		return identityResult(selectors, true)
	}

	res := identityResult(selectors, false)
	for _, sel := range selectors {
		info, found, err := s.probeSelector(ctx, probe, sel)
		if err != nil {
			// One broken probe invalidates everything learned about
			// this document: degrade the whole page.
			s.warnf("page %s: probing %q failed: %v", page.Identity, sel, err)
			return identityResult(selectors, true)
		}
		if !found {
			s.warnf("page %s: selector %q matched nothing", page.Identity, sel)
			continue
		}

		res.Probes[sel] = info

		improved, err := s.improveSelector(ctx, probe, sel, info)
		if err != nil {
			s.warnf("page %s: uniqueness check for %q failed: %v", page.Identity, sel, err)
			return identityResult(selectors, true)
		}
		if improved != sel {
			s.logf(EventStabilizeStep, map[string]interface{}{
				"page":     page.Identity,
				"original": sel,
				"improved": improved,
			})
		}
		res.Improved[sel] = improved
	}

	return res
}

// probeSelector locates one selector and captures its element facts.
func (s *Stabilizer) probeSelector(ctx context.Context, probe Probe, selector string) (ElementProbe, bool, error) {
	h, found, err := probe.Locate(ctx, selector)
	if err != nil {
		return ElementProbe{}, false, err
	}
	if !found {
		return ElementProbe{}, false, nil
	}

	tag, err := probe.TagName(ctx, h)
	if err != nil {
		return ElementProbe{}, false, err
	}
	attrs, err := probe.Attributes(ctx, h)
	if err != nil {
		return ElementProbe{}, false, err
	}
	visible, err := probe.IsVisible(ctx, h)
	if err != nil {
		return ElementProbe{}, false, err
	}

	return ElementProbe{
		TagName:       tag,
		Attributes:    attrs,
		IsVisible:     visible,
		IsInteractive: isInteractiveElement(tag, attrs),
	}, true, nil
}

// improveSelector walks the stabilization cascade. The first candidate
// whose attribute exists on the element and whose selector resolves to
// exactly one live match wins; the original selector is the terminal
// fallback. Uniqueness comes from a live count query, never from static
// reasoning about attribute values.
func (s *Stabilizer) improveSelector(ctx context.Context, probe Probe, original string, info ElementProbe) (string, error) {
	attrs := info.Attributes

	if v := attrs["data-testid"]; v != "" {
		candidate := fmt.Sprintf(`[data-testid=%q]`, v)
		if unique, err := s.isUnique(ctx, probe, candidate); err != nil {
			return "", err
		} else if unique {
			return candidate, nil
		}
	}

	if v := attrs["id"]; v != "" {
		candidate := "#" + v
		if unique, err := s.isUnique(ctx, probe, candidate); err != nil {
			return "", err
		} else if unique {
			return candidate, nil
		}
	}

	if formControlTags[info.TagName] {
		if v := attrs["name"]; v != "" {
			candidate := fmt.Sprintf(`%s[name=%q]`, info.TagName, v)
			if unique, err := s.isUnique(ctx, probe, candidate); err != nil {
				return "", err
			} else if unique {
				return candidate, nil
			}
		}
	}

	if v := attrs["role"]; v != "" {
		candidate := fmt.Sprintf(`[role=%q]`, v)
		if unique, err := s.isUnique(ctx, probe, candidate); err != nil {
			return "", err
		} else if unique {
			return candidate, nil
		}
	}

	for _, attr := range attributeCascade {
		if v := attrs[attr]; v != "" {
			candidate := fmt.Sprintf(`%s[%s=%q]`, info.TagName, attr, v)
			if unique, err := s.isUnique(ctx, probe, candidate); err != nil {
				return "", err
			} else if unique {
				return candidate, nil
			}
		}
	}

	return original, nil
}

func (s *Stabilizer) isUnique(ctx context.Context, probe Probe, selector string) (bool, error) {
	count, err := probe.Count(ctx, selector)
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// isInteractiveElement classifies interactivity from the tag, the role,
// and the presence of on* event-handler attributes.
func isInteractiveElement(tag string, attrs map[string]string) bool {
	if interactiveTags[tag] {
		return true
	}
	if interactiveRoles[attrs["role"]] {
		return true
	}
	for name := range attrs {
		if strings.HasPrefix(name, "on") {
			return true
		}
	}
	return false
}

func (s *Stabilizer) warnf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}

func (s *Stabilizer) logf(t EventType, data map[string]interface{}) {
	if s.logger != nil {
		s.logger.Log(t, data)
	}
}
