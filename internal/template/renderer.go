// Package template implements the TemplateRenderer (component F): renders a
// chosen reply template against a name/link variable map and occasionally
// appends a decorative suffix for stylistic variation.
package template

import (
	"math/rand"
	"strings"

	"github.com/autoreplyd/engine/internal/config"
)

const defaultLink = "link in my bio"

// decorativeSuffixRate is the probability (spec.md §4.F) of appending a
// suffix to an otherwise-complete reply.
const decorativeSuffixRate = 0.3

// Renderer renders templates with {name}/{link} substitution plus an
// occasional decorative suffix, grounded on the original implementation's
// TextVariation.generate_reply (original_source/backend/utils/text_variation.py),
// kept ASCII-safe here rather than carrying over its emoji closings.
type Renderer struct {
	suffixes []string
}

// New constructs a Renderer. An empty seed falls back to a small built-in
// suffix pool so the renderer works without an operator-supplied seed file.
func New(seed config.TemplateSeed) *Renderer {
	suffixes := seed.DecorativeSuffixes
	if len(suffixes) == 0 {
		suffixes = []string{" :)", " cheers!", " thanks for watching!"}
	}
	return &Renderer{suffixes: suffixes}
}

// Vars are the substitution variables for one render.
type Vars struct {
	Name string
	Link string
}

// Render substitutes {name} and {link} into template, defaulting an unset
// link to "link in my bio", then with probability 0.3 appends one randomly
// chosen decorative suffix unless the reply already ends in one.
func (r *Renderer) Render(tmpl string, vars Vars) string {
	link := vars.Link
	if link == "" {
		link = defaultLink
	}
	out := strings.ReplaceAll(tmpl, "{link}", link)
	out = strings.ReplaceAll(out, "{name}", vars.Name)

	if rand.Float64() < decorativeSuffixRate && len(r.suffixes) > 0 { //nolint:gosec // stylistic variation, not security-sensitive
		suffix := r.suffixes[rand.Intn(len(r.suffixes))] //nolint:gosec // stylistic variation, not security-sensitive
		if suffix != "" && !r.endsWithSuffix(out) {
			out = strings.TrimRight(out, " ") + suffix
		}
	}
	return strings.TrimSpace(out)
}

func (r *Renderer) endsWithSuffix(s string) bool {
	trimmed := strings.TrimRight(s, " ")
	for _, suffix := range r.suffixes {
		if suffix == "" {
			continue
		}
		if strings.HasSuffix(trimmed, strings.TrimRight(suffix, " ")) {
			return true
		}
	}
	return false
}
