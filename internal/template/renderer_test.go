package template_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/template"
)

func TestRenderer_SubstitutesLinkDefault(t *testing.T) {
	t.Parallel()
	r := template.New(config.TemplateSeed{})
	out := r.Render("Thanks {name}! See {link}.", template.Vars{Name: "Ana"})
	assert.Contains(t, out, "Thanks Ana!")
	assert.Contains(t, out, "link in my bio")
}

func TestRenderer_SubstitutesLinkOverride(t *testing.T) {
	t.Parallel()
	r := template.New(config.TemplateSeed{})
	out := r.Render("See {link}", template.Vars{Link: "example.com/shop"})
	assert.Contains(t, out, "example.com/shop")
}

func TestRenderer_NeverDoubleAppendsSuffix(t *testing.T) {
	t.Parallel()
	r := template.New(config.TemplateSeed{DecorativeSuffixes: []string{" :)"}})
	for i := 0; i < 200; i++ {
		out := r.Render("Thanks!", template.Vars{})
		assert.LessOrEqual(t, strings.Count(out, ":)"), 1)
	}
}
