package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TemplateSeed is the operator-supplied default reply-template pack and
// decorative-suffix list loaded at startup, mirroring the teacher's ragseed
// bootstrap step (SPEC_FULL.md §3).
type TemplateSeed struct {
	DefaultTemplates   []string `yaml:"default_templates"`
	DecorativeSuffixes []string `yaml:"decorative_suffixes"`
}

// LoadSeedTemplates reads a YAML seed file. A blank path returns an empty,
// non-error seed so the engine falls back to its built-in defaults.
func LoadSeedTemplates(path string) (TemplateSeed, error) {
	if path == "" {
		return TemplateSeed{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return TemplateSeed{}, fmt.Errorf("op=config.LoadSeedTemplates: %w", err)
	}
	var seed TemplateSeed
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return TemplateSeed{}, fmt.Errorf("op=config.LoadSeedTemplates.unmarshal: %w", err)
	}
	return seed, nil
}
