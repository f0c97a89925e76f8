// Package prompts maps AI actions to the system instructions sent to providers.
package prompts

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"
)

// Built-in actions.
const (
	Humanize = "humanize"
	Rewrite  = "rewrite"
	Improve  = "improve"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompt is one registry entry.
type Prompt struct {
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
	Text        string `yaml:"prompt" json:"-"`
}

// Options customizes a system prompt.
type Options struct {
	Tone    string
	Context string
}

var registry = mustParse(promptsYAML)

func mustParse(data []byte) map[string]Prompt {
	m, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("prompts: embedded registry: %v", err))
	}
	return m
}

// Parse decodes a prompt registry document. Every entry needs a non-empty prompt.
func Parse(data []byte) (map[string]Prompt, error) {
	var m map[string]Prompt
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for name, p := range m {
		if p.Text == "" {
			return nil, fmt.Errorf("action %q has an empty prompt", name)
		}
	}
	if _, ok := m[Humanize]; !ok {
		return nil, fmt.Errorf("registry must define %q", Humanize)
	}
	return m, nil
}

// SystemPrompt returns the instruction for action. Unknown actions fall back to humanize.
func SystemPrompt(action string, opts Options) string {
	p, ok := registry[action]
	if !ok {
		slog.Warn("prompts.unknown_action", "action", action, "fallback", Humanize)
		return registry[Humanize].Text
	}

	prompt := p.Text
	if opts.Tone != "" {
		prompt = "[Tone: " + opts.Tone + "]\n\n" + prompt
	}
	if opts.Context != "" {
		prompt = prompt + "\n\nContext: " + opts.Context + "\n\nText to process:"
	}
	return prompt
}

// IsValidAction reports whether action has a registered prompt.
func IsValidAction(action string) bool {
	_, ok := registry[action]
	return ok
}

// Actions lists the registered actions in sorted order.
func Actions() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Info returns version metadata for action.
func Info(action string) (Prompt, bool) {
	p, ok := registry[action]
	return p, ok
}
