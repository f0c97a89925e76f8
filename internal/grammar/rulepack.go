package grammar

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

type ruleSpec struct {
	ID         string `yaml:"id"`
	Pattern    string `yaml:"pattern"`
	Message    string `yaml:"message"`
	Suggestion string `yaml:"suggestion"`
	Type       string `yaml:"type"`
}

type rulePackFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type rule struct {
	ruleSpec
	re *regexp.Regexp
}

// RulePack is an engine driven by regular-expression rules read from YAML:
//
//	rules:
//	  - id: very-unique
//	    pattern: '(?i)\bvery unique\b'
//	    message: "\"unique\" is absolute"
//	    suggestion: unique
//	    type: style
type RulePack struct {
	path  string
	rules []rule
}

// LoadRulePack reads and compiles a rule pack.
func LoadRulePack(path string) (*RulePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pack, err := ParseRulePack(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pack.path = path
	return pack, nil
}

// ParseRulePack compiles rules from YAML.
func ParseRulePack(data []byte) (*RulePack, error) {
	var file rulePackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rule pack has no rules")
	}

	pack := &RulePack{}
	for i, rs := range file.Rules {
		if rs.Pattern == "" || rs.Message == "" {
			return nil, fmt.Errorf("rule %d (%s): pattern and message are required", i, rs.ID)
		}
		re, err := regexp.Compile(rs.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rs.ID, err)
		}
		if rs.Type == "" {
			rs.Type = TypeStyle
		}
		pack.rules = append(pack.rules, rule{ruleSpec: rs, re: re})
	}
	return pack, nil
}

// Name implements Engine.
func (p *RulePack) Name() string { return "rule-pack" }

// Lint implements Engine.
func (p *RulePack) Lint(ctx context.Context, text string) ([]Finding, error) {
	findings := make([]Finding, 0)
	for _, r := range p.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			start := utf8.RuneCountInString(text[:loc[0]])
			findings = append(findings, Finding{
				SpanStart:  start,
				SpanEnd:    start + utf8.RuneCountInString(text[loc[0]:loc[1]]),
				Message:    r.Message,
				Suggestion: r.Suggestion,
				Type:       r.Type,
			})
		}
	}
	sortFindings(findings)
	return findings, nil
}

func sortFindings(f []Finding) {
	sort.SliceStable(f, func(i, j int) bool {
		if f[i].SpanStart != f[j].SpanStart {
			return f[i].SpanStart < f[j].SpanStart
		}
		return f[i].SpanEnd < f[j].SpanEnd
	})
}
