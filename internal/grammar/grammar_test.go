package grammar

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuiltin_Lint(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Finding
	}{
		{
			name: "clean",
			text: "This is fine. It reads well.",
			want: []Finding{},
		},
		{
			name: "repeated word",
			text: "It is the the end.",
			want: []Finding{{SpanStart: 6, SpanEnd: 13, Message: `Repeated word: "the"`, Suggestion: "the", Type: TypeRepetition}},
		},
		{
			name: "misspelling keeps case",
			text: "Teh cat sat.",
			want: []Finding{{SpanStart: 0, SpanEnd: 3, Message: `Possible spelling mistake: "Teh"`, Suggestion: "The", Type: TypeSpelling}},
		},
		{
			name: "double space",
			text: "Two  spaces.",
			want: []Finding{{SpanStart: 3, SpanEnd: 5, Message: "Multiple consecutive spaces", Suggestion: " ", Type: TypeSpacing}},
		},
		{
			name: "lowercase sentence start",
			text: "Done. next one.",
			want: []Finding{{SpanStart: 6, SpanEnd: 7, Message: "Sentence should start with a capital letter", Suggestion: "N", Type: TypeCapitalization}},
		},
		{
			name: "article",
			text: "It was a apple and an hour and a user.",
			want: []Finding{{SpanStart: 7, SpanEnd: 8, Message: `Use "an" before "apple"`, Suggestion: "an", Type: TypeArticle}},
		},
		{
			name: "rune offsets",
			text: "Café teh bar.",
			want: []Finding{{SpanStart: 5, SpanEnd: 8, Message: `Possible spelling mistake: "teh"`, Suggestion: "the", Type: TypeSpelling}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewBuiltin().Lint(context.Background(), tt.text)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltin_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuiltin().Lint(ctx, "text")
	require.ErrorIs(t, err, context.Canceled)
}

const samplePack = `
rules:
  - id: very-unique
    pattern: '(?i)\bvery unique\b'
    message: '"unique" is absolute'
    suggestion: unique
  - id: utilize
    pattern: '\butilize\b'
    message: Prefer "use"
    suggestion: use
    type: style
`

func TestRulePack_Lint(t *testing.T) {
	pack, err := ParseRulePack([]byte(samplePack))
	require.NoError(t, err)

	got, err := pack.Lint(context.Background(), "Naïve: we utilize a Very Unique idea.")
	require.NoError(t, err)
	require.Equal(t, []Finding{
		{SpanStart: 10, SpanEnd: 17, Message: `Prefer "use"`, Suggestion: "use", Type: TypeStyle},
		{SpanStart: 20, SpanEnd: 31, Message: `"unique" is absolute`, Suggestion: "unique", Type: TypeStyle},
	}, got)
}

func TestParseRulePack_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: "rules: []"},
		{name: "bad regex", data: "rules:\n  - pattern: '('\n    message: m\n"},
		{name: "missing message", data: "rules:\n  - pattern: 'x'\n"},
		{name: "not yaml", data: "rules: [:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRulePack([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "grammar-rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(samplePack), 0o600))

	t.Run("builtin first", func(t *testing.T) {
		l := &Loader{RulesFile: rules}
		e, err := l.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, "builtin", e.Name())
	})

	t.Run("rule pack when builtin disabled", func(t *testing.T) {
		l := &Loader{RulesFile: rules, DisableBuiltin: true}
		e, err := l.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, "rule-pack", e.Name())
	})

	t.Run("unavailable", func(t *testing.T) {
		l := &Loader{RulesFile: filepath.Join(dir, "missing.yaml"), DisableBuiltin: true}
		_, err := l.Load(context.Background())
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("nothing configured", func(t *testing.T) {
		l := &Loader{DisableBuiltin: true}
		_, err := l.Load(context.Background())
		require.ErrorIs(t, err, ErrUnavailable)
	})
}
