package grammar

import (
	"context"
	"strings"
	"unicode"
)

var misspellings = map[string]string{
	"accross":    "across",
	"alot":       "a lot",
	"beleive":    "believe",
	"definately": "definitely",
	"goverment":  "government",
	"neccessary": "necessary",
	"occured":    "occurred",
	"recieve":    "receive",
	"seperate":   "separate",
	"teh":        "the",
	"thier":      "their",
	"tommorow":   "tomorrow",
	"untill":     "until",
	"wich":       "which",
}

// Words where "a"/"an" follows the sound, not the letter.
var (
	anBeforeConsonantLetter = map[string]bool{"hour": true, "honest": true, "honor": true, "heir": true}
	aBeforeVowelLetter      = map[string]bool{"one": true, "once": true, "user": true, "university": true, "unit": true, "unique": true, "european": true, "use": true, "usual": true}
)

type word struct {
	text       string
	start, end int // rune offsets
}

// Builtin is the in-process rule engine.
type Builtin struct{}

// NewBuiltin returns the built-in engine.
func NewBuiltin() *Builtin { return &Builtin{} }

// Name implements Engine.
func (b *Builtin) Name() string { return "builtin" }

// Lint implements Engine. Findings are ordered by SpanStart.
func (b *Builtin) Lint(ctx context.Context, text string) ([]Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	words := tokenize(runes)
	findings := make([]Finding, 0)

	findings = append(findings, spacing(runes)...)
	findings = append(findings, capitalization(runes)...)

	for i, w := range words {
		lower := strings.ToLower(w.text)
		if fix, ok := misspellings[lower]; ok {
			findings = append(findings, Finding{
				SpanStart:  w.start,
				SpanEnd:    w.end,
				Message:    "Possible spelling mistake: \"" + w.text + "\"",
				Suggestion: matchCase(w.text, fix),
				Type:       TypeSpelling,
			})
		}
		if i == 0 {
			continue
		}
		prev := words[i-1]
		if strings.EqualFold(prev.text, w.text) && onlySpaces(runes[prev.end:w.start]) {
			findings = append(findings, Finding{
				SpanStart:  prev.start,
				SpanEnd:    w.end,
				Message:    "Repeated word: \"" + w.text + "\"",
				Suggestion: prev.text,
				Type:       TypeRepetition,
			})
		}
		if f, ok := article(prev, w); ok {
			findings = append(findings, f)
		}
	}

	sortFindings(findings)
	return findings, nil
}

func tokenize(runes []rune) []word {
	var words []word
	start := -1
	for i, r := range runes {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r) || (r == '\'' && start >= 0)
		if inWord && start < 0 {
			start = i
		}
		if !inWord && start >= 0 {
			words = append(words, word{text: string(runes[start:i]), start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, word{text: string(runes[start:]), start: start, end: len(runes)})
	}
	return words
}

func spacing(runes []rune) []Finding {
	var out []Finding
	for i := 0; i < len(runes); i++ {
		if runes[i] != ' ' {
			continue
		}
		j := i
		for j < len(runes) && runes[j] == ' ' {
			j++
		}
		if j-i >= 2 && i > 0 && j < len(runes) && runes[i-1] != '\n' && runes[j] != '\n' {
			out = append(out, Finding{
				SpanStart:  i,
				SpanEnd:    j,
				Message:    "Multiple consecutive spaces",
				Suggestion: " ",
				Type:       TypeSpacing,
			})
		}
		i = j - 1
	}
	return out
}

// capitalization flags a lowercase letter that opens a sentence.
func capitalization(runes []rune) []Finding {
	var out []Finding
	sentenceStart := true
	for i, r := range runes {
		switch {
		case r == '.' || r == '!' || r == '?':
			sentenceStart = true
		case unicode.IsSpace(r) || r == '"' || r == '(':
		case unicode.IsLetter(r):
			if sentenceStart && unicode.IsLower(r) && !ellipsisBefore(runes, i) {
				out = append(out, Finding{
					SpanStart:  i,
					SpanEnd:    i + 1,
					Message:    "Sentence should start with a capital letter",
					Suggestion: string(unicode.ToUpper(r)),
					Type:       TypeCapitalization,
				})
			}
			sentenceStart = false
		default:
			sentenceStart = false
		}
	}
	return out
}

func ellipsisBefore(runes []rune, i int) bool {
	j := i - 1
	for j >= 0 && unicode.IsSpace(runes[j]) {
		j--
	}
	return j >= 2 && runes[j] == '.' && runes[j-1] == '.' && runes[j-2] == '.'
}

func article(prev, next word) (Finding, bool) {
	art := strings.ToLower(prev.text)
	if art != "a" && art != "an" {
		return Finding{}, false
	}
	lower := strings.ToLower(next.text)
	first := []rune(lower)[0]
	if !unicode.IsLetter(first) {
		return Finding{}, false
	}
	vowelSound := strings.ContainsRune("aeiou", first)
	if anBeforeConsonantLetter[lower] {
		vowelSound = true
	}
	if aBeforeVowelLetter[lower] {
		vowelSound = false
	}

	want := "a"
	if vowelSound {
		want = "an"
	}
	if art == want {
		return Finding{}, false
	}
	return Finding{
		SpanStart:  prev.start,
		SpanEnd:    prev.end,
		Message:    "Use \"" + want + "\" before \"" + next.text + "\"",
		Suggestion: matchCase(prev.text, want),
		Type:       TypeArticle,
	}, true
}

func onlySpaces(rs []rune) bool {
	if len(rs) == 0 {
		return false
	}
	for _, r := range rs {
		if r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

func matchCase(original, fix string) string {
	if original == "" || fix == "" {
		return fix
	}
	r := []rune(original)
	if unicode.IsUpper(r[0]) {
		f := []rune(fix)
		f[0] = unicode.ToUpper(f[0])
		return string(f)
	}
	return fix
}
