// Package rules holds the declarative field-extraction rules and the loader
// for rule files.
//
// Keywords and phrases are regular-expression fragments and are searched
// leftmost-first. When one keyword is a substring of another, the earlier
// occurrence in the document wins, which can produce surprising spans. Rule
// authors should make keywords specific enough, or mark them literal.
package rules

import (
	"fmt"
	"regexp"
)

// Mode selects how a rule captures its value(s) after the keyword
type Mode int

const (
	// ModeSplit captures the rest of the line and splits it on whitespace
	ModeSplit Mode = iota
	ModeUntilDot
	ModeUntilNewline
	// ModeFirstNumberAfter returns the first token after the keyword.
	// The token is not checked for being numeric.
	ModeFirstNumberAfter
	ModeTwoNumbersAfter
	ModeBetweenPhrases
)

var modeNames = map[Mode]string{
	ModeSplit:            "split",
	ModeUntilDot:         "until_dot",
	ModeUntilNewline:     "until_newline",
	ModeFirstNumberAfter: "first_number_after",
	ModeTwoNumbersAfter:  "two_numbers_after",
	ModeBetweenPhrases:   "between_phrases",
}

// String returns the rule-file name of the mode
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps a rule-file mode name to a Mode. An empty name is ModeSplit.
func ParseMode(name string) (Mode, error) {
	if name == "" {
		return ModeSplit, nil
	}
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return ModeSplit, fmt.Errorf("unknown mode %q", name)
}

// SpanParams bounds a between_phrases capture
type SpanParams struct {
	Start string
	End   string
}

// FieldRule describes how to locate one or more cells in the document text
type FieldRule struct {
	Keyword string
	Cells   []string
	Mode    Mode
	// Literal quotes Keyword and the span phrases before they are used as patterns
	Literal bool
	Span    *SpanParams

	keywordRe *regexp.Regexp
	spanRe    *regexp.Regexp
}

// KeywordPattern returns the compiled pattern used for keyword-anchored modes.
// It is nil for between_phrases rules and for rules that were not compiled.
func (r FieldRule) KeywordPattern() *regexp.Regexp {
	return r.keywordRe
}

// SpanPattern returns the compiled between_phrases pattern, or nil when either
// phrase is missing.
func (r FieldRule) SpanPattern() *regexp.Regexp {
	return r.spanRe
}

// Compile builds the rule's patterns. It is called by the loader; rules built
// in code must call it before being handed to the engine.
func (r *FieldRule) Compile() error {
	if len(r.Cells) == 0 {
		return fmt.Errorf("rule %q: at least one cell is required", r.Keyword)
	}

	keyword := r.fragment(r.Keyword)
	var expr string
	switch r.Mode {
	case ModeUntilDot:
		expr = `(?s)` + keyword + `(?P<value>.*?\.)`
	case ModeUntilNewline:
		expr = keyword + `(?P<value>.*?)\n`
	case ModeFirstNumberAfter, ModeTwoNumbersAfter:
		expr = keyword
	case ModeBetweenPhrases:
		r.keywordRe = nil
		r.spanRe = nil
		if r.Span == nil || r.Span.Start == "" || r.Span.End == "" {
			return nil
		}
		re, err := regexp.Compile(`(?s)` + r.fragment(r.Span.Start) + `(?P<value>.*?)` + r.fragment(r.Span.End))
		if err != nil {
			return fmt.Errorf("rule %q: invalid phrase pattern: %w", r.Keyword, err)
		}
		r.spanRe = re
		return nil
	case ModeSplit:
		expr = keyword + `\s*(?P<value>[^\n]+)`
	default:
		return fmt.Errorf("rule %q: unsupported mode %s", r.Keyword, r.Mode)
	}

	if r.Keyword == "" {
		return fmt.Errorf("rule with cells %v: keyword cannot be empty", r.Cells)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("rule %q: invalid keyword pattern: %w", r.Keyword, err)
	}
	r.keywordRe = re
	return nil
}

func (r FieldRule) fragment(s string) string {
	if r.Literal {
		return regexp.QuoteMeta(s)
	}
	return s
}

// RuleSet is one loaded rule file
type RuleSet struct {
	Rules         []FieldRule
	SheetName     string
	WorksheetName string
	SpreadsheetID string
}

// Cells returns every cell named by the rule set, in rule order, without duplicates
func (rs *RuleSet) Cells() []string {
	seen := make(map[string]bool)
	var cells []string
	for _, r := range rs.Rules {
		for _, c := range r.Cells {
			if !seen[c] {
				seen[c] = true
				cells = append(cells, c)
			}
		}
	}
	return cells
}
