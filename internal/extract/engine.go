// Package extract turns document text into cell values using field rules.
package extract

import (
	"bufio"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/a3tai/balance-extractor/internal/rules"
)

// footnoteMarker starts a footnote reference ("Nota 1 2") that two_numbers_after skips
const footnoteMarker = "Nota"

// footnoteSkip is the number of tokens that follow the marker in a reference
const footnoteSkip = 2

// Engine applies field rules to document text. It holds no per-document
// state and is safe for concurrent use.
type Engine struct {
	notFound string
	logger   *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithNotFound sets the sentinel written for unmatched cells
func WithNotFound(s string) Option {
	return func(e *Engine) {
		e.notFound = s
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an extraction engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		notFound: NotFound,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NotFound returns the sentinel used by the engine
func (e *Engine) NotFound() string {
	return e.notFound
}

// Extract runs every rule against text. Every cell named by a rule is present
// in the result; cells whose rule matched nothing hold the sentinel.
func (e *Engine) Extract(text string, fieldRules []rules.FieldRule) *Result {
	res := newResult()
	for _, rule := range fieldRules {
		values, ok := e.apply(text, rule)
		if !ok {
			e.logger.Debug("rule matched nothing",
				zap.String("keyword", rule.Keyword),
				zap.Stringer("mode", rule.Mode))
		}
		for i, cell := range rule.Cells {
			if i < len(values) {
				res.set(cell, values[i])
			} else {
				res.set(cell, e.notFound)
			}
		}
	}
	return res
}

// apply returns the positional values captured by one rule. Missing
// positions are filled with the sentinel by the caller.
func (e *Engine) apply(text string, rule rules.FieldRule) ([]string, bool) {
	if rule.KeywordPattern() == nil && rule.SpanPattern() == nil {
		if err := rule.Compile(); err != nil {
			e.logger.Warn("skipping rule", zap.String("keyword", rule.Keyword), zap.Error(err))
			return nil, false
		}
	}

	switch rule.Mode {
	case rules.ModeUntilDot, rules.ModeUntilNewline:
		v, ok := captureValue(rule.KeywordPattern(), text)
		if !ok {
			return nil, false
		}
		return []string{strings.TrimSpace(v)}, true

	case rules.ModeFirstNumberAfter:
		rest, ok := after(rule.KeywordPattern(), text)
		if !ok {
			return nil, false
		}
		sc := tokens(rest)
		if !sc.Scan() {
			return nil, false
		}
		return []string{sc.Text()}, true

	case rules.ModeTwoNumbersAfter:
		rest, ok := after(rule.KeywordPattern(), text)
		if !ok {
			return nil, false
		}
		return numericTokens(rest, 2), true

	case rules.ModeBetweenPhrases:
		re := rule.SpanPattern()
		if re == nil {
			return nil, false
		}
		v, ok := captureValue(re, text)
		if !ok {
			return nil, false
		}
		return []string{strings.TrimSpace(strings.ReplaceAll(v, "\n", " "))}, true

	default:
		v, ok := captureValue(rule.KeywordPattern(), text)
		if !ok {
			return nil, false
		}
		return strings.Fields(v), true
	}
}

// captureValue returns the "value" group of the leftmost match
func captureValue(re *regexp.Regexp, text string) (string, bool) {
	if re == nil {
		return "", false
	}
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", false
	}
	g := re.SubexpIndex("value")
	if g < 0 || loc[2*g] < 0 {
		return "", false
	}
	return text[loc[2*g]:loc[2*g+1]], true
}

// after returns the text following the leftmost match of re
func after(re *regexp.Regexp, text string) (string, bool) {
	if re == nil {
		return "", false
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return text[loc[1]:], true
}

// tokens scans s as whitespace-separated words
func tokens(s string) *bufio.Scanner {
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 4096), len(s)+1)
	sc.Split(bufio.ScanWords)
	return sc
}

// numericTokens collects up to limit numeric-looking tokens from s, skipping
// footnote references. The original token text is kept.
func numericTokens(s string, limit int) []string {
	var found []string
	skip := 0
	sc := tokens(s)
	for sc.Scan() {
		tok := sc.Text()
		if skip > 0 {
			skip--
			continue
		}
		if tok == footnoteMarker {
			skip = footnoteSkip
			continue
		}
		if looksNumeric(tok) {
			found = append(found, tok)
			if len(found) == limit {
				break
			}
		}
	}
	return found
}
