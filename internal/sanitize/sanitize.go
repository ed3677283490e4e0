// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package sanitize screens raw user queries for prompt-injection attempts
// before they reach any decision logic. Evaluation is pure and synchronous:
// no I/O, no external calls, so it runs ahead of anything network-bound.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Severity indicates how critical a rule match is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether the severity is a known severity level.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Verdict is the outcome of evaluating one raw query. A Verdict with
// Allowed=false is terminal for the request: nothing downstream runs.
type Verdict struct {
	Allowed     bool
	Reason      string
	MatchedRule string
}

// Rule defines a single detection pattern.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Severity Severity
}

const (
	// DefaultMaxQueryLength bounds raw query size.
	DefaultMaxQueryLength = 5000
	// DefaultMaxSymbolRatio is the accepted ratio of characters that are
	// neither alphanumeric nor whitespace. Above it the query is treated
	// as a probable encoding attack.
	DefaultMaxSymbolRatio = 0.3
)

// Sanitizer evaluates raw queries against a fixed rule set plus two
// structural heuristics. It is immutable after construction and safe for
// unsynchronized concurrent use.
type Sanitizer struct {
	rules          []Rule
	maxQueryLength int
	maxSymbolRatio float64
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithMaxQueryLength overrides the raw length bound.
func WithMaxQueryLength(n int) Option {
	return func(s *Sanitizer) { s.maxQueryLength = n }
}

// WithMaxSymbolRatio overrides the non-alphanumeric ratio bound.
func WithMaxSymbolRatio(r float64) Option {
	return func(s *Sanitizer) { s.maxSymbolRatio = r }
}

// New creates a Sanitizer with the given rules. Rules are evaluated in
// order; the first match wins and is recorded on the verdict.
func New(rules []Rule, opts ...Option) (*Sanitizer, error) {
	for i, r := range rules {
		if r.Name == "" {
			return nil, sentraerr.Errorf(sentraerr.CodeSanitizeRuleInvalid, "rule %d has empty name", i)
		}
		if r.Pattern == nil {
			return nil, sentraerr.Errorf(sentraerr.CodeSanitizeRuleInvalid, "rule %d (%s) has nil pattern", i, r.Name)
		}
		if !r.Severity.Valid() {
			return nil, sentraerr.Errorf(sentraerr.CodeSanitizeRuleInvalid, "rule %d (%s) has invalid severity %q", i, r.Name, r.Severity)
		}
	}

	s := &Sanitizer{
		rules:          rules,
		maxQueryLength: DefaultMaxQueryLength,
		maxSymbolRatio: DefaultMaxSymbolRatio,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// invisibleCharReplacer strips zero-width and other invisible Unicode
// characters so a rule cannot be split apart by homoglyph padding.
var invisibleCharReplacer = strings.NewReplacer(
	"​", "", // zero-width space
	"‌", "", // zero-width non-joiner
	"‍", "", // zero-width joiner
	"\uFEFF", "", // zero-width no-break space / BOM
	"­", "", // soft hyphen
	"⁠", "", // word joiner
	"⁡", "", // invisible function application
	"⁢", "", // invisible times
	"⁣", "", // invisible separator
	"⁤", "", // invisible plus
)

// normalize applies NFKC normalization and strips invisible characters.
// The length and symbol-ratio heuristics still run on the original text;
// only pattern matching sees the normalized form, so normalization can
// never widen what is accepted.
func normalize(s string) string {
	s = invisibleCharReplacer.Replace(s)
	return norm.NFKC.String(s)
}

// Evaluate screens the raw query. The same input always produces the same
// verdict. An empty or whitespace-only query is allowed; it carries no
// instructions to subvert.
func (s *Sanitizer) Evaluate(raw string) Verdict {
	if strings.TrimSpace(raw) == "" {
		return Verdict{Allowed: true}
	}

	// Length bound checks the original text, not a transformed copy.
	if len(raw) > s.maxQueryLength {
		return Verdict{
			Allowed:     false,
			Reason:      "input exceeds maximum length",
			MatchedRule: "max_length",
		}
	}

	if ratio := symbolRatio(raw); ratio > s.maxSymbolRatio {
		return Verdict{
			Allowed:     false,
			Reason:      "excessive special characters detected",
			MatchedRule: "symbol_ratio",
		}
	}

	matched := normalize(raw)
	for _, rule := range s.rules {
		if rule.Pattern.MatchString(matched) {
			return Verdict{
				Allowed:     false,
				Reason:      "potential prompt injection detected",
				MatchedRule: rule.Name,
			}
		}
	}

	return Verdict{Allowed: true}
}

// symbolRatio returns the fraction of runes that are neither alphanumeric
// nor whitespace.
func symbolRatio(s string) float64 {
	total, symbols := 0, 0
	for _, r := range s {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			symbols++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(symbols) / float64(total)
}
