package namematch

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the minimum fuzzy similarity accepted as a match.
const DefaultThreshold = 85.0

// Confidence levels for the non-fuzzy match methods.
const (
	ExactConfidence    = 100.0
	NicknameConfidence = 95.0
)

// Method identifies which rule produced a match.
type Method string

const (
	MethodExact    Method = "exact"
	MethodNickname Method = "nickname"
	MethodFuzzy    Method = "fuzzy"
)

// Result is a successful match against one candidate.
type Result struct {
	// Name is the candidate exactly as supplied by the caller
	Name string `json:"name"`
	// Confidence is in the range [0, 100]
	Confidence float64 `json:"confidence"`
	// Method is the rule that produced the match
	Method Method `json:"method"`
}

// Matcher compares free-text names against a set of canonical names.
// A Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	threshold    float64
	nicknames    nicknameIndex
	placeholders map[string]struct{}
	prefixes     []string
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the minimum accepted fuzzy similarity.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// WithNicknames replaces the built-in nickname table.
func WithNicknames(table map[string][]string) Option {
	return func(m *Matcher) {
		m.nicknames = newNicknameIndex(table)
	}
}

// WithPlaceholders marks candidate names that must never be matched.
func WithPlaceholders(names ...string) Option {
	return func(m *Matcher) {
		for _, n := range names {
			if key := Normalize(n); key != "" {
				m.placeholders[key] = struct{}{}
			}
		}
	}
}

// WithPlaceholderPrefixes marks every candidate starting with one of the
// given prefixes as a placeholder.
func WithPlaceholderPrefixes(prefixes ...string) Option {
	return func(m *Matcher) {
		for _, p := range prefixes {
			if key := Normalize(p); key != "" {
				m.prefixes = append(m.prefixes, key)
			}
		}
	}
}

// New creates a Matcher with the default threshold and nickname table.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		threshold:    DefaultThreshold,
		nicknames:    newNicknameIndex(DefaultNicknames),
		placeholders: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured fuzzy threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Normalize applies compatibility normalization and case folding, trims the
// string and collapses internal whitespace to single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Match finds the best candidate for name. The boolean is false when the
// input is empty, there are no usable candidates, or no candidate scores at
// or above the threshold.
func (m *Matcher) Match(name string, candidates []string) (Result, bool) {
	needle := Normalize(name)
	if needle == "" || len(candidates) == 0 {
		return Result{}, false
	}

	type scored struct {
		name   string
		normal string
	}
	usable := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		n := Normalize(c)
		if n == "" || m.isPlaceholder(n) {
			continue
		}
		if n == needle {
			return Result{Name: c, Confidence: ExactConfidence, Method: MethodExact}, true
		}
		usable = append(usable, scored{name: c, normal: n})
	}
	if len(usable) == 0 {
		return Result{}, false
	}

	needleFirst, needleRest := splitFirst(needle)

	var (
		nickBest      string
		nickRestScore = -1.0
	)
	for _, c := range usable {
		first, rest := splitFirst(c.normal)
		if !m.nicknames.related(needleFirst, first) || !m.surnamesAgree(needleRest, rest) {
			continue
		}
		if s := Similarity(needleRest, rest); s > nickRestScore {
			nickBest, nickRestScore = c.name, s
		}
	}
	if nickRestScore >= 0 {
		return Result{Name: nickBest, Confidence: NicknameConfidence, Method: MethodNickname}, true
	}

	var (
		best      string
		bestScore = -1.0
	)
	for _, c := range usable {
		if s := Similarity(needle, c.normal); s > bestScore {
			best, bestScore = c.name, s
		}
	}
	if bestScore < m.threshold {
		return Result{}, false
	}
	return Result{Name: best, Confidence: bestScore, Method: MethodFuzzy}, true
}

// surnamesAgree reports whether the tokens after the first name are compatible.
// A missing surname on either side agrees; otherwise the surnames must clear
// the fuzzy threshold or one must start with the other ("smith-ish", "smith").
func (m *Matcher) surnamesAgree(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	if Similarity(a, b) >= m.threshold {
		return true
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

func (m *Matcher) isPlaceholder(normalized string) bool {
	if _, ok := m.placeholders[normalized]; ok {
		return true
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(normalized, p) {
			return true
		}
	}
	return false
}

func splitFirst(s string) (first, rest string) {
	first, rest, _ = strings.Cut(s, " ")
	return first, rest
}
