// Package normalize resolves extracted subject labels against the
// canonical taxonomy of a grade.
//
// Matching runs in a fixed priority order and is deterministic for a given
// taxonomy:
//
//  1. no bucket for (level, grade): unmatched
//  2. exact alias: the label is one of a subject's aliases
//  3. fuzzy: the canonical name contains the label or the label contains
//     the canonical name; the first subject in declared order wins
//  4. otherwise unmatched, the label passes through unchanged
//
// Comparisons use taxonomy.Fold, so width and kana variants compare equal.
// Fuzzy results depend on the declaration order of the taxonomy data, not
// on the label alone.
package normalize

import (
	"regexp"
	"strings"

	"timetabler/internal/taxonomy"
)

const (
	// DefaultUnmatchedColor marks subjects that matched nothing.
	DefaultUnmatchedColor = "#F5F5F5"
	// DefaultFallbackColor replaces stored colors without a hex prefix.
	DefaultFallbackColor = "#CCCCCC"
)

// Rule names how a label was resolved.
type Rule string

const (
	RuleNoBucket Rule = "no_bucket"
	RuleExact    Rule = "exact"
	RuleFuzzy    Rule = "fuzzy"
	RuleNone     Rule = "none"
)

type Result struct {
	CanonicalName string
	Color         string
	IsUnmatched   bool
	Rule          Rule
}

// Normalizer is a pure function of its inputs; the zero value uses the
// default colors.
type Normalizer struct {
	UnmatchedColor string
	FallbackColor  string
}

func New(unmatchedColor, fallbackColor string) Normalizer {
	return Normalizer{UnmatchedColor: unmatchedColor, FallbackColor: fallbackColor}
}

// Normalize resolves raw against the bucket for (level, grade) in tax.
func (n Normalizer) Normalize(raw, level, grade string, tax *taxonomy.Taxonomy) Result {
	b, ok := tax.Lookup(level, grade)
	if !ok {
		return n.unmatched(raw, RuleNoBucket)
	}
	return n.Match(raw, b)
}

// Match resolves raw against a single bucket.
func (n Normalizer) Match(raw string, b *taxonomy.Bucket) Result {
	if b == nil {
		return n.unmatched(raw, RuleNoBucket)
	}
	key := taxonomy.Fold(raw)
	if key == "" {
		return n.unmatched(raw, RuleNone)
	}

	// alias sets are disjoint within a bucket, so at most one subject owns key
	if s, ok := b.Exact(raw); ok {
		return n.matched(s, RuleExact)
	}

	for _, s := range b.Subjects {
		name := taxonomy.Fold(s.Name)
		if strings.Contains(key, name) || strings.Contains(name, key) {
			return n.matched(s, RuleFuzzy)
		}
	}
	return n.unmatched(raw, RuleNone)
}

func (n Normalizer) matched(s taxonomy.Subject, rule Rule) Result {
	return Result{
		CanonicalName: s.Name,
		Color:         n.Color(s),
		Rule:          rule,
	}
}

// Color is the display color of a canonical subject.
func (n Normalizer) Color(s taxonomy.Subject) string {
	return extractColorHex(s.Color, n.fallbackColor())
}

func (n Normalizer) unmatched(raw string, rule Rule) Result {
	color := n.UnmatchedColor
	if color == "" {
		color = DefaultUnmatchedColor
	}
	return Result{CanonicalName: raw, Color: color, IsUnmatched: true, Rule: rule}
}

func (n Normalizer) fallbackColor() string {
	if n.FallbackColor == "" {
		return DefaultFallbackColor
	}
	return n.FallbackColor
}

var hexPrefix = regexp.MustCompile(`^\s*#?([0-9A-Fa-f]{6})`)

// ExtractColorHex returns the leading "#RRGGBB" of a stored color such as
// "#E1F7FD 算数/数学", or DefaultFallbackColor when there is none.
func ExtractColorHex(stored string) string {
	return extractColorHex(stored, DefaultFallbackColor)
}

func extractColorHex(stored, fallback string) string {
	m := hexPrefix.FindStringSubmatch(stored)
	if m == nil {
		return fallback
	}
	return "#" + m[1]
}

// ValidColor reports whether c is exactly "#RRGGBB".
func ValidColor(c string) bool {
	return len(c) == 7 && c[0] == '#' && hexPrefix.MatchString(c)
}
