// Package parser recovers a schedule document from the free text returned
// by an extraction model. It never fails: when nothing can be recovered it
// returns models.Skeleton().
package parser

import (
	"regexp"
	"strings"

	"timetabler/pkg/models"
)

// Tier names the recovery step that produced a document.
type Tier string

const (
	TierDirect   Tier = "direct"
	TierFenced   Tier = "fenced"
	TierBraces   Tier = "braces"
	TierRepaired Tier = "repaired"
	TierFallback Tier = "fallback"
)

// Parse returns the schedule document contained in raw.
func Parse(raw string) models.Document {
	doc, _ := ParseTier(raw)
	return doc
}

// ParseTier is Parse that also reports which tier succeeded. Tiers are
// tried in order and the first one that yields a JSON object wins:
// the whole text, a fenced code block, the first '{' to the last '}',
// the object up to its own closing brace, or a truncated object repaired.
func ParseTier(raw string) (models.Document, Tier) {
	if doc, ok := decode(raw); ok {
		return doc, TierDirect
	}
	for _, block := range fencedBlocks(raw) {
		if doc, ok := decode(block); ok {
			return doc, TierFenced
		}
	}
	if span, ok := braceSpan(raw); ok {
		if doc, ok := decode(span); ok {
			return doc, TierBraces
		}
	}
	if fixed, ok := repair(raw); ok {
		if doc, ok := decode(fixed); ok {
			return doc, TierRepaired
		}
	}
	return models.Skeleton(), TierFallback
}

var fence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

func fencedBlocks(raw string) []string {
	ms := fence.FindAllStringSubmatch(raw, -1)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m[1])
	}
	return out
}

func braceSpan(raw string) (string, bool) {
	i := strings.IndexByte(raw, '{')
	j := strings.LastIndexByte(raw, '}')
	if i < 0 || j <= i {
		return "", false
	}
	return raw[i : j+1], true
}
