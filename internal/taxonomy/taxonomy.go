package taxonomy

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Subject is one canonical subject of a grade bucket.
type Subject struct {
	Name    string
	Aliases []string // declared order, always includes Name
	Color   string   // stored form: "#RRGGBB" plus a free-form note
}

// Bucket is the ordered set of canonical subjects for one (level, grade).
type Bucket struct {
	Level    string
	Grade    string
	Subjects []Subject

	// folded alias -> index into Subjects
	aliases map[string]int
}

// Exact returns the subject owning alias, comparing folded forms.
func (b *Bucket) Exact(alias string) (Subject, bool) {
	i, ok := b.aliases[Fold(alias)]
	if !ok {
		return Subject{}, false
	}
	return b.Subjects[i], true
}

// Names returns the canonical names in declared order.
func (b *Bucket) Names() []string {
	out := make([]string, len(b.Subjects))
	for i, s := range b.Subjects {
		out[i] = s.Name
	}
	return out
}

// Taxonomy maps school level -> grade -> bucket. It is never mutated after
// construction; reloads build a new value.
type Taxonomy struct {
	Source string

	levels map[string]map[string]*Bucket
	order  []*Bucket
}

// Lookup returns the bucket for (level, grade).
func (t *Taxonomy) Lookup(level, grade string) (*Bucket, bool) {
	if t == nil {
		return nil, false
	}
	grades, ok := t.levels[level]
	if !ok {
		return nil, false
	}
	b, ok := grades[grade]
	return b, ok
}

// Buckets returns every bucket in declared order.
func (t *Taxonomy) Buckets() []*Bucket {
	if t == nil {
		return nil
	}
	out := make([]*Bucket, len(t.order))
	copy(out, t.order)
	return out
}

// Levels returns the school levels in declared order.
func (t *Taxonomy) Levels() []string {
	var out []string
	seen := make(map[string]bool)
	for _, b := range t.order {
		if !seen[b.Level] {
			seen[b.Level] = true
			out = append(out, b.Level)
		}
	}
	return out
}

// overlay returns a copy of t with every bucket of o replacing the
// bucket at the same key.
func (t *Taxonomy) overlay(o *Taxonomy) *Taxonomy {
	out := &Taxonomy{
		Source: t.Source + "+" + o.Source,
		levels: make(map[string]map[string]*Bucket, len(t.levels)),
	}
	replaced := make(map[*Bucket]*Bucket)
	for _, b := range o.order {
		if old, ok := t.Lookup(b.Level, b.Grade); ok {
			replaced[old] = b
		}
	}
	add := func(b *Bucket) {
		if out.levels[b.Level] == nil {
			out.levels[b.Level] = make(map[string]*Bucket)
		}
		out.levels[b.Level][b.Grade] = b
		out.order = append(out.order, b)
	}
	for _, b := range t.order {
		if nb, ok := replaced[b]; ok {
			add(nb)
			continue
		}
		add(b)
	}
	for _, b := range o.order {
		if _, ok := out.Lookup(b.Level, b.Grade); !ok {
			add(b)
		}
	}
	return out
}

// Fold maps a subject label to the form used for comparisons: NFKC
// (full-width latin/digits and half-width kana collapse), katakana folded
// to hiragana, whitespace removed, lower case.
func Fold(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if r >= 0x30A1 && r <= 0x30F6 {
			r -= 0x60
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
