package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Variants select the canonical granularity for the lowest grades.
const (
	VariantKanji    = "kanji"
	VariantHiragana = "hiragana"
)

//go:embed data/subjects.yaml
var defaultData []byte

//go:embed data/subjects_hiragana.yaml
var hiraganaData []byte

// Default parses the embedded taxonomy for the given variant.
func Default(variant string) (*Taxonomy, error) {
	base, err := Parse("embedded", defaultData)
	if err != nil {
		return nil, err
	}
	return applyVariant(base, variant)
}

func applyVariant(base *Taxonomy, variant string) (*Taxonomy, error) {
	switch variant {
	case "", VariantKanji:
		return base, nil
	case VariantHiragana:
		o, err := Parse("embedded:hiragana", hiraganaData)
		if err != nil {
			return nil, err
		}
		return base.overlay(o), nil
	default:
		return nil, &LoadError{Source: "variant", Err: fmt.Errorf("unknown variant %q", variant)}
	}
}

type subjectRecord struct {
	Aliases []string `yaml:"aliases"`
	Color   string   `yaml:"color"`
}

// Parse reads a YAML taxonomy of the form
//
//	level:
//	  grade:
//	    subject: {aliases: [...], color: "#RRGGBB note"}
//
// keeping declaration order for buckets and subjects. It returns a
// *LoadError for unreadable or malformed input and an *AmbiguityError when
// an alias is claimed twice within one bucket.
func Parse(source string, data []byte) (*Taxonomy, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &LoadError{Source: source, Err: errors.New("empty document")}
	}

	t := &Taxonomy{Source: source, levels: make(map[string]map[string]*Bucket)}
	err := eachPair(doc.Content[0], func(lk, lv *yaml.Node) error {
		level := strings.TrimSpace(lk.Value)
		if level == "" {
			return fmt.Errorf("line %d: empty school level", lk.Line)
		}
		if _, dup := t.levels[level]; dup {
			return fmt.Errorf("line %d: school level %q defined twice", lk.Line, level)
		}
		t.levels[level] = make(map[string]*Bucket)

		return eachPair(lv, func(gk, gv *yaml.Node) error {
			grade := strings.TrimSpace(gk.Value)
			if grade == "" {
				return fmt.Errorf("line %d: empty grade under %q", gk.Line, level)
			}
			if _, dup := t.levels[level][grade]; dup {
				return fmt.Errorf("line %d: grade %s/%s defined twice", gk.Line, level, grade)
			}
			b, err := parseBucket(level, grade, gv)
			if err != nil {
				return err
			}
			t.levels[level][grade] = b
			t.order = append(t.order, b)
			return nil
		})
	})
	if err != nil {
		var amb *AmbiguityError
		if errors.As(err, &amb) {
			return nil, amb
		}
		return nil, &LoadError{Source: source, Err: err}
	}
	if len(t.order) == 0 {
		return nil, &LoadError{Source: source, Err: errors.New("no grade buckets")}
	}
	return t, nil
}

func parseBucket(level, grade string, n *yaml.Node) (*Bucket, error) {
	b := &Bucket{Level: level, Grade: grade, aliases: make(map[string]int)}
	names := make(map[string]bool)

	err := eachPair(n, func(sk, sv *yaml.Node) error {
		name := strings.TrimSpace(sk.Value)
		if name == "" {
			return fmt.Errorf("line %d: empty subject name in %s/%s", sk.Line, level, grade)
		}
		if names[name] {
			return fmt.Errorf("line %d: subject %q defined twice in %s/%s", sk.Line, name, level, grade)
		}
		names[name] = true

		var rec subjectRecord
		if err := sv.Decode(&rec); err != nil {
			return fmt.Errorf("subject %s/%s/%s: %w", level, grade, name, err)
		}

		s := Subject{Name: name, Color: strings.TrimSpace(rec.Color)}
		idx := len(b.Subjects)
		seen := make(map[string]bool)
		for _, a := range append([]string{name}, rec.Aliases...) {
			a = strings.TrimSpace(a)
			f := Fold(a)
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			if other, ok := b.aliases[f]; ok {
				return &AmbiguityError{
					Level:  level,
					Grade:  grade,
					Alias:  a,
					First:  b.Subjects[other].Name,
					Second: name,
				}
			}
			b.aliases[f] = idx
			s.Aliases = append(s.Aliases, a)
		}
		b.Subjects = append(b.Subjects, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(b.Subjects) == 0 {
		return nil, fmt.Errorf("bucket %s/%s has no subjects", level, grade)
	}
	return b, nil
}

func eachPair(n *yaml.Node, fn func(k, v *yaml.Node) error) error {
	n = resolve(n)
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i], resolve(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// resolve follows YAML aliases (*anchor) to the anchored node.
func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
