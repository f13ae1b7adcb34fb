package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetabler/internal/taxonomy"
)

func defaultTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Default(taxonomy.VariantKanji)
	require.NoError(t, err)
	return tax
}

func TestNormalize_AliasTotality(t *testing.T) {
	tax := defaultTaxonomy(t)
	var n Normalizer

	for _, b := range tax.Buckets() {
		for _, s := range b.Subjects {
			for _, a := range s.Aliases {
				got := n.Normalize(a, b.Level, b.Grade, tax)
				assert.False(t, got.IsUnmatched, "%s/%s %q", b.Level, b.Grade, a)
				assert.Equal(t, s.Name, got.CanonicalName, "%s/%s %q", b.Level, b.Grade, a)
				assert.Equal(t, RuleExact, got.Rule)
			}
		}
	}
}

func TestNormalize_Scenarios(t *testing.T) {
	tax := defaultTaxonomy(t)
	var n Normalizer

	tests := []struct {
		name      string
		raw       string
		level     string
		grade     string
		wantName  string
		wantColor string
		unmatched bool
		rule      Rule
	}{
		{"hiragana alias", "さんすう", "elementary", "1", "算数", "#E1F7FD", false, RuleExact},
		{"canonical name", "国語", "elementary", "1", "国語", "#FDE2E4", false, RuleExact},
		{"half-width katakana", "ｻﾝｽｳ", "elementary", "1", "算数", "#E1F7FD", false, RuleExact},
		{"padded", "  体育 ", "elementary", "1", "体育", "#E0F2F1", false, RuleExact},
		{"fuzzy partial", "体", "elementary", "1", "体育", "#E0F2F1", false, RuleFuzzy},
		{"fuzzy superset", "算数ドリル", "elementary", "1", "算数", "#E1F7FD", false, RuleFuzzy},
		{"unrelated", "Physics", "elementary", "1", "Physics", DefaultUnmatchedColor, true, RuleNone},
		{"empty", "", "elementary", "1", "", DefaultUnmatchedColor, true, RuleNone},
		{"only spaces", "   ", "elementary", "1", "   ", DefaultUnmatchedColor, true, RuleNone},
		{"no bucket", "算数", "elementary", "9", "算数", DefaultUnmatchedColor, true, RuleNoBucket},
		{"junior high math", "すうがく", "junior_high", "2", "数学", "#E1F7FD", false, RuleExact},
		{"high school roman numeral", "数学Ⅰ", "high_school", "1", "数学", "#E1F7FD", false, RuleExact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw, tt.level, tt.grade, tax)
			assert.Equal(t, tt.wantName, got.CanonicalName)
			assert.Equal(t, tt.wantColor, got.Color)
			assert.Equal(t, tt.unmatched, got.IsUnmatched)
			assert.Equal(t, tt.rule, got.Rule)
		})
	}
}

func TestNormalize_FuzzyFollowsDeclaredOrder(t *testing.T) {
	first := `
elementary:
  "1":
    生活:
      color: "#E8F5E9"
    学級活動:
      color: "#ECEFF1"
`
	second := `
elementary:
  "1":
    学級活動:
      color: "#ECEFF1"
    生活:
      color: "#E8F5E9"
`
	var n Normalizer
	for _, tc := range []struct {
		data string
		want string
	}{
		{first, "生活"},
		{second, "学級活動"},
	} {
		tax, err := taxonomy.Parse("test", []byte(tc.data))
		require.NoError(t, err)
		got := n.Normalize("活", "elementary", "1", tax)
		assert.Equal(t, tc.want, got.CanonicalName)
		assert.Equal(t, RuleFuzzy, got.Rule)
	}
}

func TestNormalize_ConfiguredColors(t *testing.T) {
	tax, err := taxonomy.Parse("test", []byte(`
elementary:
  "1":
    算数:
      aliases: [さんすう]
      color: "no hex here"
`))
	require.NoError(t, err)

	n := New("#FFFFFF", "#999999")
	got := n.Normalize("さんすう", "elementary", "1", tax)
	assert.Equal(t, "#999999", got.Color)
	assert.False(t, got.IsUnmatched)

	got = n.Normalize("理科", "elementary", "1", tax)
	assert.Equal(t, "#FFFFFF", got.Color)
	assert.True(t, got.IsUnmatched)
}

func TestNormalize_NilTaxonomy(t *testing.T) {
	got := Normalizer{}.Normalize("算数", "elementary", "1", nil)
	assert.True(t, got.IsUnmatched)
	assert.Equal(t, "算数", got.CanonicalName)
	assert.Equal(t, RuleNoBucket, got.Rule)
}

func TestExtractColorHex(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"#E1F7FD 算数/数学", "#E1F7FD"},
		{"#e1f7fd", "#e1f7fd"},
		{"E1F7FD 算数", "#E1F7FD"},
		{"#E1F7FDAA extra", "#E1F7FD"},
		{"  #FDE2E4 国語", "#FDE2E4"},
		{"#E1F 短い", DefaultFallbackColor},
		{"算数 #E1F7FD", DefaultFallbackColor},
		{"#GGGGGG", DefaultFallbackColor},
		{"", DefaultFallbackColor},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractColorHex(tt.in))
		})
	}
}

func TestValidColor(t *testing.T) {
	assert.True(t, ValidColor("#F5F5F5"))
	assert.False(t, ValidColor("F5F5F5"))
	assert.False(t, ValidColor("#F5F5F5 gray"))
	assert.False(t, ValidColor("#F5F"))
}
