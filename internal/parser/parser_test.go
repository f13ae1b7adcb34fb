package parser

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetabler/pkg/models"
)

func week(days map[string][]models.Entry) models.Week {
	w := models.Week{}
	for k, v := range days {
		w[k] = v
	}
	w.Fill()
	return w
}

func TestParseTier(t *testing.T) {
	mon := []models.Entry{{Time: "09:00-09:45", Subject: "さんすう", Room: "1-1"}}

	tests := []struct {
		name string
		raw  string
		tier Tier
		want models.Document
	}{
		{
			name: "valid json",
			raw:  `{"title":"1年1組","schedule":{"Monday":[{"time":"09:00-09:45","subject":"さんすう","room":"1-1"}],"Tuesday":[]}}`,
			tier: TierDirect,
			want: models.Document{Title: "1年1組", Schedule: week(map[string][]models.Entry{"Monday": mon})},
		},
		{
			name: "fenced block",
			raw:  "Here is the result:\n```json\n{\"title\":\"T\",\"schedule\":{\"Monday\":[]}}\n```",
			tier: TierFenced,
			want: models.Document{Title: "T", Schedule: models.NewWeek()},
		},
		{
			name: "untagged fence after a non-json fence",
			raw:  "```text\nnot json\n```\nand\n```\n{\"title\":\"T\"}\n```",
			tier: TierFenced,
			want: models.Document{Title: "T", Schedule: models.NewWeek()},
		},
		{
			name: "prose around object",
			raw:  `Sure! {"title":"T","schedule":{"Monday":[{"time":"09:00-09:45","subject":"さんすう","room":"1-1"}]}} Let me know.`,
			tier: TierBraces,
			want: models.Document{Title: "T", Schedule: week(map[string][]models.Entry{"Monday": mon})},
		},
		{
			name: "trailing braces in prose",
			raw:  `{"title":"T","schedule":{}} note: {unclear cell}`,
			tier: TierRepaired,
			want: models.Document{Title: "T", Schedule: models.NewWeek()},
		},
		{
			name: "truncated output",
			raw:  `{"title":"T","schedule":{"Monday":[{"time":"09:00-09:45","subject":"さんすう","room":"1-1"},{"time":"10:00","subj`,
			tier: TierRepaired,
			want: models.Document{Title: "T", Schedule: week(map[string][]models.Entry{
				"Monday": append(append([]models.Entry{}, mon...), models.Entry{Time: "10:00"}),
			})},
		},
		{
			name: "truncated inside an entry key",
			raw:  `{"title":"T","schedule":{"Monday":[{"time":"09:00-09:45","subject":"さんすう","room":"1-1"},{"ti`,
			tier: TierRepaired,
			want: models.Document{Title: "T", Schedule: week(map[string][]models.Entry{"Monday": mon})},
		},
		{
			name: "no braces",
			raw:  "I could not read this image.",
			tier: TierFallback,
			want: models.Skeleton(),
		},
		{
			name: "empty",
			raw:  "",
			tier: TierFallback,
			want: models.Skeleton(),
		},
		{
			name: "broken beyond repair",
			raw:  `{"title": ]`,
			tier: TierFallback,
			want: models.Skeleton(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tier := ParseTier(tt.raw)
			assert.Equal(t, tt.tier, tier)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_AlwaysSevenDays(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"schedule": null}`,
		`{"schedule": "none"}`,
		`{"schedule": {"Friday": null}}`,
		`garbage`,
		"```json\n{\"schedule\":{\"Sunday\":[{}]}}\n```",
	}
	for _, in := range inputs {
		doc := Parse(in)
		for _, d := range models.Weekdays {
			v, ok := doc.Schedule[d]
			require.True(t, ok, "%q missing %s", in, d)
			require.NotNil(t, v, "%q nil %s", in, d)
		}
	}
}

func TestParse_MatchesPlainDecodeForWellFormedInput(t *testing.T) {
	raw := `{"title":"週時間割","schedule":{
		"Monday":[{"time":"1","subject":"国語","room":""},{"time":"2","subject":"算数","room":"理科室","originalSubject":"さんすう"}],
		"Wednesday":[{"time":"1","subject":"体育","room":"体育館"}]}}`

	var want models.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &want))
	want.Schedule.Fill()

	got, tier := ParseTier(raw)
	assert.Equal(t, TierDirect, tier)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-decode +parse):\n%s", diff)
	}
}

func TestParse_Lenient(t *testing.T) {
	t.Run("scalars become text", func(t *testing.T) {
		doc := Parse(`{"title": 2024, "schedule": {"Monday": [{"time": 1, "subject": "算数", "room": 101}, {"time": true, "subject": null, "room": "A"}]}}`)
		assert.Equal(t, "2024", doc.Title)
		require.Len(t, doc.Schedule["Monday"], 2)
		assert.Equal(t, models.Entry{Time: "1", Subject: "算数", Room: "101"}, doc.Schedule["Monday"][0])
		assert.Equal(t, models.Entry{Time: "true", Room: "A"}, doc.Schedule["Monday"][1])
	})

	t.Run("bare strings and blanks", func(t *testing.T) {
		doc := Parse(`{"schedule": {"Tuesday": ["国語", "", {"time": " ", "subject": ""}, 3]}}`)
		assert.Equal(t, []models.Entry{{Subject: "国語"}, {Subject: "3"}}, doc.Schedule["Tuesday"])
	})

	t.Run("day that is not a list", func(t *testing.T) {
		doc := Parse(`{"schedule": {"Monday": {"time": "1"}}}`)
		assert.Empty(t, doc.Schedule["Monday"])
	})

	t.Run("weekday spellings fold onto canonical keys", func(t *testing.T) {
		doc := Parse(`{"schedule": {"月曜日": [{"subject": "国語"}], "Monday": [{"subject": "算数"}], "tue": [{"subject": "生活"}], "Fri ": [{"subject": "体育"}]}}`)
		assert.Equal(t, []models.Entry{{Subject: "算数"}, {Subject: "国語"}}, doc.Schedule["Monday"])
		assert.Equal(t, []models.Entry{{Subject: "生活"}}, doc.Schedule["Tuesday"])
		assert.Equal(t, []models.Entry{{Subject: "体育"}}, doc.Schedule["Friday"])
		_, stray := doc.Schedule["月曜日"]
		assert.False(t, stray)
	})

	t.Run("unknown keys are kept", func(t *testing.T) {
		doc := Parse(`{"schedule": {"Holiday": [{"subject": "遠足"}]}}`)
		assert.Equal(t, []models.Entry{{Subject: "遠足"}}, doc.Schedule["Holiday"])
		assert.Len(t, doc.Schedule, 8)
	})

	t.Run("days without schedule wrapper", func(t *testing.T) {
		doc := Parse(`{"title": "T", "Monday": [{"subject": "国語"}], "note": "x"}`)
		assert.Equal(t, "T", doc.Title)
		assert.Equal(t, []models.Entry{{Subject: "国語"}}, doc.Schedule["Monday"])
		assert.Len(t, doc.Schedule, 7)
	})

	t.Run("case-insensitive field names", func(t *testing.T) {
		doc := Parse(`{"Title": "T", "Schedule": {"Monday": [{"Time": "1", "Subject": "国語", "Room": "2-1"}]}}`)
		assert.Equal(t, "T", doc.Title)
		assert.Equal(t, []models.Entry{{Time: "1", Subject: "国語", Room: "2-1"}}, doc.Schedule["Monday"])
	})
}

func TestRepair(t *testing.T) {
	tests := []struct {
		in string
		ok bool
		// want holds top-level keys the repaired object must carry
		want map[string]any
	}{
		{`{"a":1,"b"`, true, map[string]any{"a": 1.0}},
		{`{"a":`, true, map[string]any{}},
		{`{"a":"x,y`, true, map[string]any{"a": "x,y"}},
		{`{"a":[1,2,{"b":"}"}`, true, map[string]any{"a": []any{1.0, 2.0, map[string]any{"b": "}"}}}},
		{`prefix {"a":{"b":[]}} tail}`, true, map[string]any{"a": map[string]any{"b": []any{}}}},
		{`{"a":"\"quoted\"", "b":`, true, map[string]any{"a": `"quoted"`}},
		{`{"a":]`, false, nil},
		{`no object`, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := repair(tt.in)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			var obj map[string]any
			require.NoError(t, json.Unmarshal([]byte(got), &obj), got)
			for k, v := range tt.want {
				assert.Equal(t, v, obj[k], k)
			}
		})
	}
}

func TestRepair_CompleteObjectDropsTrailingText(t *testing.T) {
	got, ok := repair(`{"title":"T","schedule":{}} note: {unclear cell}`)
	require.True(t, ok)
	assert.Equal(t, `{"title":"T","schedule":{}}`, got)
}
