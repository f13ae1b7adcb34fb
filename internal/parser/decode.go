package parser

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"timetabler/pkg/models"
)

// weekdayAliases maps lower-cased day labels onto the canonical keys.
var weekdayAliases = map[string]string{}

func init() {
	days := map[string][]string{
		"Monday":    {"mon", "月曜日", "月曜", "月"},
		"Tuesday":   {"tue", "tues", "火曜日", "火曜", "火"},
		"Wednesday": {"wed", "水曜日", "水曜", "水"},
		"Thursday":  {"thu", "thur", "thurs", "木曜日", "木曜", "木"},
		"Friday":    {"fri", "金曜日", "金曜", "金"},
		"Saturday":  {"sat", "土曜日", "土曜", "土"},
		"Sunday":    {"sun", "日曜日", "日曜", "日"},
	}
	for day, aliases := range days {
		weekdayAliases[strings.ToLower(day)] = day
		for _, a := range aliases {
			weekdayAliases[a] = day
		}
	}
}

func weekdayOf(key string) (string, bool) {
	d, ok := weekdayAliases[strings.ToLower(strings.TrimSpace(key))]
	return d, ok
}

// decode parses s as a schedule document. It only requires s to be a JSON
// object; every field below that is decoded leniently.
func decode(s string) (models.Document, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	if !strings.HasPrefix(s, "{") {
		return models.Document{}, false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &top); err != nil {
		return models.Document{}, false
	}

	doc := models.Document{Schedule: models.Week{}}
	if raw, ok := lookup(top, "title"); ok {
		doc.Title = scalar(raw)
	}

	if raw, ok := lookup(top, "schedule"); ok {
		var days map[string]json.RawMessage
		if json.Unmarshal(raw, &days) == nil {
			foldDays(days, doc.Schedule, true)
		}
	} else {
		// weekday keys directly on the top-level object
		foldDays(top, doc.Schedule, false)
	}
	doc.Schedule.Fill()
	return doc, true
}

// lookup finds key exactly, then case-insensitively in sorted key order.
func lookup(m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for _, k := range sortedKeys(m) {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return m[k], true
		}
	}
	return nil, false
}

// foldDays appends every recognised day of days onto out under its
// canonical key. The canonical spelling goes first, other spellings follow
// in sorted key order. Unrecognised keys are copied as-is when keepUnknown.
func foldDays(days map[string]json.RawMessage, out models.Week, keepUnknown bool) {
	keys := sortedKeys(days)
	for _, day := range models.Weekdays {
		if raw, ok := days[day]; ok {
			out[day] = append(out[day], entries(raw)...)
		}
		for _, k := range keys {
			if k == day {
				continue
			}
			if d, ok := weekdayOf(k); ok && d == day {
				out[day] = append(out[day], entries(days[k])...)
			}
		}
	}
	if !keepUnknown {
		return
	}
	for _, k := range keys {
		if _, ok := weekdayOf(k); ok {
			continue
		}
		out[k] = append(out[k], entries(days[k])...)
	}
}

// entries decodes a day. Anything but an array is an empty day; a bare
// string element is taken as a subject; blank entries are dropped.
func entries(raw json.RawMessage) []models.Entry {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return []models.Entry{}
	}
	out := make([]models.Entry, 0, len(items))
	for _, item := range items {
		e, ok := entry(item)
		if !ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func entry(raw json.RawMessage) (models.Entry, bool) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		subject := scalar(raw)
		return models.Entry{Subject: subject}, strings.TrimSpace(subject) != ""
	}

	var e models.Entry
	if v, ok := lookup(fields, "time"); ok {
		e.Time = scalar(v)
	}
	if v, ok := lookup(fields, "subject"); ok {
		e.Subject = scalar(v)
	}
	if v, ok := lookup(fields, "room"); ok {
		e.Room = scalar(v)
	}
	if v, ok := lookup(fields, "originalSubject"); ok {
		e.OriginalSubject = scalar(v)
	}
	blank := strings.TrimSpace(e.Time) == "" &&
		strings.TrimSpace(e.Subject) == "" &&
		strings.TrimSpace(e.Room) == ""
	return e, !blank
}

// scalar renders a JSON string, number or boolean as text. Null, objects
// and arrays become "".
func scalar(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
