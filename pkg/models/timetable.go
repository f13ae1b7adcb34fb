package models

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Weekdays lists the schedule keys in display order. Every Document carries
// all seven.
var Weekdays = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// DefaultTitle is used when nothing usable came back from extraction.
const DefaultTitle = "Extracted Timetable"

// Entry is one lesson slot as extracted, plus the annotations added by
// subject normalization.
type Entry struct {
	Time              string `json:"time"`
	Subject           string `json:"subject"`
	Room              string `json:"room"`
	NormalizedSubject string `json:"normalizedSubject,omitempty"`
	SubjectColor      string `json:"subjectColor,omitempty"`
	IsUnmatched       bool   `json:"isUnmatched"`
	OriginalSubject   string `json:"originalSubject,omitempty"`
}

// Week maps weekday names to entries in extraction order.
type Week map[string][]Entry

// NewWeek returns a week with all seven days present and empty.
func NewWeek() Week {
	w := make(Week, len(Weekdays))
	for _, d := range Weekdays {
		w[d] = []Entry{}
	}
	return w
}

// Fill adds any missing weekday and replaces nil days with empty slices.
func (w Week) Fill() {
	for _, d := range Weekdays {
		if w[d] == nil {
			w[d] = []Entry{}
		}
	}
}

// MarshalJSON writes Monday..Sunday first, then any other keys sorted.
func (w Week) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(w))
	known := make(map[string]bool, len(Weekdays))
	for _, d := range Weekdays {
		known[d] = true
		if _, ok := w[d]; ok {
			keys = append(keys, d)
		}
	}
	var extra []string
	for k := range w {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		entries := w[k]
		if entries == nil {
			entries = []Entry{}
		}
		vb, err := json.Marshal(entries)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Document is a weekly schedule.
type Document struct {
	Title    string `json:"title"`
	Schedule Week   `json:"schedule"`
}

// Skeleton is the document returned when extraction output is unusable.
func Skeleton() Document {
	return Document{Title: DefaultTitle, Schedule: NewWeek()}
}

// Clone returns a deep copy so stored documents cannot be mutated through
// a returned value.
func (d Document) Clone() Document {
	out := Document{Title: d.Title, Schedule: make(Week, len(d.Schedule))}
	for k, entries := range d.Schedule {
		cp := make([]Entry, len(entries))
		copy(cp, entries)
		out.Schedule[k] = cp
	}
	return out
}

// Entries counts the entries across all days.
func (d Document) Entries() int {
	n := 0
	for _, entries := range d.Schedule {
		n += len(entries)
	}
	return n
}

// Timetable is a finished, normalized document and its identifier.
type Timetable struct {
	ID   string   `json:"id"`
	Data Document `json:"data"`
}

// TimetableSummary is the list view of a stored timetable.
type TimetableSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
