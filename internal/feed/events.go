package feed

import "time"

const TypeTimetableCreated = "timetable.created"

type Event struct {
	Type        string    `json:"type"` // "timetable.created"
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SchoolLevel string    `json:"school_level"`
	Grade       string    `json:"grade"`
	At          time.Time `json:"at"`
}
