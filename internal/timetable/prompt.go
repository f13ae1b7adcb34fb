package timetable

import (
	"fmt"
	"strings"

	"timetabler/internal/intake"
	"timetabler/internal/taxonomy"
)

const schemaExample = `{
  "title": "Schedule title if visible",
  "schedule": {
    "Monday": [{"time": "09:00-09:45", "subject": "国語", "room": "1-1", "originalSubject": "こくご"}],
    "Tuesday": [],
    "Wednesday": [],
    "Thursday": [],
    "Friday": [],
    "Saturday": [],
    "Sunday": []
  }
}`

// BuildPrompt writes the extraction instructions. When a bucket is known
// its canonical names and aliases are listed so the model can emit
// canonical names directly.
func BuildPrompt(b *taxonomy.Bucket, level, grade string, kind intake.Kind) string {
	var sb strings.Builder

	switch kind {
	case intake.KindSpreadsheet:
		sb.WriteString("Please analyze this Excel timetable data (cells separated by tabs, one row per line) ")
	default:
		sb.WriteString("Please analyze this timetable image ")
	}
	fmt.Fprintf(&sb, "for a %s class and extract the schedule. ", GradeLabel(level, grade))
	sb.WriteString("Return only a JSON object with the following structure:\n")
	sb.WriteString(schemaExample)
	sb.WriteString("\n\nExtract all time slots, subjects, and room numbers. Leave \"room\" empty when none is shown. ")
	sb.WriteString("If information is unclear, use your best judgment.\n")

	if b != nil && len(b.Subjects) > 0 {
		sb.WriteString("\nUse these canonical subject names in \"subject\":\n")
		for _, s := range b.Subjects {
			fmt.Fprintf(&sb, "- %s", s.Name)
			if others := otherAliases(s); len(others) > 0 {
				fmt.Fprintf(&sb, " (also written: %s)", strings.Join(others, ", "))
			}
			sb.WriteByte('\n')
		}
		sb.WriteString("When the timetable writes a subject differently, put the canonical name in \"subject\" ")
		sb.WriteString("and the text as written in \"originalSubject\". Keep subjects that match none of these as written.\n")
	}
	return sb.String()
}

func otherAliases(s taxonomy.Subject) []string {
	out := make([]string, 0, len(s.Aliases))
	for _, a := range s.Aliases {
		if a != s.Name {
			out = append(out, a)
		}
	}
	return out
}
