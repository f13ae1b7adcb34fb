package timetable

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	LevelElementary = "elementary"
	LevelJuniorHigh = "junior_high"
	LevelHighSchool = "high_school"
)

var ErrUnknownGrade = errors.New("unknown grade")

var levelPrefixes = map[string]string{
	"小学校":  LevelElementary,
	"小学":   LevelElementary,
	"小":    LevelElementary,
	"中学校":  LevelJuniorHigh,
	"中学":   LevelJuniorHigh,
	"中":    LevelJuniorHigh,
	"高等学校": LevelHighSchool,
	"高校":   LevelHighSchool,
	"高":    LevelHighSchool,
}

var levelNames = map[string]string{
	LevelElementary: "小学",
	LevelJuniorHigh: "中学",
	LevelHighSchool: "高校",
}

var gradeLabel = regexp.MustCompile(`^(小学校|小学|小|中学校|中学|中|高等学校|高校|高)([0-9]{1,2})年生?$`)

// ResolveGrade turns the upload's grade selection into a (level, grade)
// key. With an explicit level, grade must be a number; without one, grade
// is a label such as "小学1年" (full-width digits allowed). Both empty
// selects elementary grade 1.
func ResolveGrade(level, grade string) (string, string, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	grade = strings.TrimSpace(norm.NFKC.String(grade))

	if level == "" {
		if grade == "" {
			return LevelElementary, "1", nil
		}
		return parseLabel(grade)
	}

	if _, ok := levelNames[level]; !ok {
		return "", "", fmt.Errorf("%w: school level %q", ErrUnknownGrade, level)
	}
	n, err := strconv.Atoi(grade)
	if err != nil || n < 1 {
		return "", "", fmt.Errorf("%w: grade %q", ErrUnknownGrade, grade)
	}
	return level, strconv.Itoa(n), nil
}

func parseLabel(label string) (string, string, error) {
	compact := strings.Join(strings.Fields(label), "")
	m := gradeLabel.FindStringSubmatch(compact)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownGrade, label)
	}
	n, _ := strconv.Atoi(m[2])
	if n < 1 {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownGrade, label)
	}
	return levelPrefixes[m[1]], strconv.Itoa(n), nil
}

// GradeLabel renders a key the way the upload form labels it.
func GradeLabel(level, grade string) string {
	name, ok := levelNames[level]
	if !ok {
		return level + " " + grade
	}
	return name + grade + "年"
}
