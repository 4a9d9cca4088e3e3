package service

import (
	"strings"
	"time"

	"github.com/jinzhu/now"
)

var dateFormats = append([]string{
	"2006-01-02",
	"2006/01/02",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"January 2, 2006",
	"2 Jan 2006",
}, now.TimeFormats...)

var rangeSeparators = []string{" to ", ":", " - "}

// ParseDateRange turns a phrase such as "last week" or "2024-11-10 to
// 2024-11-15" into an inclusive pair of calendar days relative to today.
// Weeks start on Monday. An empty phrase means today.
func ParseDateRange(text string, today time.Time) (time.Time, time.Time, error) {
	loc := today.Location()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	cal := &now.Config{WeekStartDay: time.Monday, TimeLocation: loc, TimeFormats: dateFormats}
	ref := cal.With(today)

	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "", "today":
		return today, today, nil
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return y, y, nil
	case "this week":
		return ref.BeginningOfWeek(), today, nil
	case "last week":
		start := ref.BeginningOfWeek().AddDate(0, 0, -7)
		return start, start.AddDate(0, 0, 6), nil
	case "this month":
		return ref.BeginningOfMonth(), today, nil
	case "last month":
		start := ref.BeginningOfMonth().AddDate(0, -1, 0)
		return start, ref.BeginningOfMonth().AddDate(0, 0, -1), nil
	}

	for _, sep := range rangeSeparators {
		parts := strings.Split(text, sep)
		if len(parts) != 2 {
			continue
		}
		start, err1 := parseDay(ref, parts[0])
		end, err2 := parseDay(ref, parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		if start.After(end) {
			return time.Time{}, time.Time{}, invalid("date range", "%s is after %s", start.Format(dateLayout), end.Format(dateLayout))
		}
		return start, end, nil
	}

	if day, err := parseDay(ref, text); err == nil {
		return day, day, nil
	}
	return time.Time{}, time.Time{}, invalid("date range", "cannot understand %q (try today, last week or 2024-11-10 to 2024-11-15)", text)
}

func parseDay(ref *now.Now, text string) (time.Time, error) {
	t, err := ref.Parse(strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, ref.Location()), nil
}

// LastWeek returns Monday..Sunday of the week before the one containing today.
func LastWeek(today time.Time) (time.Time, time.Time) {
	start, end, _ := ParseDateRange("last week", today)
	return start, end
}

func FormatDateRange(start, end time.Time) string {
	if start.Equal(end) {
		return start.Format("January 02, 2006")
	}
	return start.Format("Jan 02") + " - " + end.Format("Jan 02, 2006")
}
