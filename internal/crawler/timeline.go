package crawler

import "time"

const (
	// DayLayout formats the day labels used in plan URLs.
	DayLayout = "06_01_02"
	// StartLayout parses "<day label> <HH:mm>".
	StartLayout = DayLayout + " 15:04"
)

// Timeline turns the time-of-day strings of one channel's daily plan into
// absolute timestamps. Plans list events in broadcast order and may run past
// midnight; a start time that sorts before the last accepted one belongs to
// the next calendar day.
type Timeline struct {
	day  string
	loc  *time.Location
	last string
}

// NewTimeline starts a timeline for the given day label.
func NewTimeline(day string, loc *time.Location) *Timeline {
	if loc == nil {
		loc = time.UTC
	}
	return &Timeline{day: day, loc: loc}
}

// Resolve returns the absolute start of an event. The last-accepted marker
// only advances on non-rolled entries, and stays put on parse failures.
func (t *Timeline) Resolve(startTime string) (time.Time, error) {
	value := t.day + " " + startTime
	ts, err := time.ParseInLocation(StartLayout, value, t.loc)
	if err != nil {
		return time.Time{}, &ParseError{Value: value, Err: err}
	}
	if startTime < t.last {
		return ts.AddDate(0, 0, 1), nil
	}
	t.last = startTime
	return ts, nil
}

// DayLabel formats the day offset relative to now.
func DayLabel(now time.Time, offset int) string {
	return now.AddDate(0, 0, offset).Format(DayLayout)
}
