package model

import (
	"fmt"
	"strings"
	"time"
)

// DayOfWeek is the persisted day name of a working-hours row.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

// Week lists the days Monday first; it is also the display order of working hours.
var Week = []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseDayOfWeek accepts any casing and returns the canonical value.
func ParseDayOfWeek(s string) (DayOfWeek, error) {
	d := DayOfWeek(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("invalid day of week: %q", s)
	}
	return d, nil
}

// DayOfWeekOf maps the calendar weekday of t.
func DayOfWeekOf(t time.Time) DayOfWeek {
	// time.Sunday == 0
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return Week[wd-1]
}

func (d DayOfWeek) Valid() bool {
	return d.Index() >= 0
}

// Index is the Monday-based position of d, or -1 when d is unknown.
func (d DayOfWeek) Index() int {
	for i, w := range Week {
		if w == d {
			return i
		}
	}
	return -1
}

func (d DayOfWeek) String() string {
	return string(d)
}
