// Package schedule resolves the dealership weekly schedule for a calendar date.
package schedule

import (
	"time"

	"vehiql/internal/model"
)

// Resolve returns the working hours for the weekday of date.
// open is false when the day is missing from the schedule or marked closed.
func Resolve(schedule []model.WorkingHours, date time.Time) (hours model.WorkingHours, open bool) {
	day := model.DayOfWeekOf(date)
	for _, wh := range schedule {
		if wh.DayOfWeek != day {
			continue
		}
		if !wh.IsOpen {
			return model.WorkingHours{}, false
		}
		return wh, true
	}
	return model.WorkingHours{}, false
}
