// Package slots computes the hourly test-drive slots of a day.
package slots

import (
	"fmt"
	"time"

	"vehiql/internal/model"
	"vehiql/internal/schedule"
)

// Slot is a one-hour candidate window. It is never persisted.
type Slot struct {
	StartTime string `json:"startTime"` // "10:00"
	EndTime   string `json:"endTime"`   // "11:00"
}

// Generate produces one slot per whole hour in [openHour, closeHour).
// Minutes of open and close times are ignored.
func Generate(openTime, closeTime string) []Slot {
	openHour, ok := model.ClockHour(openTime)
	if !ok {
		return nil
	}
	closeHour, ok := model.ClockHour(closeTime)
	if !ok {
		return nil
	}
	if openHour >= closeHour {
		return nil
	}

	slots := make([]Slot, 0, closeHour-openHour)
	for h := openHour; h < closeHour; h++ {
		slots = append(slots, Slot{
			StartTime: formatHour(h),
			EndTime:   formatHour(h + 1),
		})
	}
	return slots
}

// Filter drops candidates that share a start or an end time with a booking on date.
// Matching on either boundary (not interval overlap) is intended: slots are hour-aligned.
func Filter(candidates []Slot, date time.Time, bookings []model.Booking) []Slot {
	dateKey := date.Format(model.DateLayout)
	result := make([]Slot, 0, len(candidates))

	for _, c := range candidates {
		booked := false
		for i := range bookings {
			b := &bookings[i]
			if b.DateKey() != dateKey {
				continue
			}
			if b.StartTime == c.StartTime || b.EndTime == c.EndTime {
				booked = true
				break
			}
		}
		if !booked {
			result = append(result, c)
		}
	}
	return result
}

// ForDate returns the bookable slots of date: empty on closed days.
func ForDate(hours []model.WorkingHours, date time.Time, bookings []model.Booking) []Slot {
	day, open := schedule.Resolve(hours, date)
	if !open {
		return []Slot{}
	}
	return Filter(Generate(day.OpenTime, day.CloseTime), date, bookings)
}

// Contains reports whether start-end is one of slots.
func Contains(slots []Slot, start, end string) bool {
	for _, s := range slots {
		if s.StartTime == start && s.EndTime == end {
			return true
		}
	}
	return false
}

func formatHour(h int) string {
	return fmt.Sprintf("%02d:00", h)
}
