package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the wall-clock format of open/close and slot times.
const TimeLayout = "15:04"

// WorkingHours is one day of the dealership weekly schedule.
type WorkingHours struct {
	ID           string    `json:"id,omitempty"`
	DealershipID string    `json:"dealershipId,omitempty"`
	DayOfWeek    DayOfWeek `json:"dayOfWeek"`
	OpenTime     string    `json:"openTime"`  // "09:00"
	CloseTime    string    `json:"closeTime"` // "18:00"
	IsOpen       bool      `json:"isOpen"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// Validate checks a single row. Closed days only need a valid day name.
func (w *WorkingHours) Validate() error {
	if !w.DayOfWeek.Valid() {
		return fmt.Errorf("invalid day of week: %q", w.DayOfWeek)
	}
	if !w.IsOpen {
		return nil
	}
	open, err := ParseClock(w.OpenTime)
	if err != nil {
		return fmt.Errorf("%s: invalid open time: %w", w.DayOfWeek, err)
	}
	closing, err := ParseClock(w.CloseTime)
	if err != nil {
		return fmt.Errorf("%s: invalid close time: %w", w.DayOfWeek, err)
	}
	if !open.Before(closing) {
		return fmt.Errorf("%s: close time must be after open time", w.DayOfWeek)
	}
	return nil
}

// ParseClock parses "HH:MM" with a two-digit hour.
func ParseClock(s string) (time.Time, error) {
	return time.Parse(TimeLayout, strings.TrimSpace(s))
}

// ClockHour returns the hour part of "HH:MM" (or "HH"), ignoring minutes.
func ClockHour(s string) (int, bool) {
	hourPart, _, _ := strings.Cut(strings.TrimSpace(s), ":")
	h, err := strconv.Atoi(hourPart)
	if err != nil || h < 0 || h > 24 {
		return 0, false
	}
	return h, true
}

// DefaultWorkingHours is the schedule seeded on the first dealership read.
func DefaultWorkingHours() []WorkingHours {
	hours := make([]WorkingHours, 0, len(Week))
	for _, d := range Week {
		wh := WorkingHours{DayOfWeek: d, OpenTime: "09:00", CloseTime: "18:00", IsOpen: true}
		if d == Saturday || d == Sunday {
			wh.OpenTime = "10:00"
			wh.CloseTime = "16:00"
		}
		hours = append(hours, wh)
	}
	return hours
}

// DealershipInfo is the single dealership profile with its weekly schedule.
type DealershipInfo struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Address      string         `json:"address"`
	Phone        string         `json:"phone"`
	Email        string         `json:"email"`
	WorkingHours []WorkingHours `json:"workingHours"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
