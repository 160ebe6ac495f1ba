package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format of booking dates.
const DateLayout = "2006-01-02"

// BookingStatus is the lifecycle state of a test drive.
type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusNoShow    BookingStatus = "NO_SHOW"
)

// BookingStatuses lists every valid status.
var BookingStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}

// ParseBookingStatus rejects anything outside BookingStatuses.
func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status: %q", s)
	}
	return st, nil
}

func (s BookingStatus) Valid() bool {
	for _, v := range BookingStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Active statuses hold their slot.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal statuses never change again.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Booking is a test-drive reservation of one car for one slot.
type Booking struct {
	ID          string        `json:"id"`
	CarID       string        `json:"carId"`
	UserID      string        `json:"userId"`
	BookingDate time.Time     `json:"bookingDate"` // midnight UTC
	StartTime   string        `json:"startTime"`   // "10:00"
	EndTime     string        `json:"endTime"`     // "11:00"
	Status      BookingStatus `json:"status"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// DateKey is the booking date as YYYY-MM-DD.
func (b *Booking) DateKey() string {
	return b.BookingDate.Format(DateLayout)
}

// BookingDetails is a booking joined with its car and customer.
type BookingDetails struct {
	Booking
	Car  *Car         `json:"car,omitempty"`
	User *UserSummary `json:"user,omitempty"`
}

// DateOnly strips the time of day, keeping the calendar date of t.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// BookingSummary is the slice of a booking the dashboard aggregates over.
type BookingSummary struct {
	ID     string
	CarID  string
	Status BookingStatus
}
