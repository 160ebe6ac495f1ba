package booking

import "errors"

var (
	ErrCarUnavailable   = errors.New("car not available for test drive")
	ErrSlotTaken        = errors.New("slot already booked, try another")
	ErrInvalidSlot      = errors.New("invalid time slot")
	ErrNotFound         = errors.New("booking not found")
	ErrUnauthorized     = errors.New("unauthorized to modify this booking")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	ErrAlreadyCompleted = errors.New("cannot cancel a completed booking")
	ErrInvalidState     = errors.New("booking can no longer be changed")
	ErrInvalidStatus    = errors.New("invalid booking status")
	ErrPastDate         = errors.New("cannot book a date in the past")
	ErrDateTooFar       = errors.New("booking date is too far in the future")
)
